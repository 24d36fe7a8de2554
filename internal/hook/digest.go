package hook

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fagemx/edda/internal/ledger"
)

// appendRetries bounds how many times AppendWithRetry re-reads the branch
// head and retries after losing a race to another writer (spec.md §7).
const appendRetries = 3

// Digest is the deterministic output of the session digest routine
// (spec.md §4.3): a plain-text summary plus the ordered decision event
// ids the summary was built from, ready to become a session_digest
// event's payload.
type Digest struct {
	Summary          string
	DecisionEventIDs []string
	NextSteps        string
}

// BuildDigest summarizes a branch's full event history into a Digest.
// Determinism matters here: two runs over the same underlying events must
// produce byte-identical text, since the digest itself becomes part of
// the hash-chained ledger and callers may legitimately recompute it for
// display without re-reading the stored copy. The routine runs in four
// passes over events, matching spec.md's digest steps: decisions, commit
// titles, failed commands, and modified files.
func BuildDigest(events []ledger.Event) Digest {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventID < events[j].EventID
	})

	counts := map[ledger.EventType]int{}
	var decisionEventIDs []string
	var decisions, commits, failedCommands, filesModified []string

	for _, e := range events {
		counts[e.Type]++
		switch e.Type {
		case ledger.TypeDecision:
			decisionEventIDs = append(decisionEventIDs, e.EventID)
			key, _ := e.Payload["key"].(string)
			value, _ := e.Payload["value"].(string)
			if key != "" || value != "" {
				decisions = append(decisions, fmt.Sprintf("%s = %s", key, value))
			}
		case ledger.TypeCommit:
			title, ok := e.Payload["title"].(string)
			if !ok {
				title, _ = e.Payload["message"].(string)
			}
			if title != "" {
				commits = append(commits, title)
			}
		case ledger.TypeCmd:
			exitCode := 0
			if v, ok := e.Payload["exit_code"].(float64); ok {
				exitCode = int(v)
			}
			if exitCode != 0 {
				argv := stringSliceFromAny(e.Payload["argv"])
				failedCommands = append(failedCommands, fmt.Sprintf("%s (exit %d)", strings.Join(argv, " "), exitCode))
			}
		case ledger.TypeToolUse:
			tool, _ := e.Payload["tool"].(string)
			if tool != "Edit" && tool != "Write" {
				continue
			}
			args, _ := e.Payload["args"].(map[string]any)
			if args == nil {
				continue
			}
			for _, key := range []string{"file_path", "path"} {
				if p, ok := args[key].(string); ok && p != "" {
					filesModified = append(filesModified, p)
					break
				}
			}
		}
	}
	filesModified = dedupeStrings(filesModified)

	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s):", len(events))
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, " %s=%d", t, counts[ledger.EventType(t)])
	}

	if len(decisions) > 0 {
		b.WriteString("\nDecisions: ")
		b.WriteString(strings.Join(decisions, "; "))
	}
	if len(commits) > 0 {
		b.WriteString("\nCommits: ")
		b.WriteString(strings.Join(commits, "; "))
	}
	if len(failedCommands) > 0 {
		b.WriteString("\nFailed commands: ")
		b.WriteString(strings.Join(failedCommands, "; "))
	}
	if len(filesModified) > 0 {
		b.WriteString("\nFiles modified: ")
		b.WriteString(strings.Join(filesModified, "; "))
	}

	nextSteps := ""
	if len(failedCommands) > 0 {
		nextSteps = fmt.Sprintf("Investigate %d failed command(s): %s", len(failedCommands), strings.Join(failedCommands, "; "))
	}

	return Digest{Summary: b.String(), DecisionEventIDs: decisionEventIDs, NextSteps: nextSteps}
}

// DigestEvent builds and appends a session_digest event summarizing every
// event on branch appended since the store's genesis (the digest routine
// re-derives from the full branch rather than an external cursor, since
// spec.md's Non-goals exclude a separate index for tracking "since last
// digest" state).
func DigestEvent(store *ledger.Store, branch, sessionID string, now time.Time) (ledger.Event, error) {
	events, _, err := store.Events(ledger.Query{Branch: branch, Limit: 100000})
	if err != nil {
		return ledger.Event{}, fmt.Errorf("hook: digest: read events: %w", err)
	}
	d := BuildDigest(events)
	return store.AppendWithRetry(branch, ledger.NewSessionDigest(sessionID, d.Summary, d.DecisionEventIDs, d.NextSteps), now, appendRetries)
}

// stringSliceFromAny extracts a []string from a decoded JSON value that
// may be []any (the typical shape after an event payload round-trips
// through json.Unmarshal into map[string]any) or already []string.
func stringSliceFromAny(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
