package ledger

import "time"

// Builder assembles a new Event with the fields that don't depend on
// storage state (id, timestamp, hash) filled in, leaving Branch and
// ParentHash for the caller — Append is the only place that knows the
// current head of a branch.
type Builder struct {
	Type    EventType
	Payload map[string]any
	Refs    Refs
	Labels  []string
}

// NewNote builds a note event: free-text observation, no required payload
// shape beyond a "text" field.
func NewNote(text string, tags ...string) Builder {
	payload := map[string]any{"text": text}
	if len(tags) > 0 {
		payload["tags"] = toAnySlice(tags)
	}
	return Builder{Type: TypeNote, Payload: payload}
}

// NewDecision builds a decision event recording a binding choice under a
// dotted-namespace key (e.g. "storage.backend"). supersededBy, when given,
// names the event_id of a decision this one replaces.
func NewDecision(key, value, reason string, supersededBy ...string) Builder {
	payload := map[string]any{
		"key":    key,
		"value":  value,
		"reason": reason,
	}
	if len(supersededBy) > 0 && supersededBy[0] != "" {
		payload["superseded_by"] = supersededBy[0]
	}
	return Builder{Type: TypeDecision, Payload: payload}
}

// NewCmd builds a cmd event recording a shell command's invocation and
// result. stdoutRef/stderrRef are blob references (see BlobStore); pass ""
// when there is no captured output to reference.
func NewCmd(argv []string, exitCode int, durationMS int64, stdoutRef, stderrRef string) Builder {
	payload := map[string]any{
		"argv":        toAnySlice(argv),
		"exit_code":   float64(exitCode),
		"duration_ms": float64(durationMS),
	}
	if stdoutRef != "" {
		payload["stdout_ref"] = stdoutRef
	}
	if stderrRef != "" {
		payload["stderr_ref"] = stderrRef
	}
	return Builder{Type: TypeCmd, Payload: payload}
}

// NewCommit builds a commit event: title, purpose, and an ordered sequence
// of contributions describing what changed. Per EVIDENCE-01 (from the
// original implementation's new_commit_event): a commit with no
// payload.evidence and no explicit "claim" label automatically gains the
// "claim" label, since an unsubstantiated commit event is itself a claim
// about the state of the work that later evidence may confirm or refute.
func NewCommit(title, purpose string, contributions, evidence []string, labels ...string) Builder {
	payload := map[string]any{
		"title":   title,
		"purpose": purpose,
	}
	if len(contributions) > 0 {
		payload["contributions"] = toAnySlice(contributions)
	}
	if len(evidence) > 0 {
		payload["evidence"] = toAnySlice(evidence)
	}
	if len(evidence) == 0 && !hasLabel(labels, "claim") {
		labels = append(labels, "claim")
	}
	if len(labels) > 0 {
		payload["labels"] = toAnySlice(labels)
	}
	return Builder{Type: TypeCommit, Payload: payload, Labels: labels}
}

// NewMerge builds a merge event recording two branches converging.
// strategy is "fast_forward" or "three_way" (spec.md §4.1's Branch
// operations).
func NewMerge(source, destination, strategy string) Builder {
	return Builder{Type: TypeMerge, Payload: map[string]any{
		"source":      source,
		"destination": destination,
		"strategy":    strategy,
	}}
}

// NewDraft builds a draft event: an in-progress artifact not yet committed.
func NewDraft(kind, content string) Builder {
	return Builder{Type: TypeDraft, Payload: map[string]any{
		"kind":    kind,
		"content": content,
	}}
}

// NewSignal builds a signal event: an operator- or agent-raised flag that
// needs attention (a blocker, a conflict, an anomaly).
func NewSignal(kind, message string) Builder {
	return Builder{Type: TypeSignal, Payload: map[string]any{
		"kind":    kind,
		"message": message,
	}}
}

// NewSessionDigest builds a session_digest event: the end-of-session
// summary produced by the Hook Dispatcher's digest routine. decisionEventIDs
// is the ordered sequence of decision events collected during the session;
// nextSteps is an optional derived suggestion, left empty when there is
// nothing outstanding to flag.
func NewSessionDigest(sessionID, summary string, decisionEventIDs []string, nextSteps string) Builder {
	payload := map[string]any{
		"session_id": sessionID,
		"summary":    summary,
	}
	if len(decisionEventIDs) > 0 {
		payload["decision_event_ids"] = toAnySlice(decisionEventIDs)
	}
	if nextSteps != "" {
		payload["next_steps"] = nextSteps
	}
	return Builder{Type: TypeSessionDigest, Payload: payload}
}

// NewToolUse builds a tool_use event recording an agent's invocation of a
// tool, after any secret masking has already been applied to args/output.
func NewToolUse(tool string, args map[string]any, output string) Builder {
	return Builder{Type: TypeToolUse, Payload: map[string]any{
		"tool":   tool,
		"args":   args,
		"output": output,
	}}
}

// Finish stamps an id and timestamp on b and computes the event's hash
// given the branch and parent hash the caller resolved from the store's
// current head. now is injected so append-time behavior stays testable
// without wall-clock flakiness.
func (b Builder) Finish(branch, parentHash string, now time.Time) (Event, error) {
	e := Event{
		EventID:    NewEventID(),
		TS:         now,
		Type:       b.Type,
		Branch:     branch,
		ParentHash: parentHash,
		Payload:    b.Payload,
		Refs:       b.Refs,
	}
	e.EventFamily, e.EventLevel = ClassifyEventType(b.Type)
	hash, err := ComputeHash(e)
	if err != nil {
		return Event{}, err
	}
	e.Hash = hash
	return e, nil
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
