package hook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fagemx/edda/internal/contextpack"
	"github.com/fagemx/edda/internal/coordination"
	"github.com/fagemx/edda/internal/ledger"
	"github.com/fagemx/edda/internal/wsconfig"
)

// writeBackProtocol is the stable instructional text taught to an agent
// once it discovers it is not alone in a workspace. Grounded on the
// original implementation's render.rs/peers.rs: this block is a fixed
// template rendered verbatim, not regenerated per call, so agents that
// have already internalized it aren't retaught it every turn at the cost
// of context budget — Dispatcher only includes it when Board.Peers is
// non-empty.
const writeBackProtocol = `## Coordination protocol
Other sessions are active in this workspace. Before editing a file, check
the Off-limits and Peers sections above. Use ` + "`edda decide`" + ` to record a
binding decision other sessions must see, ` + "`edda claim`" + ` before starting
work on a set of paths, and ` + "`edda request`" + ` to ask another labeled
session for a review or handoff.`

// Dispatcher wires the Ledger Store, Coordination Store, Board Assembler,
// and Context Packer together to answer one hook invocation (spec.md
// §4.3). One Dispatcher is constructed per process invocation of
// cmd/edda-hook.
type Dispatcher struct {
	Root      string
	ProjectID string
	Config    wsconfig.Config
	Store     *ledger.Store
	StateDir  string
}

// Dispatch routes in to the handler for its HookEventName and returns the
// rendered Output. Every branch is written to survive a missing or
// partially initialized workspace rather than erroring the whole call —
// only clearly host-facing conditions return a Warning.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (Output, error) {
	now := time.Now().UTC()

	switch in.HookEventName {
	case SessionStart:
		return d.onSessionStart(in, now)
	case UserPromptSubmit:
		return d.onUserPromptSubmit(in, now)
	case PreToolUse:
		return d.onPreToolUse(in, now)
	case PostToolUse:
		return d.onPostToolUse(in, now)
	case PostToolUseFailure:
		return d.onPostToolUseFailure(in, now)
	case SessionEnd:
		return d.onSessionEnd(in, now)
	case PreCompact:
		return d.onPreCompact(in, now)
	default:
		Debugf("unrecognized hook_event_name %q", in.HookEventName)
		return Output{}, nil
	}
}

func (d *Dispatcher) onSessionStart(in Input, now time.Time) (Output, error) {
	existing, _, err := coordination.ReadHeartbeat(d.StateDir, in.SessionID)
	if err != nil {
		Debugf("session start: read heartbeat: %v", err)
	}
	label := ResolveLabel(existing.Label, in.SessionID)

	if err := coordination.WriteHeartbeat(d.StateDir, coordination.Heartbeat{
		SessionID:     in.SessionID,
		Label:         label,
		LastHeartbeat: now.Format(time.RFC3339),
	}); err != nil {
		Debugf("session start: write heartbeat: %v", err)
	}

	board, err := coordination.Assemble(d.StateDir, in.SessionID, now)
	if err != nil {
		Debugf("session start: assemble board: %v", err)
	}

	snapshot := d.renderSnapshot(label, board, now)
	return Output{Stdout: snapshot}, nil
}

// onUserPromptSubmit implements spec.md §4.3's UserPromptSubmit contract:
// touch the heartbeat with current_task extracted from the prompt,
// compute the board once, detect a new peer since the last prompt, and
// return workspace/peer context only when something changed.
func (d *Dispatcher) onUserPromptSubmit(in Input, now time.Time) (Output, error) {
	existing, _, err := coordination.ReadHeartbeat(d.StateDir, in.SessionID)
	if err != nil {
		Debugf("user prompt submit: read heartbeat: %v", err)
	}
	label := ResolveLabel(existing.Label, in.SessionID)

	board, err := coordination.Assemble(d.StateDir, in.SessionID, now)
	if err != nil {
		Debugf("user prompt submit: assemble board: %v", err)
	}

	hb := existing
	hb.SessionID = in.SessionID
	hb.Label = label
	hb.LastHeartbeat = now.Format(time.RFC3339)
	if subject := extractTaskSubject(in.Prompt); subject != "" {
		hb.ActiveTasks = []coordination.TaskSnapshot{{Subject: subject}}
	}
	newPeer := len(board.Peers) > existing.PeerCountSeen
	hb.PeerCountSeen = len(board.Peers)
	if err := coordination.WriteHeartbeat(d.StateDir, hb); err != nil {
		Debugf("user prompt submit: write heartbeat: %v", err)
	}

	if strings.TrimSpace(in.Prompt) != "" {
		policy, err := wsconfig.LoadPolicy(d.Root)
		if err != nil {
			Debugf("user prompt submit: load policy: %v", err)
		}
		if _, err := d.Store.AppendWithRetry("main", ledger.NewNote(RedactExtra(in.Prompt, policy.RedactionExtraPatterns), "prompt"), now, appendRetries); err != nil {
			Debugf("user prompt submit: append note: %v", err)
		}
	}

	if !newPeer || len(board.Peers) == 0 {
		return Output{}, nil
	}
	var peers []string
	for _, p := range board.Peers {
		peers = append(peers, fmt.Sprintf("%s (%s, %ds ago)", p.Label, p.Branch, int(p.Age.Seconds())))
	}
	return Output{Stdout: "## Workspace\nNew peer(s) active: " + strings.Join(peers, ", ")}, nil
}

// scopeCheckedTools is spec.md §4.3's Edit/Write/Bash matcher restriction:
// a scope-claim check only makes sense for tools that actually mutate the
// workspace, not e.g. Read.
var scopeCheckedTools = map[string]bool{"Edit": true, "Write": true, "Bash": true}

func (d *Dispatcher) onPreToolUse(in Input, now time.Time) (Output, error) {
	if !scopeCheckedTools[in.ToolName] {
		return Output{}, nil
	}
	board, err := coordination.Assemble(d.StateDir, in.SessionID, now)
	if err != nil {
		Debugf("pre tool use: assemble board: %v", err)
		return Output{}, nil
	}
	policy, err := wsconfig.LoadPolicy(d.Root)
	if err != nil {
		Debugf("pre tool use: load policy: %v", err)
	}
	paths := pathsFromToolInput(in.ToolInput)
	violations := CheckClaims(board, in.SessionID, paths, policy)
	if len(violations) == 0 {
		return Output{}, nil
	}
	var msg strings.Builder
	msg.WriteString("Warning: this touches path(s) claimed by another active session:\n")
	for _, v := range violations {
		fmt.Fprintf(&msg, "- %s (claimed by %s)\n", v.Path, v.ClaimedLabel)
	}

	payload := make([]any, 0, len(violations))
	for _, v := range violations {
		payload = append(payload, map[string]any{
			"path":          v.Path,
			"claimed_by":    v.ClaimedBy,
			"claimed_label": v.ClaimedLabel,
		})
	}
	signal := ledger.NewSignal("scope_violation", msg.String())
	signal.Payload["violations"] = payload
	if _, err := d.Store.AppendWithRetry("main", signal, now, appendRetries); err != nil {
		Debugf("pre tool use: append scope_violation signal: %v", err)
	}

	return Output{Stderr: msg.String()}, nil
}

func (d *Dispatcher) onPostToolUse(in Input, now time.Time) (Output, error) {
	policy, err := wsconfig.LoadPolicy(d.Root)
	if err != nil {
		Debugf("post tool use: load policy: %v", err)
	}
	sanitizedInput, _ := RedactPayloadExtra(in.ToolInput, policy.RedactionExtraPatterns).(map[string]any)
	sanitizedOutput := ""
	if raw, ok := in.ToolResponse["output"].(string); ok {
		sanitizedOutput = RedactExtra(raw, policy.RedactionExtraPatterns)
	}
	if _, err := d.Store.AppendWithRetry("main", ledger.NewToolUse(in.ToolName, sanitizedInput, sanitizedOutput), now, appendRetries); err != nil {
		Debugf("post tool use: append: %v", err)
	}
	return Output{}, nil
}

// onPostToolUseFailure implements spec.md §4.3's table entry for this
// hook: append a cmd event carrying exit_code, argv, and the failure's
// stderr as a captured blob, rather than a free-text signal.
func (d *Dispatcher) onPostToolUseFailure(in Input, now time.Time) (Output, error) {
	argv := commandArgv(in.ToolName, in.ToolInput)
	exitCode := exitCodeFromResponse(in.ToolResponse)

	policy, err := wsconfig.LoadPolicy(d.Root)
	if err != nil {
		Debugf("post tool use failure: load policy: %v", err)
	}
	stderrRef := ""
	if reason := RedactExtra(in.Reason, policy.RedactionExtraPatterns); reason != "" {
		ref, err := d.Store.Blobs().Put([]byte(reason), "stderr")
		if err != nil {
			Debugf("post tool use failure: hoist stderr: %v", err)
		} else {
			stderrRef = string(ref)
		}
	}

	if _, err := d.Store.AppendWithRetry("main", ledger.NewCmd(argv, exitCode, 0, "", stderrRef), now, appendRetries); err != nil {
		Debugf("post tool use failure: append: %v", err)
	}
	return Output{}, nil
}

func (d *Dispatcher) onSessionEnd(in Input, now time.Time) (Output, error) {
	if _, err := DigestEvent(d.Store, "main", in.SessionID, now); err != nil {
		Debugf("session end: digest: %v", err)
	}
	if err := coordination.WriteUnclaim(d.StateDir, in.SessionID, now); err != nil {
		Debugf("session end: unclaim: %v", err)
	}
	if err := coordination.RemoveHeartbeat(d.StateDir, in.SessionID); err != nil {
		Debugf("session end: remove heartbeat: %v", err)
	}
	return Output{}, nil
}

func (d *Dispatcher) onPreCompact(in Input, now time.Time) (Output, error) {
	if _, err := DigestEvent(d.Store, "main", in.SessionID, now); err != nil {
		Debugf("pre compact: digest: %v", err)
	}
	return Output{}, nil
}

// renderSnapshot takes the calling session's resolved label (not its raw
// session id) so that board.State.RequestsForMe, which addresses requests
// by label, actually finds requests aimed at this session.
func (d *Dispatcher) renderSnapshot(label string, board coordination.Board, now time.Time) string {
	sections := d.projectSections()

	var peers []string
	for _, p := range board.Peers {
		peers = append(peers, fmt.Sprintf("%s (%s, %ds ago)", p.Label, p.Branch, int(p.Age.Seconds())))
	}
	var offLimits []string
	for _, p := range board.Peers {
		offLimits = append(offLimits, p.ClaimedPaths...)
	}
	var bindings []string
	for _, b := range board.State.Bindings {
		line := fmt.Sprintf("%s = %s (by %s)", b.Key, b.Value, b.ByLabel)
		if b.Conflict {
			line += " [CONFLICT]"
		}
		bindings = append(bindings, line)
	}
	var requests []string
	for _, r := range board.State.RequestsForMe(label) {
		requests = append(requests, fmt.Sprintf("%s: %s", r.FromLabel, r.Message))
	}

	protocol := ""
	if len(board.Peers) > 0 {
		protocol = writeBackProtocol
	}

	tail := contextpack.Tail{
		Peers: peers, OffLimits: offLimits, Bindings: bindings,
		RequestsForMe: requests, WriteBackProtocol: protocol,
	}
	return contextpack.Render(sections, tail, d.Config.ContextBudget)
}

func (d *Dispatcher) projectSections() []contextpack.Section {
	events, _, err := d.Store.Events(ledger.Query{Branch: "main", Types: []ledger.EventType{ledger.TypeDecision}, Limit: 10, Reverse: true})
	if err != nil {
		Debugf("project sections: query decisions: %v", err)
		return nil
	}
	var lines []string
	for _, e := range events {
		key, _ := e.Payload["key"].(string)
		value, _ := e.Payload["value"].(string)
		reason, _ := e.Payload["reason"].(string)
		if key == "" && value == "" {
			continue
		}
		line := fmt.Sprintf("- %s = %s", key, value)
		if reason != "" {
			line += fmt.Sprintf(" (%s)", reason)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil
	}
	return []contextpack.Section{{Heading: "Recent decisions", Lines: lines}}
}

// extractTaskSubject derives a heartbeat's current_task from a prompt: the
// first non-empty line, truncated so a heartbeat file never balloons on a
// long paste.
const taskSubjectMaxLen = 120

func extractTaskSubject(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > taskSubjectMaxLen {
			line = line[:taskSubjectMaxLen]
		}
		return line
	}
	return ""
}

// commandArgv recovers the argv a failed tool invocation ran, for the cmd
// event spec.md requires PostToolUseFailure to append. Bash-shaped tools
// report a "command" string; other tools may report a structured argv;
// anything else falls back to the tool name alone.
func commandArgv(toolName string, toolInput map[string]any) []string {
	if cmd, ok := toolInput["command"].(string); ok && cmd != "" {
		return strings.Fields(cmd)
	}
	if raw, ok := toolInput["argv"].([]any); ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{toolName}
}

// exitCodeFromResponse reads a tool response's reported exit code,
// defaulting to -1 (unknown/non-numeric) rather than 0, since 0 would
// misleadingly read as success in the digest routine's failed_commands
// step.
func exitCodeFromResponse(toolResponse map[string]any) int {
	if v, ok := toolResponse["exit_code"].(float64); ok {
		return int(v)
	}
	return -1
}
