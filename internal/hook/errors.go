package hook

import "fmt"

// Warning is a dispatcher error meant to surface to the host as exit code
// 1 (spec.md §7) rather than being silently absorbed by the resilience
// shell. Ordinary internal errors should NOT implement this — only
// conditions the operator genuinely needs to see (e.g. a malformed
// workspace it refuses to guess at).
type Warning struct {
	Msg string
}

func (w Warning) Error() string { return w.Msg }
func (w Warning) Warn() bool    { return true }

// BudgetExceeded signals a context pack request whose budget was too
// small to satisfy even MinBodyBudget after reserving the tail.
type BudgetExceeded struct {
	Requested, Minimum int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("hook: budget %d below minimum %d", e.Requested, e.Minimum)
}

// StaleHeartbeat signals a peer heartbeat older than the configured
// staleness window was encountered where freshness was required.
type StaleHeartbeat struct {
	SessionID string
}

func (e *StaleHeartbeat) Error() string {
	return fmt.Sprintf("hook: stale heartbeat for session %s", e.SessionID)
}

// MalformedCoordRecord signals a coordination.jsonl line that failed to
// parse; the fold continues past it (see coordination.FoldCoordEvents),
// this type exists so callers can report the count through the same
// error taxonomy as the rest of §7.
type MalformedCoordRecord struct {
	Count int
}

func (e *MalformedCoordRecord) Error() string {
	return fmt.Sprintf("hook: %d malformed coordination record(s) skipped", e.Count)
}
