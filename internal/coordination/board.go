package coordination

import "time"

// ConflictWindow bounds how far back a differing binding for the same key
// is still treated as a live conflict rather than accepted history —
// spec.md's 60-second binding-conflict detection window.
const ConflictWindow = 60 * time.Second

// AssembleBoard performs the Board Assembler's mandatory single directory
// scan (for peer heartbeats) plus single log fold (for claims/bindings/
// requests) that spec.md requires per hook invocation: callers must not
// call FoldCoordEvents or DiscoverActivePeers a second time within the
// same dispatch.
type Board struct {
	State BoardState
	Peers []PeerSummary
}

// Assemble builds the full board for one hook invocation.
func Assemble(stateDir, currentSessionID string, now time.Time) (Board, error) {
	state, err := FoldCoordEvents(stateDir)
	if err != nil {
		return Board{}, err
	}
	peers, err := DiscoverActivePeers(stateDir, currentSessionID, state, now)
	if err != nil {
		return Board{}, err
	}
	return Board{State: state, Peers: peers}, nil
}

// FindBindingConflict reports whether committing newValue under key would
// silently override a different, still-live value. Returns (conflict,
// true) only when an existing binding disagrees and falls within
// ConflictWindow of now; an idempotent re-decide (same value) is never a
// conflict, and a stale prior binding outside the window is treated as
// history to supersede rather than fought over.
func (b Board) FindBindingConflict(key, newValue string, now time.Time) (BindingConflict, bool) {
	for _, existing := range b.State.Bindings {
		if existing.Key != key {
			continue
		}
		if existing.Value == newValue {
			return BindingConflict{}, false
		}
		ts, err := time.Parse(time.RFC3339, existing.TS)
		if err != nil || now.Sub(ts) > ConflictWindow {
			return BindingConflict{}, false
		}
		return BindingConflict{
			ExistingValue: existing.Value,
			BySession:     existing.BySession,
			ByLabel:       existing.ByLabel,
			TS:            existing.TS,
		}, true
	}
	return BindingConflict{}, false
}

// ClaimedBy returns the paths claimed by sessionID, if any.
func (b Board) ClaimedBy(sessionID string) ([]string, bool) {
	for _, c := range b.State.Claims {
		if c.SessionID == sessionID {
			return c.Paths, true
		}
	}
	return nil, false
}
