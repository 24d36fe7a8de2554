// Package coordination implements the Coordination Store and Board
// Assembler: a per-user filesystem store of session heartbeats plus an
// append-only coordination log, folded into a single BoardState per hook
// invocation (spec.md §3.3, §4.2).
package coordination

import "time"

// TaskSnapshot is a lightweight view of an in-progress task, carried in a
// session's heartbeat so peers can see what a session is working on.
type TaskSnapshot struct {
	Subject string `json:"subject"`
	Status  string `json:"status,omitempty"`
}

// Heartbeat is the per-session file at heartbeats/<session_id>.json under
// a project's Coordination Store directory (see ProjectDir).
type Heartbeat struct {
	SessionID         string         `json:"session_id"`
	StartedAt         string         `json:"started_at"`
	LastHeartbeat     string         `json:"last_heartbeat"`
	Label             string         `json:"label"`
	FocusFiles        []string       `json:"focus_files"`
	ActiveTasks       []TaskSnapshot `json:"active_tasks"`
	FilesModifiedCount int           `json:"files_modified_count"`
	TotalEdits        int            `json:"total_edits"`
	RecentCommits     []string       `json:"recent_commits"`
	Branch            string         `json:"branch,omitempty"`
	CurrentPhase      string         `json:"current_phase,omitempty"`
	PeerCountSeen     int            `json:"peer_count_seen,omitempty"`
}

// CoordEventType is the kind of a coordination log record.
type CoordEventType string

const (
	EventClaim      CoordEventType = "claim"
	EventUnclaim    CoordEventType = "unclaim"
	EventBinding    CoordEventType = "binding"
	EventRequest    CoordEventType = "request"
	EventRequestAck CoordEventType = "request_ack"
)

// CoordEvent is a single line of the append-only coordination.jsonl log.
type CoordEvent struct {
	TS        string                 `json:"ts"`
	SessionID string                 `json:"session_id"`
	EventType CoordEventType         `json:"event_type"`
	Payload   map[string]any         `json:"payload"`
}

// ClaimEntry is a session's currently-held scope claim, folded from the
// most recent claim/unclaim pair for that session.
type ClaimEntry struct {
	SessionID string   `json:"session_id"`
	Label     string   `json:"label"`
	Paths     []string `json:"paths"`
	TS        string   `json:"ts"`
}

// BindingEntry is a decided key/value binding, last-writer-wins by
// timestamp within the log. Conflict is set when an earlier, differing
// binding for the same key was recorded within ConflictWindow of this
// one — spec.md's "later writer wins display" rule for a marked conflict.
type BindingEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	BySession string `json:"by_session"`
	ByLabel   string `json:"by_label"`
	TS        string `json:"ts"`
	Conflict  bool   `json:"conflict"`
}

// BindingConflict is returned when a proposed binding value would
// silently override a different value already decided within the
// conflict-detection window (spec.md's 60s rule).
type BindingConflict struct {
	ExistingValue string
	BySession     string
	ByLabel       string
	TS            string
}

// RequestEntry is a cross-agent request for another labeled session's
// attention.
type RequestEntry struct {
	FromSession string `json:"from_session"`
	FromLabel   string `json:"from_label"`
	ToLabel     string `json:"to_label"`
	Message     string `json:"message"`
	TS          string `json:"ts"`
}

// RequestAckEntry acknowledges a RequestEntry. ToLabel is the acker's own
// label — the addressee of the original request — so an ack is scoped to
// the (from, to) pair rather than matching every pending request sharing
// FromLabel and a timestamp window.
type RequestAckEntry struct {
	AckerSession string `json:"acker_session"`
	FromLabel    string `json:"from_label"`
	ToLabel      string `json:"to_label"`
	TS           string `json:"ts"`
}

// BoardState is the folded, current-as-of-one-scan view of the
// coordination log: every effective claim, every decided binding, every
// outstanding request and its acks.
type BoardState struct {
	Claims       []ClaimEntry
	Bindings     []BindingEntry
	Requests     []RequestEntry
	RequestAcks  []RequestAckEntry
	MalformedCount int
}

// PeerSummary is a rendering-ready view of another active session,
// combining its heartbeat with its board-state claims.
type PeerSummary struct {
	SessionID          string
	Label              string
	Age                time.Duration
	FocusFiles         []string
	TaskSubjects       []string
	FilesModifiedCount int
	RecentCommits      []string
	ClaimedPaths       []string
	Branch             string
	CurrentPhase       string
}

// RequestsForMe is the subset of BoardState.Requests targeting a given
// label that have not yet been acknowledged: a request is considered
// acked once a RequestAckEntry scoped to the same (from, to) pair carries
// a timestamp at or after the request's own timestamp.
func (b BoardState) RequestsForMe(label string) []RequestEntry {
	var out []RequestEntry
	for _, r := range b.Requests {
		if r.ToLabel != label {
			continue
		}
		if requestIsAcked(r, b.RequestAcks) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func requestIsAcked(r RequestEntry, acks []RequestAckEntry) bool {
	for _, a := range acks {
		if a.FromLabel == r.FromLabel && a.ToLabel == r.ToLabel && a.TS >= r.TS {
			return true
		}
	}
	return false
}
