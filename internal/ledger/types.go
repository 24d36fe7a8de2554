// Package ledger implements Edda's append-only, hash-chained event store:
// the Event Model and Ledger Store components of the decision-memory
// substrate. Events are persisted in an embedded SQLite database (via
// modernc.org/sqlite, no cgo) with oversized payload fields hoisted to a
// content-addressed blob directory.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed (but config-extensible) set of event kinds.
type EventType string

const (
	TypeNote          EventType = "note"
	TypeDecision      EventType = "decision"
	TypeCmd           EventType = "cmd"
	TypeCommit        EventType = "commit"
	TypeMerge         EventType = "merge"
	TypeDraft         EventType = "draft"
	TypeSignal        EventType = "signal"
	TypeSessionDigest EventType = "session_digest"
	TypeToolUse       EventType = "tool_use"
)

// builtinTypes is the fixed set of event kinds Edda ships with; a workspace
// config may extend this set (see wsconfig.Config.ExtraEventTypes), but the
// core ledger never rejects an unrecognized type — it only classifies known
// ones for taxonomy purposes.
var builtinTypes = map[EventType]bool{
	TypeNote: true, TypeDecision: true, TypeCmd: true, TypeCommit: true,
	TypeMerge: true, TypeDraft: true, TypeSignal: true,
	TypeSessionDigest: true, TypeToolUse: true,
}

// IsBuiltinType reports whether t is one of the nine built-in event kinds.
func IsBuiltinType(t EventType) bool { return builtinTypes[t] }

// Provenance is a typed, directional relation from an event to another
// event, richer than the plain refs role map. Supplements spec.md's refs
// with the original implementation's provenance relations (based_on,
// supersedes, continues, reviews). An empty Provenance slice never
// serializes, so events that don't use it hash identically to a version
// of this type without the field at all.
type Provenance struct {
	Target string `json:"target"`
	Rel    string `json:"rel"`
	Note   string `json:"note,omitempty"`
}

// Provenance relation kinds.
const (
	RelBasedOn   = "based_on"
	RelSupersede = "supersedes"
	RelContinues = "continues"
	RelReviews   = "reviews"
)

// Refs is the mapping from role name to another event, a blob reference, or
// an external URI (spec.md §3.1), plus the supplemental provenance list.
type Refs struct {
	Roles      map[string]string `json:"-"`
	Provenance []Provenance      `json:"provenance,omitempty"`
}

// MarshalJSON flattens Roles into top-level keys alongside "provenance", so
// the wire shape matches spec.md's "mapping from role name to ref" exactly
// while still carrying the supplemental provenance list.
func (r Refs) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Roles)+1)
	for k, v := range r.Roles {
		out[k] = v
	}
	if len(r.Provenance) > 0 {
		out["provenance"] = r.Provenance
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits "provenance" back out from the flattened role map.
func (r *Refs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Roles = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == "provenance" {
			if err := json.Unmarshal(v, &r.Provenance); err != nil {
				return fmt.Errorf("refs: provenance: %w", err)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Non-string ref values are not part of the spec; skip rather
			// than fail the whole event on a foreign field.
			continue
		}
		r.Roles[k] = s
	}
	return nil
}

// Event is an immutable, hash-chained ledger row (spec.md §3.1).
type Event struct {
	EventID     string          `json:"event_id"`
	TS          time.Time       `json:"ts"`
	Type        EventType       `json:"type"`
	Branch      string          `json:"branch"`
	ParentHash  string          `json:"parent_hash"`
	Hash        string          `json:"hash"`
	Payload     map[string]any  `json:"payload"`
	Refs        Refs            `json:"refs"`
	EventFamily string          `json:"event_family,omitempty"`
	EventLevel  string          `json:"event_level,omitempty"`
	_           struct{}
}

// classification is a (family, level) pair used only for filtering and
// rendering; it is never part of the hash input.
type classification struct{ family, level string }

var taxonomy = map[EventType]classification{
	TypeNote:          {"signal", "info"},
	TypeCmd:           {"signal", "trace"},
	TypeToolUse:       {"signal", "trace"},
	TypeCommit:        {"milestone", "milestone"},
	TypeMerge:         {"milestone", "milestone"},
	TypeDecision:      {"governance", "governance"},
	TypeDraft:         {"governance", "trace"},
	TypeSignal:        {"signal", "warning"},
	TypeSessionDigest: {"milestone", "info"},
}

// ClassifyEventType returns the derived (family, level) pair for a known
// event type, or ("", "") for an unrecognized/extended type. Grounded on
// the original implementation's edda-core classify_event_type.
func ClassifyEventType(t EventType) (family, level string) {
	c, ok := taxonomy[t]
	if !ok {
		return "", ""
	}
	return c.family, c.level
}

// hashInput is the exact field set that participates in the canonical hash:
// event_id, ts, type, branch, parent_hash, payload, refs. event_family,
// event_level, and hash itself are deliberately excluded (spec.md §3.1,
// and the original's digests_not_in_hash_computation guarantee).
type hashInput struct {
	EventID    string         `json:"event_id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Branch     string         `json:"branch"`
	ParentHash string         `json:"parent_hash"`
	Payload    map[string]any `json:"payload"`
	Refs       Refs           `json:"refs"`
}

// ComputeHash returns H(canonical_json({event_id, ts, type, branch,
// parent_hash, payload, refs})) as lowercase hex, per spec.md §3.1.
func ComputeHash(e Event) (string, error) {
	// Round-trip through map[string]any so CanonicalJSON's key-sorting
	// applies uniformly, including inside payload and refs.
	in := hashInput{
		EventID:    e.EventID,
		TS:         FormatTimestamp(e.TS),
		Type:       string(e.Type),
		Branch:     e.Branch,
		ParentHash: e.ParentHash,
		Payload:    e.Payload,
		Refs:       e.Refs,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal hash input: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("ledger: normalize hash input: %w", err)
	}
	canon, err := CanonicalJSON(generic)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// FormatTimestamp renders t per spec.md §6.3: always UTC, millisecond
// precision, "YYYY-MM-DDTHH:MM:SS.sssZ".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTimestamp parses the canonical timestamp format back to a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000Z", s)
}
