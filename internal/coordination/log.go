package coordination

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func coordinationPath(stateDir string) string {
	return filepath.Join(stateDir, "coordination.jsonl")
}

// AppendCoordEvent appends a single coordination record, fsyncing before
// return so a crash immediately after a hook call can't lose a claim or
// binding that a peer's next invocation already assumed was durable.
func AppendCoordEvent(stateDir string, event CoordEvent) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("coordination: create state dir: %w", err)
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("coordination: marshal event: %w", err)
	}
	f, err := os.OpenFile(coordinationPath(stateDir), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("coordination: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("coordination: write log line: %w", err)
	}
	return f.Sync()
}

func WriteClaim(stateDir, sessionID, label string, paths []string, now time.Time) error {
	return AppendCoordEvent(stateDir, CoordEvent{
		TS: now.UTC().Format(time.RFC3339), SessionID: sessionID, EventType: EventClaim,
		Payload: map[string]any{"label": label, "paths": toAnySlice(paths)},
	})
}

func WriteUnclaim(stateDir, sessionID string, now time.Time) error {
	return AppendCoordEvent(stateDir, CoordEvent{
		TS: now.UTC().Format(time.RFC3339), SessionID: sessionID, EventType: EventUnclaim,
		Payload: map[string]any{},
	})
}

func WriteBinding(stateDir, sessionID, label, key, value string, now time.Time) error {
	return AppendCoordEvent(stateDir, CoordEvent{
		TS: now.UTC().Format(time.RFC3339), SessionID: sessionID, EventType: EventBinding,
		Payload: map[string]any{"key": key, "value": value, "by_label": label},
	})
}

func WriteRequest(stateDir, sessionID, fromLabel, toLabel, message string, now time.Time) error {
	return AppendCoordEvent(stateDir, CoordEvent{
		TS: now.UTC().Format(time.RFC3339), SessionID: sessionID, EventType: EventRequest,
		Payload: map[string]any{"from_label": fromLabel, "to_label": toLabel, "message": message},
	})
}

func WriteRequestAck(stateDir, sessionID, fromLabel, toLabel string, now time.Time) error {
	return AppendCoordEvent(stateDir, CoordEvent{
		TS: now.UTC().Format(time.RFC3339), SessionID: sessionID, EventType: EventRequestAck,
		Payload: map[string]any{"from_label": fromLabel, "to_label": toLabel},
	})
}

// FoldCoordEvents reads coordination.jsonl in a single pass and computes
// the current BoardState: last claim per session wins (unclaim removes
// it), last binding per key wins, requests/acks accumulate. Malformed
// lines are skipped and counted rather than aborting the fold — spec.md
// requires the board assembler to degrade gracefully in front of a
// partially written or hand-edited log.
func FoldCoordEvents(stateDir string) (BoardState, error) {
	f, err := os.Open(coordinationPath(stateDir))
	if os.IsNotExist(err) {
		return BoardState{}, nil
	}
	if err != nil {
		return BoardState{}, fmt.Errorf("coordination: open log: %w", err)
	}
	defer f.Close()

	claims := make(map[string]ClaimEntry)
	bindings := make(map[string]BindingEntry)
	var bindingOrder []string
	var requests []RequestEntry
	var acks []RequestAckEntry
	malformed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev CoordEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			malformed++
			continue
		}
		switch ev.EventType {
		case EventClaim:
			claims[ev.SessionID] = ClaimEntry{
				SessionID: ev.SessionID,
				Label:     stringField(ev.Payload, "label"),
				Paths:     stringSliceField(ev.Payload, "paths"),
				TS:        ev.TS,
			}
		case EventUnclaim:
			delete(claims, ev.SessionID)
		case EventBinding:
			key := stringField(ev.Payload, "key")
			value := stringField(ev.Payload, "value")
			prev, seen := bindings[key]
			if !seen {
				bindingOrder = append(bindingOrder, key)
			}
			conflict := false
			if seen && prev.Value != value {
				prevTS, errPrev := time.Parse(time.RFC3339, prev.TS)
				newTS, errNew := time.Parse(time.RFC3339, ev.TS)
				if errPrev == nil && errNew == nil {
					delta := newTS.Sub(prevTS)
					if delta < 0 {
						delta = -delta
					}
					if delta <= ConflictWindow {
						conflict = true
					}
				}
			}
			bindings[key] = BindingEntry{
				Key:       key,
				Value:     value,
				BySession: ev.SessionID,
				ByLabel:   stringField(ev.Payload, "by_label"),
				TS:        ev.TS,
				Conflict:  conflict,
			}
		case EventRequest:
			requests = append(requests, RequestEntry{
				FromSession: ev.SessionID,
				FromLabel:   stringField(ev.Payload, "from_label"),
				ToLabel:     stringField(ev.Payload, "to_label"),
				Message:     stringField(ev.Payload, "message"),
				TS:          ev.TS,
			})
		case EventRequestAck:
			acks = append(acks, RequestAckEntry{
				AckerSession: ev.SessionID,
				FromLabel:    stringField(ev.Payload, "from_label"),
				ToLabel:      stringField(ev.Payload, "to_label"),
				TS:           ev.TS,
			})
		default:
			malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return BoardState{}, fmt.Errorf("coordination: scan log: %w", err)
	}

	claimList := make([]ClaimEntry, 0, len(claims))
	for _, c := range claims {
		claimList = append(claimList, c)
	}
	bindingList := make([]BindingEntry, 0, len(bindingOrder))
	for _, k := range bindingOrder {
		bindingList = append(bindingList, bindings[k])
	}

	return BoardState{
		Claims:         claimList,
		Bindings:       bindingList,
		Requests:       requests,
		RequestAcks:    acks,
		MalformedCount: malformed,
	}, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
