package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Query filters and paginates a branch's event stream. Zero-valued fields
// are unconstrained. Cursor is the event_id to resume after (exclusive),
// letting callers page through a branch without holding a live iterator.
// The default order is ascending by (branch, event_id); set Reverse to
// walk newest-first.
type Query struct {
	Branch  string
	Types   []EventType
	Tag     string
	Keyword string
	Since   time.Time
	Until   time.Time
	Cursor  string
	Limit   int
	Reverse bool
}

// Events runs q against the store and returns matching events in the
// requested order, plus the cursor to pass for the next page (empty when
// exhausted).
func (s *Store) Events(q Query) ([]Event, string, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	var where []string
	var args []any

	if q.Branch != "" {
		where = append(where, "branch = ?")
		args = append(args, q.Branch)
	}
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ",")+")")
	}
	if q.Tag != "" {
		where = append(where, "(payload_json LIKE ? OR refs_json LIKE ?)")
		needle := "%" + escapeLike(q.Tag) + "%"
		args = append(args, needle, needle)
	}
	if q.Keyword != "" {
		where = append(where, "payload_json LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(q.Keyword)+"%")
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, FormatTimestamp(q.Since))
	}
	if !q.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, FormatTimestamp(q.Until))
	}
	if q.Cursor != "" {
		var cursorSeq int64
		if err := s.db.QueryRow(`SELECT seq FROM events WHERE event_id = ?`, q.Cursor).Scan(&cursorSeq); err != nil {
			if err == sql.ErrNoRows {
				return nil, "", fmt.Errorf("ledger: cursor %q not found", q.Cursor)
			}
			return nil, "", &StorageError{Op: "events: cursor lookup", Err: err, Retryable: true}
		}
		if q.Reverse {
			where = append(where, "seq < ?")
		} else {
			where = append(where, "seq > ?")
		}
		args = append(args, cursorSeq)
	}

	order := "seq ASC"
	if q.Reverse {
		order = "seq DESC"
	}

	sqlStr := "SELECT event_id, ts, type, branch, parent_hash, hash, payload_json, refs_json, event_family, event_level FROM events"
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY " + order + " LIMIT ?"
	args = append(args, q.Limit+1)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, "", &StorageError{Op: "events: query", Err: err, Retryable: true}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var tsStr, typ, payloadJSON, refsJSON string
		var family, level sql.NullString
		if err := rows.Scan(&e.EventID, &tsStr, &typ, &e.Branch, &e.ParentHash, &e.Hash,
			&payloadJSON, &refsJSON, &family, &level); err != nil {
			return nil, "", &StorageError{Op: "events: scan", Err: err, Retryable: false}
		}
		e.Type = EventType(typ)
		e.EventFamily = family.String
		e.EventLevel = level.String
		e.TS, err = ParseTimestamp(tsStr)
		if err != nil {
			return nil, "", fmt.Errorf("ledger: parse timestamp for %s: %w", e.EventID, err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, "", fmt.Errorf("ledger: parse payload for %s: %w", e.EventID, err)
		}
		if err := json.Unmarshal([]byte(refsJSON), &e.Refs); err != nil {
			return nil, "", fmt.Errorf("ledger: parse refs for %s: %w", e.EventID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", &StorageError{Op: "events: iterate", Err: err, Retryable: true}
	}

	nextCursor := ""
	if len(events) > q.Limit {
		nextCursor = events[q.Limit-1].EventID
		events = events[:q.Limit]
	}
	return events, nextCursor, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
