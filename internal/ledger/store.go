package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection, matching the
// teacher's memory.openDB seam.
var openDB = sql.Open

// InlineThreshold is the payload size (bytes, canonical-JSON-encoded)
// above which Append hoists a payload into the blob store rather than
// storing it inline in the events row (spec.md §4.1).
const InlineThreshold = 16 * 1024

// Store is the embedded-SQLite backed Ledger Store (spec.md §4.1): an
// append-only, hash-chained sequence of events per branch.
type Store struct {
	db    *sql.DB
	blobs *BlobStore
}

// Blobs exposes the store's content-addressed blob store so callers can
// hoist content that must always be blob-referenced regardless of size
// (e.g. captured command stderr) rather than only relying on the
// automatic inline-threshold hoisting Append performs.
func (s *Store) Blobs() *BlobStore { return s.blobs }

// Open creates dataDir if needed, opens (or creates) ledger.db in WAL
// mode, and runs migrations. Mirrors the teacher's memory.New exactly
// down to the pragma set — busy_timeout absorbs brief writer contention
// instead of surfacing SQLITE_BUSY to every caller.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: pragma %q: %w", p, err)
		}
	}

	blobs, err := OpenBlobStore(filepath.Join(dataDir, "blobs"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: open blob store: %w", err)
	}

	s := &Store{db: db, blobs: blobs}
	if err := s.migrate(); err != nil {
		blobs.Close()
		db.Close()
		return nil, fmt.Errorf("ledger: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.blobs.Close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			event_id     TEXT PRIMARY KEY,
			ts           TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			branch       TEXT    NOT NULL,
			parent_hash  TEXT    NOT NULL DEFAULT '',
			hash         TEXT    NOT NULL,
			payload_json TEXT    NOT NULL,
			refs_json    TEXT    NOT NULL,
			event_family TEXT,
			event_level  TEXT,
			seq          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_branch     ON events(branch, seq);
		CREATE INDEX IF NOT EXISTS idx_events_type       ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_ts          ON events(ts);
		CREATE INDEX IF NOT EXISTS idx_events_hash        ON events(hash);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_chain ON events(branch, parent_hash);

		CREATE TABLE IF NOT EXISTS branch_heads (
			branch TEXT PRIMARY KEY,
			head   TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Head returns the current head hash of branch, or "" if the branch has
// no events yet (the genesis parent_hash).
func (s *Store) Head(branch string) (string, error) {
	var head string
	err := s.db.QueryRow(`SELECT head FROM branch_heads WHERE branch = ?`, branch).Scan(&head)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "head", Err: err, Retryable: true}
	}
	return head, nil
}

// Append writes an event built from b onto branch, resolving the current
// head as the new event's parent. If another writer has advanced the
// branch between the caller's last read and this call, Append returns
// *ChainConflict so the caller can re-read the head and retry — spec.md
// §5's "single HEAD per branch, no rewrite" invariant is enforced by the
// idx_events_chain unique index racing at the SQL layer, not by an
// application-level compare-and-swap alone.
func (s *Store) Append(branch string, b Builder, now time.Time) (Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Event{}, &StorageError{Op: "append: begin tx", Err: err, Retryable: true}
	}
	defer tx.Rollback()

	var head string
	err = tx.QueryRow(`SELECT head FROM branch_heads WHERE branch = ?`, branch).Scan(&head)
	if err != nil && err != sql.ErrNoRows {
		return Event{}, &StorageError{Op: "append: read head", Err: err, Retryable: true}
	}

	hoisted, err := s.hoistPayload(b.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: hoist payload: %w", err)
	}
	b.Payload = hoisted

	event, err := b.Finish(branch, head, now)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: build event: %w", err)
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: marshal payload: %w", err)
	}
	refsJSON, err := json.Marshal(event.Refs)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: marshal refs: %w", err)
	}

	var seq int64
	err = tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE branch = ?`, branch).Scan(&seq)
	if err != nil {
		return Event{}, &StorageError{Op: "append: next seq", Err: err, Retryable: true}
	}

	_, err = tx.Exec(`
		INSERT INTO events (event_id, ts, type, branch, parent_hash, hash, payload_json, refs_json, event_family, event_level, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, FormatTimestamp(event.TS), string(event.Type), event.Branch,
		event.ParentHash, event.Hash, string(payloadJSON), string(refsJSON),
		event.EventFamily, event.EventLevel, seq,
	)
	if err != nil {
		// The unique index on (branch, parent_hash) is what actually
		// detects a lost race: two transactions reading the same head
		// concurrently will have exactly one insert succeed.
		return Event{}, &ChainConflict{Branch: branch, Expected: head, ActualHead: head}
	}

	if head == "" {
		_, err = tx.Exec(`INSERT INTO branch_heads (branch, head) VALUES (?, ?)`, branch, event.Hash)
	} else {
		res, uerr := tx.Exec(`UPDATE branch_heads SET head = ? WHERE branch = ? AND head = ?`, event.Hash, branch, head)
		if uerr == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				return Event{}, &ChainConflict{Branch: branch, Expected: head, ActualHead: head}
			}
		}
		err = uerr
	}
	if err != nil {
		return Event{}, &StorageError{Op: "append: update head", Err: err, Retryable: true}
	}

	if err := tx.Commit(); err != nil {
		return Event{}, &StorageError{Op: "append: commit", Err: err, Retryable: true}
	}
	return event, nil
}

// hoistPayload returns payload unchanged when its JSON encoding fits
// within InlineThreshold. Otherwise it stores the encoded payload in the
// blob store and returns a small reference payload in its place — the
// event's hash is computed over this reference, not the original content,
// so hoisting must happen before Builder.Finish is called. The blob write
// happens ahead of the SQL insert in the same Append call: if the
// transaction that follows fails to commit, the blob is simply orphaned
// for GC rather than leaving a partially written event.
func (s *Store) hoistPayload(payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if len(raw) <= InlineThreshold {
		return payload, nil
	}
	ref, err := s.blobs.Put(raw, "event_payload")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"blob_ref":  string(ref),
		"inline":    false,
		"byte_size": float64(len(raw)),
	}, nil
}

// AppendWithRetry retries Append up to maxAttempts times when the branch
// head moved between the caller's read and the write — a losing
// *ChainConflict simply means another writer's event landed first, so a
// fresh call (which re-reads the current head) is enough to succeed.
// spec.md §7 mandates a bounded retry before degrading; testable scenario
// S2 requires both of two concurrent writers to eventually succeed after
// at most one retry.
func (s *Store) AppendWithRetry(branch string, b Builder, now time.Time, maxAttempts int) (Event, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		event, err := s.Append(branch, b, now)
		if err == nil {
			return event, nil
		}
		lastErr = err
		var conflict *ChainConflict
		if !errors.As(err, &conflict) {
			return Event{}, err
		}
	}
	return Event{}, lastErr
}

// Create establishes branch as a new named sequence forking off from, i.e.
// starting with the same head hash as, an existing fromBranch (spec.md
// §4.1's create(name, from=HEAD-of-parent)). branch must not already
// exist. Passing "" for fromBranch creates a branch with no parent
// (genesis, like "main"). Create does not append an event of its own; it
// only seeds branch_heads so the branch's first real Append chains onto
// fromBranch's current head.
func (s *Store) Create(branch, fromBranch string, now time.Time) error {
	if branch == "" {
		return fmt.Errorf("ledger: branch name required")
	}
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM branch_heads WHERE branch = ?`, branch).Scan(&exists); err != nil {
		return &StorageError{Op: "create: check existing", Err: err, Retryable: true}
	}
	if exists > 0 {
		return fmt.Errorf("ledger: branch %q already exists", branch)
	}

	head := ""
	if fromBranch != "" {
		h, err := s.Head(fromBranch)
		if err != nil {
			return err
		}
		head = h
	}
	if _, err := s.db.Exec(`INSERT INTO branch_heads (branch, head) VALUES (?, ?)`, branch, head); err != nil {
		return &StorageError{Op: "create: seed head", Err: err, Retryable: true}
	}
	return nil
}

// Switch validates that branch exists (either it has appended events, or
// was seeded by Create), returning an error otherwise. The Store itself is
// stateless across calls — every Append/Events/Head call already takes an
// explicit branch argument — so Switch carries no session-wide cursor; it
// exists purely as the existence check spec.md's switch(name) operation
// requires before a caller starts directing writes at branch.
func (s *Store) Switch(branch string) error {
	head, err := s.Head(branch)
	if err != nil {
		return err
	}
	if head == "" {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(1) FROM branch_heads WHERE branch = ?`, branch).Scan(&count); err != nil {
			return &StorageError{Op: "switch: check existing", Err: err, Retryable: true}
		}
		if count == 0 {
			return fmt.Errorf("ledger: branch %q does not exist", branch)
		}
	}
	return nil
}

// isAncestor reports whether candidateHash appears somewhere in branch's
// parent_hash chain at or before headHash, walking backward from headHash.
// An empty candidateHash (genesis) is always an ancestor.
func (s *Store) isAncestor(branch, candidateHash, headHash string) (bool, error) {
	if candidateHash == headHash {
		return true, nil
	}
	if candidateHash == "" {
		return true, nil
	}
	hash := headHash
	for hash != "" {
		var parent string
		err := s.db.QueryRow(`SELECT parent_hash FROM events WHERE branch = ? AND hash = ?`, branch, hash).Scan(&parent)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, &StorageError{Op: "is ancestor: walk chain", Err: err, Retryable: true}
		}
		if parent == candidateHash {
			return true, nil
		}
		hash = parent
	}
	return false, nil
}

// Merge implements spec.md §4.1's merge(src, dst, strategy): "fast_forward"
// requires dst's current head to be an ancestor of src's current head (dst
// has not diverged since the branches split), and on success simply
// retargets dst's head to src's head without appending a new event.
// "three_way" always appends a merge event on dst recording both branches'
// heads via refs, regardless of ancestor relationship.
func (s *Store) Merge(src, dst, strategy string, now time.Time) (Event, error) {
	srcHead, err := s.Head(src)
	if err != nil {
		return Event{}, err
	}
	dstHead, err := s.Head(dst)
	if err != nil {
		return Event{}, err
	}

	switch strategy {
	case "fast_forward":
		ok, err := s.isAncestor(src, dstHead, srcHead)
		if err != nil {
			return Event{}, err
		}
		if !ok {
			return Event{}, fmt.Errorf("ledger: fast_forward merge of %q into %q: %q is not an ancestor of %q", src, dst, dst, src)
		}
		res, err := s.db.Exec(`UPDATE branch_heads SET head = ? WHERE branch = ? AND head = ?`, srcHead, dst, dstHead)
		if err != nil {
			return Event{}, &StorageError{Op: "merge: fast_forward retarget", Err: err, Retryable: true}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Event{}, &ChainConflict{Branch: dst, Expected: dstHead, ActualHead: dstHead}
		}
		return Event{}, nil
	case "three_way":
		b := NewMerge(src, dst, strategy)
		b.Refs = Refs{Roles: map[string]string{"source_head": srcHead, "dest_head": dstHead}}
		return s.Append(dst, b, now)
	default:
		return Event{}, fmt.Errorf("ledger: unknown merge strategy %q", strategy)
	}
}

// Verify walks branch from genesis, recomputing each event's hash and
// checking that its parent_hash matches the previous event's hash,
// returning a *Corruption at the first mismatch.
func (s *Store) Verify(branch string) error {
	rows, err := s.db.Query(`
		SELECT event_id, ts, type, parent_hash, hash, payload_json, refs_json
		FROM events WHERE branch = ? ORDER BY seq ASC`, branch)
	if err != nil {
		return &StorageError{Op: "verify: query", Err: err, Retryable: true}
	}
	defer rows.Close()

	prevHash := ""
	for rows.Next() {
		var eventID, tsStr, typ, parentHash, hash, payloadJSON, refsJSON string
		if err := rows.Scan(&eventID, &tsStr, &typ, &parentHash, &hash, &payloadJSON, &refsJSON); err != nil {
			return &StorageError{Op: "verify: scan", Err: err, Retryable: false}
		}
		if parentHash != prevHash {
			return &Corruption{EventID: eventID, Reason: "parent_hash does not match previous event"}
		}
		ts, err := ParseTimestamp(tsStr)
		if err != nil {
			return &Corruption{EventID: eventID, Reason: "unparseable timestamp: " + err.Error()}
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return &Corruption{EventID: eventID, Reason: "unparseable payload: " + err.Error()}
		}
		var refs Refs
		if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
			return &Corruption{EventID: eventID, Reason: "unparseable refs: " + err.Error()}
		}
		recomputed, err := ComputeHash(Event{
			EventID: eventID, TS: ts, Type: EventType(typ), Branch: branch,
			ParentHash: parentHash, Payload: payload, Refs: refs,
		})
		if err != nil {
			return fmt.Errorf("ledger: verify: recompute hash: %w", err)
		}
		if recomputed != hash {
			return &Corruption{EventID: eventID, Reason: "stored hash does not match recomputed hash"}
		}
		prevHash = hash
	}
	return rows.Err()
}
