package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndVerify(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if _, err := s.Append("main", NewNote("note"), now); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	if err := s.Verify("main"); err != nil {
		t.Errorf("Verify: %v", err)
	}

	head, err := s.Head("main")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head == "" {
		t.Error("expected non-empty head after appends")
	}
}

func TestStore_Append_ChainsParentHash(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	e1, err := s.Append("main", NewNote("first"), now)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.Append("main", NewNote("second"), now)
	if err != nil {
		t.Fatal(err)
	}
	if e2.ParentHash != e1.Hash {
		t.Errorf("second event's parent_hash %q != first event's hash %q", e2.ParentHash, e1.Hash)
	}
}

func TestStore_Append_SeparateBranchesIndependent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if _, err := s.Append("main", NewNote("on main"), now); err != nil {
		t.Fatal(err)
	}
	e, err := s.Append("feature", NewNote("on feature"), now)
	if err != nil {
		t.Fatal(err)
	}
	if e.ParentHash != "" {
		t.Errorf("first event on a new branch should have empty parent_hash, got %q", e.ParentHash)
	}
}

func TestStore_Events_Pagination(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if _, err := s.Append("main", NewNote("n"), now); err != nil {
			t.Fatal(err)
		}
	}

	page1, cursor, err := s.Events(Query{Branch: "main", Limit: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 4 {
		t.Fatalf("page1 len = %d, want 4", len(page1))
	}
	if cursor == "" {
		t.Fatal("expected non-empty cursor for a truncated page")
	}

	page2, _, err := s.Events(Query{Branch: "main", Limit: 100, Cursor: cursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 6 {
		t.Errorf("page2 len = %d, want 6", len(page2))
	}
}

func TestStore_Events_FilterByType(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	if _, err := s.Append("main", NewNote("n"), now); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append("main", NewDecision("d.key", "d", "r"), now); err != nil {
		t.Fatal(err)
	}
	decisions, _, err := s.Events(Query{Branch: "main", Types: []EventType{TypeDecision}})
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Type != TypeDecision {
		t.Errorf("expected exactly one decision event, got %+v", decisions)
	}
}

func TestStore_AppendWithRetry_ConcurrentWritersBothSucceed(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	const writers = 2
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendWithRetry("main", NewNote("concurrent"), now, 3)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d: AppendWithRetry: %v", i, err)
		}
	}
	if err := s.Verify("main"); err != nil {
		t.Errorf("Verify: %v", err)
	}
	events, _, err := s.Events(Query{Branch: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != writers {
		t.Errorf("expected %d events after concurrent appends, got %d", writers, len(events))
	}
}

func TestOpen_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "ledger")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
}
