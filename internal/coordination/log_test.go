package coordination

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFoldCoordEvents_ClaimUnclaim(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteClaim(dir, "s1", "alice", []string{"src/a.go"}, now); err != nil {
		t.Fatal(err)
	}
	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Claims) != 1 || state.Claims[0].Label != "alice" {
		t.Fatalf("expected one claim by alice, got %+v", state.Claims)
	}

	if err := WriteUnclaim(dir, "s1", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	state, err = FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Claims) != 0 {
		t.Fatalf("expected no claims after unclaim, got %+v", state.Claims)
	}
}

func TestFoldCoordEvents_BindingLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteBinding(dir, "s1", "alice", "db", "postgres", now); err != nil {
		t.Fatal(err)
	}
	if err := WriteBinding(dir, "s2", "bob", "db", "mysql", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Bindings) != 1 || state.Bindings[0].Value != "mysql" {
		t.Fatalf("expected last-writer-wins binding = mysql, got %+v", state.Bindings)
	}
}

func TestFoldCoordEvents_BindingConflictMarked(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteBinding(dir, "s1", "alice", "db.engine", "postgres", now); err != nil {
		t.Fatal(err)
	}
	if err := WriteBinding(dir, "s2", "bob", "db.engine", "sqlite", now.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Bindings) != 1 || !state.Bindings[0].Conflict {
		t.Fatalf("expected db.engine marked conflict=true, got %+v", state.Bindings)
	}
	if state.Bindings[0].Value != "sqlite" {
		t.Errorf("later writer should still win display, got %q", state.Bindings[0].Value)
	}
}

func TestFoldCoordEvents_BindingOutsideWindowNoConflict(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteBinding(dir, "s1", "alice", "db.engine", "postgres", now); err != nil {
		t.Fatal(err)
	}
	if err := WriteBinding(dir, "s2", "bob", "db.engine", "sqlite", now.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Bindings) != 1 || state.Bindings[0].Conflict {
		t.Fatalf("expected no conflict outside the window, got %+v", state.Bindings)
	}
}

func TestFoldCoordEvents_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	if err := WriteClaim(dir, "s1", "alice", nil, now); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "coordination.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatalf("FoldCoordEvents should tolerate malformed lines, got error: %v", err)
	}
	if state.MalformedCount != 1 {
		t.Errorf("MalformedCount = %d, want 1", state.MalformedCount)
	}
	if len(state.Claims) != 1 {
		t.Errorf("expected the valid claim to still be folded, got %+v", state.Claims)
	}
}

func TestFoldCoordEvents_MissingLogIsEmptyNotError(t *testing.T) {
	state, err := FoldCoordEvents(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error for missing log, got %v", err)
	}
	if len(state.Claims) != 0 || len(state.Bindings) != 0 {
		t.Errorf("expected empty board state, got %+v", state)
	}
}

func TestFoldCoordEvents_RequestAckScopedToLabelPair(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteRequest(dir, "s1", "alice", "bob", "please review", now); err != nil {
		t.Fatal(err)
	}
	if err := WriteRequest(dir, "s1", "alice", "carol", "please review too", now); err != nil {
		t.Fatal(err)
	}
	// carol acks her own request; bob's, from the same requester and
	// timestamp, must remain outstanding.
	if err := WriteRequestAck(dir, "s3", "alice", "carol", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	state, err := FoldCoordEvents(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := state.RequestsForMe("carol"); len(got) != 0 {
		t.Errorf("expected carol's request acked, got %+v", got)
	}
	if got := state.RequestsForMe("bob"); len(got) != 1 {
		t.Errorf("expected bob's request still outstanding, got %+v", got)
	}
}

func TestBoard_FindBindingConflict(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	if err := WriteBinding(dir, "s1", "alice", "db", "postgres", now); err != nil {
		t.Fatal(err)
	}
	board, err := Assemble(dir, "s2", now.Add(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if _, conflict := board.FindBindingConflict("db", "postgres", now.Add(5*time.Second)); conflict {
		t.Error("identical value should not be a conflict")
	}
	c, conflict := board.FindBindingConflict("db", "mysql", now.Add(5*time.Second))
	if !conflict {
		t.Fatal("expected a conflict for a differing value within the window")
	}
	if c.ExistingValue != "postgres" {
		t.Errorf("conflict.ExistingValue = %q, want postgres", c.ExistingValue)
	}

	if _, conflict := board.FindBindingConflict("db", "mysql", now.Add(2*time.Minute)); conflict {
		t.Error("a differing value outside the conflict window should not be reported as a conflict")
	}
}
