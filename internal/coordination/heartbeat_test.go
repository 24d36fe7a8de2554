package coordination

import (
	"testing"
	"time"
)

func TestWriteReadHeartbeat_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	hb := Heartbeat{SessionID: "s1", Label: "alice", LastHeartbeat: time.Now().UTC().Format(time.RFC3339)}
	if err := WriteHeartbeat(dir, hb); err != nil {
		t.Fatal(err)
	}
	got, ok, err := ReadHeartbeat(dir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected heartbeat to exist")
	}
	if got.Label != "alice" {
		t.Errorf("Label = %q, want alice", got.Label)
	}
}

func TestWriteHeartbeat_PreservesStartedAt(t *testing.T) {
	dir := t.TempDir()
	first := Heartbeat{SessionID: "s1", StartedAt: "2026-01-01T00:00:00Z", LastHeartbeat: "2026-01-01T00:00:00Z"}
	if err := WriteHeartbeat(dir, first); err != nil {
		t.Fatal(err)
	}
	second := Heartbeat{SessionID: "s1", StartedAt: "2099-01-01T00:00:00Z", LastHeartbeat: "2026-01-01T00:05:00Z"}
	if err := WriteHeartbeat(dir, second); err != nil {
		t.Fatal(err)
	}
	got, _, err := ReadHeartbeat(dir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.StartedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("StartedAt = %q, want original value preserved", got.StartedAt)
	}
}

func TestDiscoverActivePeers_ExcludesSelfAndStale(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	if err := WriteHeartbeat(dir, Heartbeat{SessionID: "self", LastHeartbeat: now.Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}
	if err := WriteHeartbeat(dir, Heartbeat{SessionID: "fresh", Label: "bob", LastHeartbeat: now.Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}
	if err := WriteHeartbeat(dir, Heartbeat{SessionID: "stale", Label: "carl", LastHeartbeat: now.Add(-10 * time.Minute).Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}

	peers, err := DiscoverActivePeers(dir, "self", BoardState{}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].Label != "bob" {
		t.Fatalf("expected only the fresh peer 'bob', got %+v", peers)
	}
}

func TestRemoveHeartbeat(t *testing.T) {
	dir := t.TempDir()
	if err := WriteHeartbeat(dir, Heartbeat{SessionID: "s1", LastHeartbeat: time.Now().UTC().Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}
	if err := RemoveHeartbeat(dir, "s1"); err != nil {
		t.Fatal(err)
	}
	_, ok, err := ReadHeartbeat(dir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected heartbeat to be gone after RemoveHeartbeat")
	}
}
