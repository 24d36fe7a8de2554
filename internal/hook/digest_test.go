package hook

import (
	"strings"
	"testing"
	"time"

	"github.com/fagemx/edda/internal/ledger"
)

func TestBuildDigest_CountsAndOrdersDeterministically(t *testing.T) {
	now := time.Now().UTC()
	e1, _ := ledger.NewNote("n1").Finish("main", "", now)
	e2, _ := ledger.NewDecision("storage.backend", "postgres", "faster for our workload").Finish("main", e1.Hash, now)

	d := BuildDigest([]ledger.Event{e2, e1})
	if d.Summary == "" {
		t.Fatal("expected non-empty digest")
	}
	if !strings.Contains(d.Summary, "postgres") {
		t.Errorf("expected digest to include decision summary, got %q", d.Summary)
	}
	if len(d.DecisionEventIDs) != 1 || d.DecisionEventIDs[0] != e2.EventID {
		t.Errorf("expected decision_event_ids to include %q, got %v", e2.EventID, d.DecisionEventIDs)
	}
}

func TestBuildDigest_Deterministic(t *testing.T) {
	now := time.Now().UTC()
	e1, _ := ledger.NewNote("n1").Finish("main", "", now)
	e2, _ := ledger.NewNote("n2").Finish("main", e1.Hash, now)

	a := BuildDigest([]ledger.Event{e1, e2})
	b := BuildDigest([]ledger.Event{e2, e1})
	if a.Summary != b.Summary {
		t.Errorf("digest not order-independent: %q vs %q", a.Summary, b.Summary)
	}
}

func TestDigestEvent_AppendsSessionDigest(t *testing.T) {
	s, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	now := time.Now().UTC()
	if _, err := s.Append("main", ledger.NewNote("hello"), now); err != nil {
		t.Fatal(err)
	}

	digest, err := DigestEvent(s, "main", "s1", now)
	if err != nil {
		t.Fatal(err)
	}
	if digest.Type != ledger.TypeSessionDigest {
		t.Errorf("expected session_digest event, got %s", digest.Type)
	}
}
