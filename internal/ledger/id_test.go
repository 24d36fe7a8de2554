package ledger

import (
	"strings"
	"testing"
)

func TestNewEventID_Prefix(t *testing.T) {
	id := NewEventID()
	if !strings.HasPrefix(id, "evt_") {
		t.Errorf("id %q missing evt_ prefix", id)
	}
	if len(id) != len("evt_")+26 {
		t.Errorf("id %q has length %d, want %d", id, len(id), len("evt_")+26)
	}
}

func TestNewEventID_MonotonicallyIncreasing(t *testing.T) {
	prev := NewEventID()
	for i := 0; i < 1000; i++ {
		next := NewEventID()
		if next <= prev {
			t.Fatalf("id sequence not strictly increasing: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestNewEventID_NoAmbiguousChars(t *testing.T) {
	id := NewEventID()
	for _, forbidden := range []byte{'I', 'L', 'O', 'U'} {
		if strings.IndexByte(id, forbidden) >= 0 {
			t.Errorf("id %q contains forbidden Crockford char %c", id, forbidden)
		}
	}
}
