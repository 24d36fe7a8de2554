package ledger

import (
	"math"
	"testing"
)

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	in := map[string]any{"b": 1.0, "a": 2.0, "c": map[string]any{"z": 1.0, "y": 2.0}}
	got, err := CanonicalJSON(in)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalJSON_NoInsignificantWhitespace(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"x": []any{1.0, 2.0, 3.0}})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"x":[1,2,3]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalJSON_RejectsNaN(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"x": math.NaN()})
	if err == nil {
		t.Fatal("expected error for NaN, got nil")
	}
}

func TestCanonicalJSON_NoHTMLEscaping(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"x": "<a>&</a>"})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"x":"<a>&</a>"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalJSON_ArrayOrderPreserved(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"x": []any{"c", "a", "b"}})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"x":["c","a","b"]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
