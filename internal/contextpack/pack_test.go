package contextpack

import (
	"strings"
	"testing"
)

func TestRender_SoloSessionTail(t *testing.T) {
	out := Render(nil, Tail{}, 4000)
	if !strings.Contains(out, "solo session") {
		t.Errorf("expected solo-session tail text, got:\n%s", out)
	}
}

func TestRender_TailNeverTruncated(t *testing.T) {
	tail := Tail{Peers: []string{"alice (main, 5s ago)"}, WriteBackProtocol: "protocol text"}
	sections := []Section{{Heading: "Big section", Lines: strings.Split(strings.Repeat("a very long line of filler text\n", 500), "\n")}}
	out := Render(sections, tail, 500)
	if !strings.Contains(out, "alice") {
		t.Error("tail content (peer) missing from tiny-budget render")
	}
	if !strings.Contains(out, "protocol text") {
		t.Error("write-back protocol missing from tiny-budget render")
	}
}

func TestRender_BodyBudgetHasFloor(t *testing.T) {
	tail := Tail{Peers: []string{"x"}}
	sections := []Section{{Heading: "S", Lines: []string{"line one", "line two"}}}
	out := Render(sections, tail, 100)
	if !strings.Contains(out, "line one") {
		t.Error("expected small body content to survive even with a tiny total budget, due to MinBodyBudget floor")
	}
}

func TestRender_TruncatesLongBody(t *testing.T) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, strings.Repeat("x", 100))
	}
	sections := []Section{{Heading: "Huge", Lines: lines}}
	out := Render(sections, Tail{}, 3000)
	if !strings.Contains(out, "truncated") {
		t.Error("expected a truncation marker for a body exceeding its budget")
	}
}
