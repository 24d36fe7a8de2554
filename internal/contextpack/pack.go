// Package contextpack renders the bounded text snapshot injected into an
// agent's context at SessionStart/UserPromptSubmit (spec.md §4.4): a
// truncatable body (project summary, recent decisions, session digest)
// followed by a reserved, never-truncated tail (peers, off-limits paths,
// bindings, pending requests, write-back protocol).
package contextpack

import (
	"strconv"
	"strings"
)

// MinBodyBudget is the floor spec.md places on the truncatable body, so a
// very small total budget still leaves room for at least a few lines of
// project context ahead of the reserved tail.
const MinBodyBudget = 2000

// TailReserve is the fixed slack subtracted from total before computing
// the body budget, covering the tail's own formatting overhead beyond its
// measured content length.
const TailReserve = 200

// Section is one truncatable unit of the body: a heading plus its
// rendered lines, kept together or dropped together at a line boundary.
type Section struct {
	Heading string
	Lines   []string
}

// Tail is the reserved, always-fully-rendered closing block.
type Tail struct {
	Peers            []string
	OffLimits        []string
	Bindings         []string
	RequestsForMe    []string
	WriteBackProtocol string
}

// Render assembles sections and tail into the final snapshot text, never
// exceeding total characters unless the tail alone already does (the tail
// is never truncated even if it must overflow the stated budget — spec.md
// treats it as load-bearing, not decorative).
func Render(sections []Section, tail Tail, total int) string {
	tailText := renderTail(tail)
	bodyBudget := total - len(tailText) - TailReserve
	if bodyBudget < MinBodyBudget {
		bodyBudget = MinBodyBudget
	}

	body := renderBody(sections, bodyBudget)

	var b strings.Builder
	b.WriteString("# CONTEXT SNAPSHOT\n\n")
	b.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n\n") {
		b.WriteString("\n\n")
	}
	b.WriteString(tailText)
	return b.String()
}

func renderBody(sections []Section, budget int) string {
	var b strings.Builder
	used := 0
	for i, sec := range sections {
		if sec.Heading == "" && len(sec.Lines) == 0 {
			continue
		}
		heading := "## " + sec.Heading + "\n"
		if used+len(heading) > budget {
			b.WriteString(truncationMarker(len(sections) - i))
			break
		}
		b.WriteString(heading)
		used += len(heading)

		truncated := false
		for _, line := range sec.Lines {
			lineText := line + "\n"
			if used+len(lineText) > budget {
				truncated = true
				break
			}
			b.WriteString(lineText)
			used += len(lineText)
		}
		b.WriteString("\n")
		used++
		if truncated {
			b.WriteString(truncationMarker(len(sections) - i - 1))
			break
		}
	}
	return b.String()
}

func truncationMarker(remainingSections int) string {
	if remainingSections <= 0 {
		return "_[truncated to fit context budget]_\n\n"
	}
	return "_[truncated to fit context budget — " + strconv.Itoa(remainingSections) + " more section(s) omitted]_\n\n"
}

func renderTail(t Tail) string {
	var b strings.Builder
	b.WriteString("## Peers\n")
	if len(t.Peers) == 0 {
		b.WriteString("(solo session — no other active peers)\n")
	} else {
		for _, p := range t.Peers {
			b.WriteString("- " + p + "\n")
		}
	}
	b.WriteString("\n## Off-limits\n")
	if len(t.OffLimits) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, p := range t.OffLimits {
			b.WriteString("- " + p + "\n")
		}
	}
	b.WriteString("\n## Bindings\n")
	if len(t.Bindings) == 0 {
		b.WriteString("(none decided yet)\n")
	} else {
		for _, bd := range t.Bindings {
			b.WriteString("- " + bd + "\n")
		}
	}
	b.WriteString("\n## Requests for you\n")
	if len(t.RequestsForMe) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, r := range t.RequestsForMe {
			b.WriteString("- " + r + "\n")
		}
	}
	if t.WriteBackProtocol != "" {
		b.WriteString("\n" + t.WriteBackProtocol + "\n")
	}
	return b.String()
}
