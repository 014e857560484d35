package session

import (
	"errors"
	"testing"
)

func TestStatusForMatchesTransitionTable(t *testing.T) {
	// every reachable status corresponds to exactly one fact triple
	cases := []struct {
		visited, hasAnswer, marked bool
		want                       QuestionStatus
	}{
		{false, false, false, StatusNotVisited},
		{true, false, false, StatusNotAnswered},
		{true, true, false, StatusAnswered},
		{true, false, true, StatusMarked},
		{true, true, true, StatusAnsweredAndMarked},
	}
	for _, c := range cases {
		if got := StatusFor(c.visited, c.hasAnswer, c.marked); got != c.want {
			t.Errorf("StatusFor(%v,%v,%v) = %s, want %s", c.visited, c.hasAnswer, c.marked, got, c.want)
		}
	}
}

func TestPaletteLifecycle(t *testing.T) {
	p := newPalette([]string{"q1"})

	if got := p.get("q1"); got != StatusNotVisited {
		t.Fatalf("fresh question: got %s", got)
	}
	if _, err := p.apply("q1", evVisit); err != nil {
		t.Fatalf("visit: %v", err)
	}
	if got := p.get("q1"); got != StatusNotAnswered {
		t.Fatalf("after visit: got %s", got)
	}
	if _, err := p.apply("q1", evAnswer); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got := p.get("q1"); got != StatusAnswered {
		t.Fatalf("after answer: got %s", got)
	}
	if _, err := p.toggleMark("q1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := p.get("q1"); got != StatusAnsweredAndMarked {
		t.Fatalf("after mark: got %s", got)
	}
	if _, err := p.apply("q1", evClear); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := p.get("q1"); got != StatusMarked {
		t.Fatalf("clear on answered_and_marked should revert to marked, got %s", got)
	}
	if _, err := p.toggleMark("q1"); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if got := p.get("q1"); got != StatusNotAnswered {
		t.Fatalf("after unmark: got %s", got)
	}
}

func TestPaletteRejectsActionsBeforeVisit(t *testing.T) {
	p := newPalette([]string{"q1"})
	if _, err := p.apply("q1", evAnswer); !errors.Is(err, ErrNotVisited) {
		t.Fatalf("answer before visit: got %v", err)
	}
	if _, err := p.toggleMark("q1"); !errors.Is(err, ErrNotVisited) {
		t.Fatalf("mark before visit: got %v", err)
	}
	if got := p.get("q1"); got != StatusNotVisited {
		t.Fatalf("rejected events must not move the status, got %s", got)
	}
}

func TestPaletteVisitIsIdempotentOnVisited(t *testing.T) {
	p := newPalette([]string{"q1"})
	if _, err := p.apply("q1", evVisit); err != nil {
		t.Fatal(err)
	}
	if _, err := p.apply("q1", evAnswer); err != nil {
		t.Fatal(err)
	}
	if _, err := p.apply("q1", evVisit); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if got := p.get("q1"); got != StatusAnswered {
		t.Fatalf("revisit must not change an answered question, got %s", got)
	}
}
