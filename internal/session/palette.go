package session

import (
	"errors"
	"fmt"
)

// QuestionStatus is the palette display status of a question. It is fully
// determined by three facts: visited, has-answer, marked.
type QuestionStatus string

const (
	StatusNotVisited        QuestionStatus = "not_visited"
	StatusNotAnswered       QuestionStatus = "not_answered"
	StatusAnswered          QuestionStatus = "answered"
	StatusMarked            QuestionStatus = "marked_for_review"
	StatusAnsweredAndMarked QuestionStatus = "answered_and_marked"
)

// ErrNotVisited is returned for actions that require prior visitation
// (answering, marking). Visitation is driven only by navigation.
var ErrNotVisited = errors.New("question has not been visited")

// paletteEvent is an input to the palette state machine.
type paletteEvent string

const (
	evVisit  paletteEvent = "visit"
	evAnswer paletteEvent = "answer"
	evClear  paletteEvent = "clear"
	evMark   paletteEvent = "mark"
	evUnmark paletteEvent = "unmark"
)

// transitions is the full palette state machine: current status x event ->
// next status. Missing entries are invalid transitions. evAnswer and evMark
// are absent from not_visited on purpose: both require prior visitation.
var transitions = map[QuestionStatus]map[paletteEvent]QuestionStatus{
	StatusNotVisited: {
		evVisit: StatusNotAnswered,
	},
	StatusNotAnswered: {
		evVisit:  StatusNotAnswered,
		evAnswer: StatusAnswered,
		evClear:  StatusNotAnswered,
		evMark:   StatusMarked,
	},
	StatusAnswered: {
		evVisit:  StatusAnswered,
		evAnswer: StatusAnswered,
		evClear:  StatusNotAnswered,
		evMark:   StatusAnsweredAndMarked,
	},
	StatusMarked: {
		evVisit:  StatusMarked,
		evAnswer: StatusAnsweredAndMarked,
		evClear:  StatusMarked,
		evUnmark: StatusNotAnswered,
	},
	StatusAnsweredAndMarked: {
		evVisit:  StatusAnsweredAndMarked,
		evAnswer: StatusAnsweredAndMarked,
		evClear:  StatusMarked,
		evUnmark: StatusAnswered,
	},
}

// StatusFor derives a status from the three underlying facts. It is the pure
// counterpart of the transition table; the two always agree.
func StatusFor(visited, hasAnswer, marked bool) QuestionStatus {
	switch {
	case !visited:
		return StatusNotVisited
	case hasAnswer && marked:
		return StatusAnsweredAndMarked
	case hasAnswer:
		return StatusAnswered
	case marked:
		return StatusMarked
	default:
		return StatusNotAnswered
	}
}

// palette tracks per-question status, advanced only through the transition
// table. Session serializes access and gates mutation on the closed flag.
type palette struct {
	status map[string]QuestionStatus
}

func newPalette(questionIDs []string) *palette {
	st := make(map[string]QuestionStatus, len(questionIDs))
	for _, id := range questionIDs {
		st[id] = StatusNotVisited
	}
	return &palette{status: st}
}

func (p *palette) get(questionID string) QuestionStatus {
	s, ok := p.status[questionID]
	if !ok {
		return StatusNotVisited
	}
	return s
}

func (p *palette) apply(questionID string, ev paletteEvent) (QuestionStatus, error) {
	cur := p.get(questionID)
	next, ok := transitions[cur][ev]
	if !ok {
		if cur == StatusNotVisited && (ev == evAnswer || ev == evMark) {
			return cur, fmt.Errorf("question %s: %w", questionID, ErrNotVisited)
		}
		return cur, fmt.Errorf("question %s: invalid palette transition %s on %s", questionID, ev, cur)
	}
	p.status[questionID] = next
	return next, nil
}

// toggleMark flips the marked fact, preserving the answered fact.
func (p *palette) toggleMark(questionID string) (QuestionStatus, error) {
	switch p.get(questionID) {
	case StatusMarked, StatusAnsweredAndMarked:
		return p.apply(questionID, evUnmark)
	default:
		return p.apply(questionID, evMark)
	}
}
