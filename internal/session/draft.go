package session

import (
	"fmt"
	"time"

	"github.com/studydeck/studydeck-exam/internal/registry"
)

// Draft is the durable snapshot of an in-progress session: answers, palette,
// answer-order log and elapsed time. Persisted by the draft store on every
// autosave and used only to survive reloads; once the server-side submission
// succeeds it is no longer authoritative.
type Draft struct {
	SessionID      string                    `json:"session_id"`
	TestID         string                    `json:"test_id"`
	UserID         string                    `json:"user_id"`
	Answers        AnswerSnapshot            `json:"answers"`
	Statuses       map[string]QuestionStatus `json:"statuses"`
	AnswerOrder    []string                  `json:"answer_order"`
	TimeSpentSec   map[string]float64        `json:"time_spent_sec"`
	ElapsedSec     float64                   `json:"elapsed_sec"`
	ActiveQuestion string                    `json:"active_question"`
	UpdatedAt      int64                     `json:"updated_at"`

	// SectionRemainingSec records, per armed timed section, how much of its
	// allocation was left at draft time. Resume re-bases the wall clock, so
	// remaining durations survive a reload where absolute deadlines cannot.
	SectionRemainingSec map[string]float64 `json:"section_remaining_sec,omitempty"`
}

// Draft captures the current state for autosave.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.settleActiveLocked()
	}
	statuses := make(map[string]QuestionStatus, len(s.pal.status))
	for k, v := range s.pal.status {
		statuses[k] = v
	}
	spent := make(map[string]float64, len(s.timeSpent))
	for k, v := range s.timeSpent {
		spent[k] = v.Seconds()
	}
	order := make([]string, len(s.answerOrder))
	copy(order, s.answerOrder)
	secRem := make(map[string]float64, len(s.clk.sectionDeadlines))
	for sid, dl := range s.clk.sectionDeadlines {
		rem := dl.Sub(s.now())
		if rem < 0 {
			rem = 0
		}
		secRem[sid] = rem.Seconds()
	}
	return Draft{
		SessionID:           s.ID,
		TestID:              s.TestID,
		UserID:              s.UserID,
		Answers:             s.answers.snapshot(),
		Statuses:            statuses,
		AnswerOrder:         order,
		TimeSpentSec:        spent,
		ElapsedSec:          s.now().Sub(s.startedAt).Seconds(),
		ActiveQuestion:      s.nav.current(),
		UpdatedAt:           s.now().Unix(),
		SectionRemainingSec: secRem,
	}
}

// Resume rehydrates a session from the last successfully saved draft. The
// countdown picks up where it left off: the deadline is start-of-resume plus
// whatever time the draft had not yet consumed.
func (s *Session) restoreLocked(d Draft) error {
	for qid, st := range d.Statuses {
		if _, ok := s.reg.Question(qid); !ok {
			return fmt.Errorf("draft references unknown question %s", qid)
		}
		s.pal.status[qid] = st
	}
	for qid, v := range d.Answers {
		q, ok := s.reg.Question(qid)
		if !ok {
			return fmt.Errorf("draft answer for unknown question %s", qid)
		}
		if err := s.answers.set(q, v); err != nil {
			return err
		}
	}
	// palette/store consistency: answered statuses need a stored answer
	for qid, st := range s.pal.status {
		hasAns := s.answers.has(qid)
		if (st == StatusAnswered || st == StatusAnsweredAndMarked) && !hasAns {
			return fmt.Errorf("draft marks %s answered without an answer", qid)
		}
		if (st == StatusNotAnswered || st == StatusMarked || st == StatusNotVisited) && hasAns {
			return fmt.Errorf("draft stores an answer for %s with status %s", qid, st)
		}
	}
	for i, qid := range d.AnswerOrder {
		s.orderIndex[qid] = i
	}
	s.answerOrder = append(s.answerOrder[:0], d.AnswerOrder...)
	for qid, sec := range d.TimeSpentSec {
		s.timeSpent[qid] = time.Duration(sec * float64(time.Second))
	}
	if d.ActiveQuestion != "" {
		if err := s.nav.goTo(d.ActiveQuestion); err != nil {
			return err
		}
	}
	// shift the start back so elapsed and the deadline account for the
	// time already consumed before the reload
	consumed := time.Duration(d.ElapsedSec * float64(time.Second))
	s.startedAt = s.now().Add(-consumed)
	s.clk.start = s.startedAt
	s.clk.deadline = s.startedAt.Add(time.Duration(s.reg.DurationSec) * time.Second)
	// rebuild section deadlines from the remaining allocations; sections the
	// draft knows about must not be re-armed fresh on re-entry
	s.clk.sectionDeadlines = make(map[string]time.Time, len(d.SectionRemainingSec))
	for sid, rem := range d.SectionRemainingSec {
		s.clk.sectionDeadlines[sid] = s.now().Add(time.Duration(rem * float64(time.Second)))
	}
	s.enterQuestionLocked()
	return nil
}

// Resume builds a session from a draft instead of starting fresh.
func Resume(reg *registry.Registry, d Draft, now Clock) (*Session, error) {
	if d.TestID != reg.TestID {
		return nil, fmt.Errorf("draft is for test %s, registry is %s", d.TestID, reg.TestID)
	}
	s := New(d.SessionID, reg, d.UserID, now)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.restoreLocked(d); err != nil {
		return nil, err
	}
	return s, nil
}
