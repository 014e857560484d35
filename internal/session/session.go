package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studydeck/studydeck-exam/internal/registry"
)

// ErrSessionClosed is returned for any mutation attempted after the session
// has been submitted. Rejected, never silently ignored.
var ErrSessionClosed = errors.New("session is closed")

// Session is the aggregate driving one student through one timed attempt:
// answer store, palette, navigator and countdown behind a single mutex.
// The caller owns the instance; nothing here is a package-level singleton.
type Session struct {
	ID     string
	TestID string
	UserID string

	mu      sync.Mutex
	reg     *registry.Registry
	answers *answerStore
	pal     *palette
	nav     *navigator
	clk     *countdown

	closed      bool
	closeReason string

	// first-answer chronological log, feeding the analysis trends
	answerOrder []string
	orderIndex  map[string]int

	timeSpent   map[string]time.Duration
	activeSince time.Time
	startedAt   time.Time
	now         Clock

	cancelTick context.CancelFunc
}

// New starts a fresh session over a registry snapshot. The first question of
// the first section becomes active (and visited) immediately.
func New(id string, reg *registry.Registry, userID string, now Clock) *Session {
	if now == nil {
		now = time.Now
	}
	s := &Session{
		ID:          id,
		TestID:      reg.TestID,
		UserID:      userID,
		reg:         reg,
		answers:     newAnswerStore(),
		pal:         newPalette(reg.QuestionIDs()),
		nav:         newNavigator(reg),
		orderIndex:  map[string]int{},
		timeSpent:   map[string]time.Duration{},
		now:         now,
		startedAt:   now(),
		activeSince: now(),
	}
	s.clk = newCountdown(now, s.startedAt, time.Duration(reg.DurationSec)*time.Second)
	s.enterQuestionLocked()
	return s
}

// StartTicker launches the once-per-second countdown loop. onExpire runs on
// the timer goroutine when the overall clock reaches zero.
func (s *Session) StartTicker(onExpire func()) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelTick = cancel
	s.mu.Unlock()
	go s.RunTicker(ctx, onExpire)
}

// StopTicker cancels the pending tick synchronously. Called first thing by a
// manual submit so an in-flight expiry can never race it.
func (s *Session) StopTicker() {
	s.mu.Lock()
	cancel := s.cancelTick
	s.cancelTick = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close flips the session to closed. The first caller wins and gets true;
// everyone after observes false. Once closed every mutator fails.
func (s *Session) Close(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.settleActiveLocked()
	s.closed = true
	s.closeReason = reason
	return true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// SetAnswer records the student's answer for a visited question. Shape is
// validated against the question type before anything changes.
func (s *Session) SetAnswer(questionID string, v AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	q, ok := s.reg.Question(questionID)
	if !ok {
		return fmt.Errorf("unknown question %s", questionID)
	}
	if s.pal.get(questionID) == StatusNotVisited {
		return fmt.Errorf("question %s: %w", questionID, ErrNotVisited)
	}
	if err := s.answers.set(q, v); err != nil {
		return err
	}
	if _, err := s.pal.apply(questionID, evAnswer); err != nil {
		return err
	}
	if _, seen := s.orderIndex[questionID]; !seen {
		s.orderIndex[questionID] = len(s.answerOrder)
		s.answerOrder = append(s.answerOrder, questionID)
	}
	return nil
}

// ClearAnswer removes the recorded answer; answered reverts to not-answered,
// answered-and-marked reverts to marked.
func (s *Session) ClearAnswer(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.reg.Question(questionID); !ok {
		return fmt.Errorf("unknown question %s", questionID)
	}
	if _, err := s.pal.apply(questionID, evClear); err != nil {
		return err
	}
	s.answers.clear(questionID)
	return nil
}

// ToggleMark flips marked-for-review. It never implies visitation.
func (s *Session) ToggleMark(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.reg.Question(questionID); !ok {
		return fmt.Errorf("unknown question %s", questionID)
	}
	_, err := s.pal.toggleMark(questionID)
	return err
}

// GoTo jumps to any question in any section and visits it. It does not save
// the currently displayed answer; only SetAnswer writes the store.
func (s *Session) GoTo(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.settleActiveLocked()
	if err := s.nav.goTo(questionID); err != nil {
		return err
	}
	s.enterQuestionLocked()
	return nil
}

// Next advances the pointer; at the last question of a section it crosses to
// the next section, and at the end of the test it is a no-op.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.settleActiveLocked()
	if s.nav.next() {
		s.enterQuestionLocked()
	}
	return nil
}

func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.settleActiveLocked()
	if s.nav.prev() {
		s.enterQuestionLocked()
	}
	return nil
}

// enterQuestionLocked applies visitation to the now-active question and arms
// the section sub-timer on first entry into a timed section. Re-entering a
// section keeps its original deadline.
func (s *Session) enterQuestionLocked() {
	qid := s.nav.current()
	if s.pal.get(qid) == StatusNotVisited {
		_, _ = s.pal.apply(qid, evVisit)
	}
	s.activeSince = s.now()
	sec := s.nav.currentSection()
	s.clk.armSection(sec.ID, time.Duration(sec.TimeLimitSec)*time.Second)
}

// settleActiveLocked attributes time spent on the active question before the
// pointer moves or the session closes.
func (s *Session) settleActiveLocked() {
	qid := s.nav.current()
	s.timeSpent[qid] += s.now().Sub(s.activeSince)
	s.activeSince = s.now()
}

// ActiveQuestion returns the question currently displayed.
func (s *Session) ActiveQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.current()
}

// CurrentSection returns the section owning the active question.
func (s *Session) CurrentSection() registry.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.currentSection()
}

// Status derives the palette status of one question.
func (s *Session) Status(questionID string) QuestionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pal.get(questionID)
}

// Statuses returns the full palette, keyed by question ID.
func (s *Session) Statuses() map[string]QuestionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]QuestionStatus, len(s.pal.status))
	for k, v := range s.pal.status {
		out[k] = v
	}
	return out
}

// Answer returns the recorded answer for a question, if any.
func (s *Session) Answer(questionID string) (AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.get(questionID)
}

// Snapshot returns an immutable copy of the answer store for scoring.
func (s *Session) Snapshot() AnswerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.snapshot()
}

// Remaining is the overall countdown, recomputed from the deadline.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.clk.remaining()
}

// SectionRemaining is the active section's sub-countdown, when it has one.
func (s *Session) SectionRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.sectionRemaining()
}

// Elapsed is wall time since the session started, per the injected clock.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.startedAt)
}

// AnswerOrder returns question IDs in the chronological order they were
// first answered.
func (s *Session) AnswerOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.answerOrder))
	copy(out, s.answerOrder)
	return out
}

// TimeSpent returns seconds attributed to each question so far.
func (s *Session) TimeSpent() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.timeSpent))
	for k, v := range s.timeSpent {
		out[k] = v.Seconds()
	}
	return out
}

// Registry exposes the immutable question snapshot this session runs over.
func (s *Session) Registry() *registry.Registry { return s.reg }
