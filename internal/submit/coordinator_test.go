package submit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/session"
	"github.com/studydeck/studydeck-exam/internal/submit"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}
func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakePersister records saves and can fail on demand.
type fakePersister struct {
	mu    sync.Mutex
	saved []scoring.AttemptResult
	fail  error
}

func (p *fakePersister) SaveAttempt(_ context.Context, res scoring.AttemptResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.saved = append(p.saved, res)
	return nil
}

func (p *fakePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func tenQuestionPaper(t *testing.T) *registry.Registry {
	t.Helper()
	ids := []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8", "q9"}
	qs := make([]registry.Question, 0, len(ids))
	for _, id := range ids {
		qs = append(qs, registry.Question{
			ID: id, Subject: "GK", Type: registry.TypeSingleChoice,
			Options: []string{"a", "b", "c", "d"}, Correct: []int{1},
			Marks: 4, NegativeMarks: 1,
		})
	}
	reg, err := registry.NewRegistry(registry.TestDefinition{
		TestID:      "t-10",
		DurationSec: 1800,
		Sections:    []registry.Section{{ID: "gk", QuestionIDs: ids}},
		Questions:   qs,
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func answerFirstN(t *testing.T, s *session.Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.SetAnswer(s.ActiveQuestion(), session.Single(1)); err != nil {
			t.Fatal(err)
		}
		if err := s.Next(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSubmitIsExactlyOnce(t *testing.T) {
	clk := newFakeClock()
	s := session.New("s-1", tenQuestionPaper(t), "u-1", clk.Now)
	p := &fakePersister{}
	c := submit.NewCoordinator(s, p, clk.Now)

	res, err := c.Submit(context.Background(), submit.ReasonManual)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if res.AttemptID != "s-1" || res.Reason != submit.ReasonManual {
		t.Fatalf("result = %+v", res)
	}

	if _, err := c.Submit(context.Background(), submit.ReasonManual); !errors.Is(err, submit.ErrAlreadySubmitted) {
		t.Fatalf("second submit: got %v", err)
	}
	if _, err := c.Submit(context.Background(), submit.ReasonExpired); !errors.Is(err, submit.ErrAlreadySubmitted) {
		t.Fatalf("expired after manual: got %v", err)
	}
	if p.count() != 1 {
		t.Fatalf("persisted %d times, want 1", p.count())
	}
}

func TestForcedSubmissionScoresPartialAttempt(t *testing.T) {
	clk := newFakeClock()
	s := session.New("s-2", tenQuestionPaper(t), "u-1", clk.Now)
	p := &fakePersister{}
	c := submit.NewCoordinator(s, p, clk.Now)

	answerFirstN(t, s, 3)
	clk.Advance(30 * time.Minute) // timer hits zero

	if !s.Tick() {
		t.Fatal("expected expiry")
	}
	res, err := c.Submit(context.Background(), submit.ReasonExpired)
	if err != nil {
		t.Fatalf("forced submit: %v", err)
	}
	if res.Correct != 3 || res.Unattempted != 7 {
		t.Fatalf("correct=%d unattempted=%d, want 3/7", res.Correct, res.Unattempted)
	}
	if rem := s.Remaining(); rem != 0 {
		t.Fatalf("remaining after close = %v, want 0", rem)
	}
	if _, err := c.Submit(context.Background(), submit.ReasonManual); !errors.Is(err, submit.ErrAlreadySubmitted) {
		t.Fatalf("manual after forced: got %v", err)
	}
}

func TestManualAndExpiryRace(t *testing.T) {
	clk := newFakeClock()
	s := session.New("s-3", tenQuestionPaper(t), "u-1", clk.Now)
	p := &fakePersister{}
	c := submit.NewCoordinator(s, p, clk.Now)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = c.Submit(context.Background(), submit.ReasonManual)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = c.Submit(context.Background(), submit.ReasonExpired)
	}()
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, submit.ErrAlreadySubmitted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if p.count() != 1 {
		t.Fatalf("persisted %d times, want 1", p.count())
	}
}

func TestPersistenceFailureRetainsResult(t *testing.T) {
	clk := newFakeClock()
	s := session.New("s-4", tenQuestionPaper(t), "u-1", clk.Now)
	p := &fakePersister{fail: errors.New("network down")}
	c := submit.NewCoordinator(s, p, clk.Now)

	answerFirstN(t, s, 2)

	res, err := c.Submit(context.Background(), submit.ReasonManual)
	var perr *submit.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("want PersistenceError, got %v", err)
	}
	if res == nil || res.Correct != 2 {
		t.Fatalf("scored result must be returned alongside the failure: %+v", res)
	}

	// a second manual submit must not rescore
	if _, err := c.Submit(context.Background(), submit.ReasonManual); !errors.Is(err, submit.ErrAlreadySubmitted) {
		t.Fatalf("resubmit after failure: got %v", err)
	}

	// network recovers; retry persists the retained result unchanged
	p.mu.Lock()
	p.fail = nil
	p.mu.Unlock()
	retried, err := c.Retry(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.SubmittedAt != res.SubmittedAt || retried.TotalScore != res.TotalScore {
		t.Fatalf("retry must not recompute: %+v vs %+v", retried, res)
	}
	if p.count() != 1 {
		t.Fatalf("persisted %d times, want 1", p.count())
	}

	// nothing left to retry
	if _, err := c.Retry(context.Background()); err == nil {
		t.Fatal("retry with nothing pending must fail")
	}
}

func TestTickerExpiryDrivesForcedSubmit(t *testing.T) {
	// real clock, short duration: exercise the RunTicker path end to end
	reg, err := registry.NewRegistry(registry.TestDefinition{
		TestID:      "t-fast",
		DurationSec: 1,
		Sections:    []registry.Section{{ID: "s", QuestionIDs: []string{"q"}}},
		Questions: []registry.Question{{
			ID: "q", Subject: "GK", Type: registry.TypeSingleChoice,
			Options: []string{"a", "b"}, Correct: []int{0}, Marks: 1,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := session.New("s-5", reg, "u-1", time.Now)
	p := &fakePersister{}
	c := submit.NewCoordinator(s, p, time.Now)

	done := make(chan struct{})
	s.StartTicker(func() {
		if _, err := c.Submit(context.Background(), submit.ReasonExpired); err != nil {
			t.Errorf("forced submit: %v", err)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expiry never fired")
	}
	if !s.Closed() {
		t.Fatal("session must be closed after forced submit")
	}
	if got, _ := c.Result(); got == nil || got.Reason != submit.ReasonExpired {
		t.Fatalf("result = %+v", got)
	}
}
