// Package submit owns the end of a session's life: the exactly-once
// transition to closed, the pure scoring pass, and the fallible handoff to
// the attempt persistence collaborator.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/session"
)

// ErrAlreadySubmitted is returned when submit is called on a session that is
// already closed. The stored result is never recomputed or re-posted.
var ErrAlreadySubmitted = errors.New("attempt already submitted")

// Reasons a submission can be triggered.
const (
	ReasonManual  = "manual"
	ReasonExpired = "expired"
)

// PersistenceError reports that scoring succeeded but the attempt could not
// be persisted. The computed result is retained on the coordinator; Retry
// re-posts it under the same idempotency key without rescoring.
type PersistenceError struct {
	AttemptID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("attempt %s scored but not persisted: %v", e.AttemptID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persister is the external submission endpoint. SaveAttempt must be safe to
// retry: the attempt ID doubles as the idempotency key.
type Persister interface {
	SaveAttempt(ctx context.Context, res scoring.AttemptResult) error
}

// Coordinator drives submission for one session. The session ID is the
// attempt ID, which keeps server-side persistence idempotent across retries.
type Coordinator struct {
	mu        sync.Mutex
	sess      *session.Session
	persister Persister
	now       session.Clock

	result    *scoring.AttemptResult
	persisted bool
}

func NewCoordinator(sess *session.Session, p Persister, now session.Clock) *Coordinator {
	return &Coordinator{sess: sess, persister: p, now: now}
}

// Submit closes the session, scores the snapshot and persists the result.
// The closed-flag check-and-set is a single atomic step inside the session;
// whichever of manual submit and timer expiry loses observes
// ErrAlreadySubmitted. A manual submit cancels the pending tick before
// touching the closed flag, so the expiry path can never fire afterwards.
func (c *Coordinator) Submit(ctx context.Context, reason string) (*scoring.AttemptResult, error) {
	if reason != ReasonManual && reason != ReasonExpired {
		return nil, fmt.Errorf("unknown submit reason %q", reason)
	}
	if reason == ReasonManual {
		c.sess.StopTicker()
	}
	if !c.sess.Close(reason) {
		return nil, ErrAlreadySubmitted
	}

	c.mu.Lock()
	res := scoring.Score(c.sess.Registry(), scoring.Input{
		Snapshot:     c.sess.Snapshot(),
		TimeSpentSec: c.sess.TimeSpent(),
		AnswerOrder:  c.sess.AnswerOrder(),
	})
	res.AttemptID = c.sess.ID
	res.UserID = c.sess.UserID
	res.Reason = reason
	res.SubmittedAt = c.now().Unix()
	c.result = &res
	c.mu.Unlock()

	return c.persist(ctx)
}

// Retry re-posts a retained result after a persistence failure. Scoring is
// not repeated; the result returned is byte-for-byte the one computed at
// submission time.
func (c *Coordinator) Retry(ctx context.Context) (*scoring.AttemptResult, error) {
	c.mu.Lock()
	pending := c.result != nil && !c.persisted
	c.mu.Unlock()
	if !pending {
		return nil, errors.New("no unpersisted attempt to retry")
	}
	return c.persist(ctx)
}

// Result returns the retained attempt result, if submission has happened.
func (c *Coordinator) Result() (*scoring.AttemptResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil, false
	}
	cp := *c.result
	return &cp, true
}

func (c *Coordinator) persist(ctx context.Context) (*scoring.AttemptResult, error) {
	c.mu.Lock()
	res := *c.result
	c.mu.Unlock()

	if err := c.persister.SaveAttempt(ctx, res); err != nil {
		return &res, &PersistenceError{AttemptID: res.AttemptID, Err: err}
	}
	c.mu.Lock()
	c.persisted = true
	c.mu.Unlock()
	return &res, nil
}
