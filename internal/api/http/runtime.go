package http

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studydeck/studydeck-exam/internal/session"
	"github.com/studydeck/studydeck-exam/internal/store"
	"github.com/studydeck/studydeck-exam/internal/submit"
)

// Runtime owns the live sessions of this process: one Session plus its
// submission Coordinator per open attempt. Closed attempts live only in the
// store.
type Runtime struct {
	mu      sync.Mutex
	entries map[string]*entry

	// submitted remembers released session IDs so a repeated submit (or any
	// later request for the session) maps to the already-submitted conflict
	// instead of a plain miss.
	submitted map[string]bool

	store  *store.SQLStore
	events *store.EventRepo
	now    session.Clock

	// AutosaveInterval drives the server-side draft loop per session.
	AutosaveInterval time.Duration
}

type entry struct {
	sess  *session.Session
	coord *submit.Coordinator
}

func NewRuntime(st *store.SQLStore, events *store.EventRepo, now session.Clock) *Runtime {
	if now == nil {
		now = time.Now
	}
	return &Runtime{
		entries:          map[string]*entry{},
		submitted:        map[string]bool{},
		store:            st,
		events:           events,
		now:              now,
		AutosaveInterval: 15 * time.Second,
	}
}

var errSessionNotFound = errors.New("session not found")

// StartSession begins a fresh session for a test, or resumes from the last
// autosaved draft when the student already has one open for this test.
func (rt *Runtime) StartSession(ctx context.Context, testID, userID string) (*session.Session, bool, error) {
	reg, err := rt.store.GetRegistry(ctx, testID)
	if err != nil {
		return nil, false, err
	}

	resumed := false
	var sess *session.Session
	if d, err := rt.store.FindOpenDraft(ctx, testID, userID); err == nil {
		sess, err = session.Resume(reg, d, rt.now)
		if err != nil {
			return nil, false, err
		}
		resumed = true
	} else if !errors.Is(err, store.ErrDraftNotFound) {
		return nil, false, err
	} else {
		sess = session.New(uuid.NewString(), reg, userID, rt.now)
	}

	coord := submit.NewCoordinator(sess, rt.store, rt.now)
	rt.mu.Lock()
	rt.entries[sess.ID] = &entry{sess: sess, coord: coord}
	rt.mu.Unlock()

	// forced submission on expiry runs on the timer goroutine
	sess.StartTicker(func() {
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := coord.Submit(bg, submit.ReasonExpired); err != nil && !errors.Is(err, submit.ErrAlreadySubmitted) {
			log.Printf("forced submit %s: %v", sess.ID, err)
		}
	})
	go rt.autosaveLoop(sess)

	typ := store.EventSessionStarted
	if resumed {
		typ = store.EventSessionResumed
	}
	if err := rt.events.AppendJSON(ctx, typ, sess.ID, map[string]string{"test_id": testID, "user_id": userID}); err != nil {
		log.Printf("event log %s: %v", sess.ID, err)
	}
	return sess, resumed, nil
}

// autosaveLoop persists a draft snapshot at a fixed interval until the
// session closes. Failures are logged and retried on the next tick; the
// client-driven draft endpoint covers the gap.
func (rt *Runtime) autosaveLoop(sess *session.Session) {
	ticker := time.NewTicker(rt.AutosaveInterval)
	defer ticker.Stop()
	for range ticker.C {
		if sess.Closed() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.store.SaveDraft(ctx, sess.Draft()); err != nil {
			log.Printf("autosave %s: %v", sess.ID, err)
		}
		cancel()
	}
}

func (rt *Runtime) get(sessionID string) (*entry, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if e, ok := rt.entries[sessionID]; ok {
		return e, nil
	}
	if rt.submitted[sessionID] {
		return nil, submit.ErrAlreadySubmitted
	}
	return nil, errSessionNotFound
}

// release drops a successfully persisted session from the live table.
func (rt *Runtime) release(sessionID string) {
	rt.mu.Lock()
	delete(rt.entries, sessionID)
	rt.submitted[sessionID] = true
	rt.mu.Unlock()
}
