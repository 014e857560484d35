package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/studydeck/studydeck-exam/internal/auth/middleware"
	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/session"
	"github.com/studydeck/studydeck-exam/internal/store"
	"github.com/studydeck/studydeck-exam/internal/submit"
)

// sessionView is the client-facing state of an open session: palette,
// pointer and clocks. Answer keys never leave the server.
type sessionView struct {
	SessionID      string                            `json:"session_id"`
	TestID         string                            `json:"test_id"`
	Resumed        bool                              `json:"resumed,omitempty"`
	ActiveQuestion string                            `json:"active_question"`
	Section        string                            `json:"section"`
	Statuses       map[string]session.QuestionStatus `json:"statuses"`
	RemainingSec   int                               `json:"remaining_sec"`
	SectionRemSec  *int                              `json:"section_remaining_sec,omitempty"`
	Closed         bool                              `json:"closed"`
}

func viewOf(s *session.Session, resumed bool) sessionView {
	v := sessionView{
		SessionID:      s.ID,
		TestID:         s.TestID,
		Resumed:        resumed,
		ActiveQuestion: s.ActiveQuestion(),
		Section:        s.CurrentSection().ID,
		Statuses:       s.Statuses(),
		RemainingSec:   int(s.Remaining().Seconds()),
		Closed:         s.Closed(),
	}
	if rem, ok := s.SectionRemaining(); ok {
		sec := int(rem.Seconds())
		v.SectionRemSec = &sec
	}
	return v
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, submit.ErrAlreadySubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrSessionClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrInvalidAnswerShape):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, errSessionNotFound), errors.Is(err, store.ErrTestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// PutTestHandler uploads a test definition (authoring is external; this is
// the ingestion boundary).
func PutTestHandler(st *store.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def registry.TestDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := st.PutTest(r.Context(), def); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"test_id": def.TestID})
	}
}

func StartSessionHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		userID := auth.UserID(r.Context())
		sess, resumed, err := rt.StartSession(r.Context(), testID, userID)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewOf(sess, resumed))
	}
}

func GetSessionHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewOf(e.sess, false))
	}
}

// answerReq is the wire shape of an answer mutation. Clear removes the
// recorded answer instead of writing one.
type answerReq struct {
	QuestionID string  `json:"question_id"`
	Clear      bool    `json:"clear,omitempty"`
	Kind       string  `json:"kind,omitempty"` // single | multiple | numeric
	Single     int     `json:"single,omitempty"`
	Multiple   []int   `json:"multiple,omitempty"`
	Numeric    float64 `json:"numeric,omitempty"`
}

func SetAnswerHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		var req answerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Clear {
			err = e.sess.ClearAnswer(req.QuestionID)
		} else {
			var v session.AnswerValue
			switch session.AnswerKind(req.Kind) {
			case session.KindSingle:
				v = session.Single(req.Single)
			case session.KindMultiple:
				v = session.Multiple(req.Multiple...)
			case session.KindNumeric:
				v = session.Numeric(req.Numeric)
			default:
				http.Error(w, "unknown answer kind", http.StatusUnprocessableEntity)
				return
			}
			err = e.sess.SetAnswer(req.QuestionID, v)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewOf(e.sess, false))
	}
}

func ToggleMarkHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		var req struct {
			QuestionID string `json:"question_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := e.sess.ToggleMark(req.QuestionID); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewOf(e.sess, false))
	}
}

// NavigateHandler handles next/prev/goto in one place; direction comes from
// the route.
func NavigateHandler(rt *Runtime, direction string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		switch direction {
		case "next":
			err = e.sess.Next()
		case "prev":
			err = e.sess.Prev()
		case "goto":
			var req struct {
				QuestionID string `json:"question_id"`
			}
			if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			err = e.sess.GoTo(req.QuestionID)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewOf(e.sess, false))
	}
}

// SaveDraftHandler is the client-driven autosave: persists the current
// snapshot so a reload can resume.
func SaveDraftHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if e.sess.Closed() {
			writeErr(w, session.ErrSessionClosed)
			return
		}
		d := e.sess.Draft()
		if err := rt.store.SaveDraft(r.Context(), d); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := rt.events.AppendJSON(r.Context(), store.EventDraftSaved, e.sess.ID, map[string]int64{"updated_at": d.UpdatedAt}); err != nil {
			log.Printf("event log %s: %v", e.sess.ID, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SubmitHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		res, err := e.coord.Submit(r.Context(), submit.ReasonManual)
		var perr *submit.PersistenceError
		switch {
		case err == nil:
			rt.release(e.sess.ID)
			_ = rt.events.AppendJSON(r.Context(), store.EventAttemptSubmitted, res.AttemptID, map[string]float64{"total_score": res.TotalScore})
			_ = json.NewEncoder(w).Encode(res)
		case errors.As(err, &perr):
			// scored but not persisted: recoverable, client should retry
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"retry": true, "attempt": res})
		default:
			writeErr(w, err)
		}
	}
}

// RetrySubmitHandler re-posts a retained result after a persistence failure.
func RetrySubmitHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := rt.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		res, err := e.coord.Retry(r.Context())
		var perr *submit.PersistenceError
		switch {
		case err == nil:
			rt.release(e.sess.ID)
			_ = json.NewEncoder(w).Encode(res)
		case errors.As(err, &perr):
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"retry": true, "attempt": res})
		default:
			writeErr(w, err)
		}
	}
}
