package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studydeck/studydeck-exam/internal/analysis"
	auth "github.com/studydeck/studydeck-exam/internal/auth/middleware"
	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/store"
)

// AnalysisHandler shapes the full report for one submitted attempt: subject
// breakdown, trends and the comparison against the student's prior attempts
// on the same test.
func AnalysisHandler(st *store.SQLStore, eng *analysis.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		res, err := st.GetAttempt(r.Context(), attemptID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		history, err := st.ListAttempts(r.Context(), res.TestID, res.UserID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		// the current attempt is not its own history
		prior := make([]scoring.AttemptResult, 0, len(history))
		for _, h := range history {
			if h.AttemptID != attemptID {
				prior = append(prior, h)
			}
		}
		report, err := eng.Analyze(res, prior)
		if err != nil {
			if errors.Is(err, analysis.ErrMissingSubject) {
				// data-integrity failure: surfaced, never defaulted
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ListAttemptsHandler returns the authenticated student's attempt summaries
// for a test.
func ListAttemptsHandler(st *store.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		userID := auth.UserID(r.Context())
		attempts, err := st.ListAttempts(r.Context(), testID, userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		out := make([]analysis.HistoricalSummary, 0, len(attempts))
		for _, a := range attempts {
			out = append(out, analysis.HistoricalSummary{
				AttemptID:    a.AttemptID,
				SubmittedAt:  a.SubmittedAt,
				TotalScore:   a.TotalScore,
				MaxScore:     a.MaxScore,
				TimeTakenSec: a.TimeTakenSec,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
