// Package store persists test definitions, submitted attempts and autosave
// drafts over database/sql (sqlite or postgres). Question/outcome payloads
// are JSON-encoded columns; attempt inserts are idempotent on the attempt ID
// so a submission retry never double-counts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/session"
)

var (
	ErrTestNotFound  = errors.New("test not found")
	ErrDraftNotFound = errors.New("draft not found")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// PutTest upserts a test definition. Registry construction happens at fetch
// time so a bad definition is caught before any session starts on it.
func (s *SQLStore) PutTest(ctx context.Context, def registry.TestDefinition) error {
	if _, err := registry.NewRegistry(def); err != nil {
		return err
	}
	buf, err := json.Marshal(def)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,title,duration_sec,definition_json,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, duration_sec=EXCLUDED.duration_sec, definition_json=EXCLUDED.definition_json`,
		def.TestID, def.Title, def.DurationSec, string(buf), time.Now().Unix())
	return err
}

// GetRegistry loads a test definition and freezes it into a Registry.
func (s *SQLStore) GetRegistry(ctx context.Context, testID string) (*registry.Registry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT definition_json FROM tests WHERE id=$1`, testID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	var def registry.TestDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("test %s: corrupt definition: %w", testID, err)
	}
	return registry.NewRegistry(def)
}

// SaveAttempt persists a scored attempt. The attempt ID is the idempotency
// key: a retry after a network failure hits ON CONFLICT DO NOTHING and the
// stored row stays exactly as first written.
func (s *SQLStore) SaveAttempt(ctx context.Context, res scoring.AttemptResult) error {
	buf, err := json.Marshal(res.Outcomes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,test_id,user_id,reason,total_score,max_score,correct,incorrect,unattempted,time_taken_sec,outcomes_json,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		res.AttemptID, res.TestID, res.UserID, res.Reason,
		res.TotalScore, res.MaxScore, res.Correct, res.Incorrect, res.Unattempted,
		res.TimeTakenSec, string(buf), res.SubmittedAt)
	if err != nil {
		return err
	}
	// submission supersedes the autosave draft
	_, _ = s.db.ExecContext(ctx, `DELETE FROM drafts WHERE session_id=$1`, res.AttemptID)
	return nil
}

// GetAttempt loads one persisted attempt with its per-question outcomes.
func (s *SQLStore) GetAttempt(ctx context.Context, attemptID string) (scoring.AttemptResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,test_id,user_id,reason,total_score,max_score,correct,incorrect,unattempted,time_taken_sec,outcomes_json,submitted_at
		FROM attempts WHERE id=$1`, attemptID)
	return scanAttempt(row)
}

// ListAttempts returns prior attempts for a test+student, oldest first.
// Consumed read-only by the analysis engine's historical comparison.
func (s *SQLStore) ListAttempts(ctx context.Context, testID, userID string) ([]scoring.AttemptResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,test_id,user_id,reason,total_score,max_score,correct,incorrect,unattempted,time_taken_sec,outcomes_json,submitted_at
		FROM attempts WHERE test_id=$1 AND user_id=$2 ORDER BY submitted_at ASC`, testID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []scoring.AttemptResult
	for rows.Next() {
		res, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (scoring.AttemptResult, error) {
	var res scoring.AttemptResult
	var outcomes string
	err := row.Scan(&res.AttemptID, &res.TestID, &res.UserID, &res.Reason,
		&res.TotalScore, &res.MaxScore, &res.Correct, &res.Incorrect, &res.Unattempted,
		&res.TimeTakenSec, &outcomes, &res.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scoring.AttemptResult{}, errors.New("attempt not found")
		}
		return scoring.AttemptResult{}, err
	}
	if err := json.Unmarshal([]byte(outcomes), &res.Outcomes); err != nil {
		return scoring.AttemptResult{}, fmt.Errorf("attempt %s: corrupt outcomes: %w", res.AttemptID, err)
	}
	return res, nil
}

// SaveDraft upserts the autosave snapshot for an open session.
func (s *SQLStore) SaveDraft(ctx context.Context, d session.Draft) error {
	buf, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO drafts (session_id,test_id,user_id,payload_json,updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id) DO UPDATE SET payload_json=EXCLUDED.payload_json, updated_at=EXCLUDED.updated_at`,
		d.SessionID, d.TestID, d.UserID, string(buf), d.UpdatedAt)
	return err
}

// GetDraft returns the last successfully autosaved snapshot for a session.
func (s *SQLStore) GetDraft(ctx context.Context, sessionID string) (session.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM drafts WHERE session_id=$1`, sessionID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Draft{}, ErrDraftNotFound
		}
		return session.Draft{}, err
	}
	var d session.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return session.Draft{}, fmt.Errorf("session %s: corrupt draft: %w", sessionID, err)
	}
	return d, nil
}

// FindOpenDraft locates an unsubmitted draft for a test+student, if one
// exists, so a reloaded client can resume instead of starting over.
func (s *SQLStore) FindOpenDraft(ctx context.Context, testID, userID string) (session.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM drafts WHERE test_id=$1 AND user_id=$2 ORDER BY updated_at DESC LIMIT 1`,
		testID, userID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Draft{}, ErrDraftNotFound
		}
		return session.Draft{}, err
	}
	var d session.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return session.Draft{}, fmt.Errorf("draft for test %s: corrupt payload: %w", testID, err)
	}
	return d, nil
}
