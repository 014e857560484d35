package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Session lifecycle event types appended to the log.
const (
	EventSessionStarted   = "session_started"
	EventSessionResumed   = "session_resumed"
	EventDraftSaved       = "draft_saved"
	EventAttemptSubmitted = "attempt_submitted"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventRepo is an append-only log of session lifecycle events, keyed by
// session/attempt ID.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = "local"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// AppendJSON marshals data and appends one event. Log failures are the
// caller's to decide on; the log is advisory, not part of the submit path.
func (r *EventRepo) AppendJSON(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(buf)})
}
