package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/studydeck/studydeck-exam/internal/db"
	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/session"
	"github.com/studydeck/studydeck-exam/internal/store"
)

var memCounter int

func openStore(t *testing.T) *store.SQLStore {
	t.Helper()
	memCounter++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", memCounter)
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return store.NewSQLStore(dbh)
}

func sampleDef() registry.TestDefinition {
	return registry.TestDefinition{
		TestID:      "t-1",
		Title:       "Mock Test 1",
		DurationSec: 3600,
		Sections:    []registry.Section{{ID: "s1", QuestionIDs: []string{"q1"}}},
		Questions: []registry.Question{
			{ID: "q1", Subject: "Physics", Type: registry.TypeSingleChoice, Options: []string{"a", "b"}, Correct: []int{0}, Marks: 4, NegativeMarks: 1},
		},
	}
}

func TestPutTestAndGetRegistry(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	if err := st.PutTest(ctx, sampleDef()); err != nil {
		t.Fatalf("put: %v", err)
	}
	reg, err := st.GetRegistry(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reg.TestID != "t-1" || reg.Len() != 1 {
		t.Fatalf("registry = %s len %d", reg.TestID, reg.Len())
	}

	// upsert replaces the definition
	def := sampleDef()
	def.Title = "Mock Test 1 (revised)"
	if err := st.PutTest(ctx, def); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	reg, err = st.GetRegistry(ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Title != "Mock Test 1 (revised)" {
		t.Fatalf("title = %s", reg.Title)
	}

	if _, err := st.GetRegistry(ctx, "nope"); !errors.Is(err, store.ErrTestNotFound) {
		t.Fatalf("missing test: got %v", err)
	}
}

func TestPutTestRejectsInvalidDefinition(t *testing.T) {
	st := openStore(t)
	def := sampleDef()
	def.Questions[0].Subject = ""
	if err := st.PutTest(context.Background(), def); err == nil {
		t.Fatal("invalid definition must be rejected at ingestion")
	}
}

func TestSaveAttemptIsIdempotent(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	res := scoring.AttemptResult{
		AttemptID:   "a-1",
		TestID:      "t-1",
		UserID:      "u-1",
		Reason:      "manual",
		TotalScore:  4,
		MaxScore:    4,
		Correct:     1,
		SubmittedAt: 1000,
		Outcomes: []scoring.QuestionOutcome{
			{QuestionID: "q1", Subject: "Physics", SectionID: "s1", Verdict: scoring.VerdictCorrect, Marks: 4, AnswerOrder: 0},
		},
	}
	if err := st.SaveAttempt(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	// a retry with a diverging payload must not overwrite the first write
	dup := res
	dup.TotalScore = 99
	if err := st.SaveAttempt(ctx, dup); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := st.GetAttempt(ctx, "a-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalScore != 4 {
		t.Fatalf("retry overwrote the stored row: score = %v", got.TotalScore)
	}
	if len(got.Outcomes) != 1 || got.Outcomes[0].Verdict != scoring.VerdictCorrect {
		t.Fatalf("outcomes = %+v", got.Outcomes)
	}
}

func TestListAttemptsOldestFirst(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	for i, at := range []int64{300, 100, 200} {
		res := scoring.AttemptResult{
			AttemptID:   fmt.Sprintf("a-%d", i),
			TestID:      "t-1",
			UserID:      "u-1",
			Reason:      "manual",
			SubmittedAt: at,
			Outcomes:    []scoring.QuestionOutcome{},
		}
		if err := st.SaveAttempt(ctx, res); err != nil {
			t.Fatal(err)
		}
	}
	// a different student's attempt must not leak in
	other := scoring.AttemptResult{AttemptID: "a-x", TestID: "t-1", UserID: "u-2", Reason: "manual", SubmittedAt: 50, Outcomes: []scoring.QuestionOutcome{}}
	if err := st.SaveAttempt(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := st.ListAttempts(ctx, "t-1", "u-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("attempts = %d, want 3", len(got))
	}
	if got[0].SubmittedAt != 100 || got[1].SubmittedAt != 200 || got[2].SubmittedAt != 300 {
		t.Fatalf("not oldest first: %d %d %d", got[0].SubmittedAt, got[1].SubmittedAt, got[2].SubmittedAt)
	}
}

func TestDraftLifecycle(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	d := session.Draft{
		SessionID:      "s-1",
		TestID:         "t-1",
		UserID:         "u-1",
		Answers:        session.AnswerSnapshot{"q1": session.Single(0)},
		Statuses:       map[string]session.QuestionStatus{"q1": session.StatusAnswered},
		AnswerOrder:    []string{"q1"},
		ActiveQuestion: "q1",
		UpdatedAt:      1000,
	}
	if err := st.SaveDraft(ctx, d); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	found, err := st.FindOpenDraft(ctx, "t-1", "u-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.SessionID != "s-1" || found.ActiveQuestion != "q1" {
		t.Fatalf("draft = %+v", found)
	}
	if v, ok := found.Answers.Get("q1"); !ok || v.Single != 0 {
		t.Fatalf("answers = %+v", found.Answers)
	}

	// autosave upserts under the same session ID
	d.ActiveQuestion = "q2"
	d.UpdatedAt = 2000
	if err := st.SaveDraft(ctx, d); err != nil {
		t.Fatal(err)
	}
	found, err = st.GetDraft(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if found.ActiveQuestion != "q2" {
		t.Fatalf("upsert missed: %+v", found)
	}

	// submission supersedes the draft
	res := scoring.AttemptResult{AttemptID: "s-1", TestID: "t-1", UserID: "u-1", Reason: "manual", SubmittedAt: 3000, Outcomes: []scoring.QuestionOutcome{}}
	if err := st.SaveAttempt(ctx, res); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetDraft(ctx, "s-1"); !errors.Is(err, store.ErrDraftNotFound) {
		t.Fatalf("draft should be gone after submission, got %v", err)
	}
	if _, err := st.FindOpenDraft(ctx, "t-1", "u-1"); !errors.Is(err, store.ErrDraftNotFound) {
		t.Fatalf("open draft lookup after submission: got %v", err)
	}
}
