package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/scoring"
	"github.com/studydeck/studydeck-exam/internal/session"
)

func paper(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.NewRegistry(registry.TestDefinition{
		TestID:      "t-1",
		DurationSec: 3600,
		Sections: []registry.Section{
			{ID: "s1", QuestionIDs: []string{"q1", "q2", "q3"}},
		},
		Questions: []registry.Question{
			{ID: "q1", Subject: "Physics", Type: registry.TypeSingleChoice, Options: []string{"a", "b", "c", "d"}, Correct: []int{2}, Marks: 4, NegativeMarks: 1},
			{ID: "q2", Subject: "Physics", Type: registry.TypeMultiChoice, Options: []string{"a", "b", "c", "d"}, Correct: []int{1, 3}, Marks: 4, NegativeMarks: 2},
			{ID: "q3", Subject: "Chemistry", Type: registry.TypeNumerical, Numeric: &registry.NumericRange{Lo: 9.8, Hi: 10.2}, Marks: 3, NegativeMarks: 1},
		},
	})
	require.NoError(t, err)
	return reg
}

func outcomeOf(t *testing.T, res scoring.AttemptResult, qid string) scoring.QuestionOutcome {
	t.Helper()
	for _, o := range res.Outcomes {
		if o.QuestionID == qid {
			return o
		}
	}
	t.Fatalf("no outcome for %s", qid)
	return scoring.QuestionOutcome{}
}

func TestSingleChoiceScoring(t *testing.T) {
	reg := paper(t)
	cases := []struct {
		name    string
		answer  *session.AnswerValue
		verdict scoring.Verdict
		marks   float64
	}{
		{"correct option", ptr(session.Single(2)), scoring.VerdictCorrect, 4},
		{"wrong option", ptr(session.Single(0)), scoring.VerdictIncorrect, -1},
		{"no selection", nil, scoring.VerdictUnattempted, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := session.AnswerSnapshot{}
			order := []string{}
			if tc.answer != nil {
				snap["q1"] = *tc.answer
				order = append(order, "q1")
			}
			res := scoring.Score(reg, scoring.Input{Snapshot: snap, AnswerOrder: order})
			out := outcomeOf(t, res, "q1")
			assert.Equal(t, tc.verdict, out.Verdict)
			assert.Equal(t, tc.marks, out.Marks)
		})
	}
}

func TestMultiChoiceNeedsExactSet(t *testing.T) {
	reg := paper(t)
	cases := []struct {
		name    string
		answer  session.AnswerValue
		verdict scoring.Verdict
		marks   float64
	}{
		{"exact set", session.Multiple(3, 1), scoring.VerdictCorrect, 4},
		{"subset", session.Multiple(1), scoring.VerdictIncorrect, -2},
		{"superset", session.Multiple(1, 3, 0), scoring.VerdictIncorrect, -2},
		{"disjoint", session.Multiple(0, 2), scoring.VerdictIncorrect, -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := scoring.Score(reg, scoring.Input{
				Snapshot:    session.AnswerSnapshot{"q2": tc.answer},
				AnswerOrder: []string{"q2"},
			})
			out := outcomeOf(t, res, "q2")
			assert.Equal(t, tc.verdict, out.Verdict)
			assert.Equal(t, tc.marks, out.Marks)
		})
	}
}

func TestNumericalTolerance(t *testing.T) {
	reg := paper(t)
	cases := []struct {
		name    string
		value   float64
		verdict scoring.Verdict
		marks   float64
	}{
		{"inside range", 10.05, scoring.VerdictCorrect, 3},
		{"lower bound", 9.8, scoring.VerdictCorrect, 3},
		{"upper bound", 10.2, scoring.VerdictCorrect, 3},
		{"outside range", 10.3, scoring.VerdictIncorrect, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := scoring.Score(reg, scoring.Input{
				Snapshot:    session.AnswerSnapshot{"q3": session.Numeric(tc.value)},
				AnswerOrder: []string{"q3"},
			})
			out := outcomeOf(t, res, "q3")
			assert.Equal(t, tc.verdict, out.Verdict)
			assert.Equal(t, tc.marks, out.Marks)
		})
	}
}

func TestNumericalExactWhenRangeCollapsed(t *testing.T) {
	reg, err := registry.NewRegistry(registry.TestDefinition{
		TestID:      "t-x",
		DurationSec: 60,
		Sections:    []registry.Section{{ID: "s", QuestionIDs: []string{"n1"}}},
		Questions: []registry.Question{
			{ID: "n1", Subject: "Math", Type: registry.TypeNumerical, Numeric: &registry.NumericRange{Lo: 42, Hi: 42}, Marks: 2},
		},
	})
	require.NoError(t, err)

	res := scoring.Score(reg, scoring.Input{Snapshot: session.AnswerSnapshot{"n1": session.Numeric(42)}, AnswerOrder: []string{"n1"}})
	assert.Equal(t, scoring.VerdictCorrect, res.Outcomes[0].Verdict)

	res = scoring.Score(reg, scoring.Input{Snapshot: session.AnswerSnapshot{"n1": session.Numeric(42.0001)}, AnswerOrder: []string{"n1"}})
	assert.Equal(t, scoring.VerdictIncorrect, res.Outcomes[0].Verdict)
}

func TestTotalsAndDeterminism(t *testing.T) {
	reg := paper(t)
	in := scoring.Input{
		Snapshot: session.AnswerSnapshot{
			"q1": session.Single(2),   // +4
			"q2": session.Multiple(0), // -2
		},
		TimeSpentSec: map[string]float64{"q1": 30, "q2": 45, "q3": 5},
		AnswerOrder:  []string{"q2", "q1"},
	}
	res := scoring.Score(reg, in)

	assert.Equal(t, 2.0, res.TotalScore)
	assert.Equal(t, 11.0, res.MaxScore)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 1, res.Incorrect)
	assert.Equal(t, 1, res.Unattempted)
	assert.Equal(t, 80.0, res.TimeTakenSec)

	// total equals the sum of per-question marks
	var sum float64
	for _, o := range res.Outcomes {
		sum += o.Marks
	}
	assert.Equal(t, res.TotalScore, sum)

	// answer-order log flows through to outcomes
	assert.Equal(t, 1, outcomeOf(t, res, "q1").AnswerOrder)
	assert.Equal(t, 0, outcomeOf(t, res, "q2").AnswerOrder)
	assert.Equal(t, -1, outcomeOf(t, res, "q3").AnswerOrder)

	// re-scoring the same snapshot reproduces the same result
	again := scoring.Score(reg, in)
	assert.Equal(t, res, again)
}

func TestTotalScoreMayBeNegative(t *testing.T) {
	reg := paper(t)
	res := scoring.Score(reg, scoring.Input{
		Snapshot: session.AnswerSnapshot{
			"q1": session.Single(0),
			"q2": session.Multiple(0),
			"q3": session.Numeric(0),
		},
		AnswerOrder: []string{"q1", "q2", "q3"},
	})
	assert.Equal(t, -4.0, res.TotalScore)
}

func ptr(v session.AnswerValue) *session.AnswerValue { return &v }
