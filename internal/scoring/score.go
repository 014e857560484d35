// Package scoring turns an answer snapshot and a question registry into an
// immutable AttemptResult under the paper's marking scheme. Scoring is pure:
// the same snapshot against the same registry always reproduces the same
// result, so persistence can be retried without recomputation drift.
package scoring

import (
	"github.com/studydeck/studydeck-exam/internal/registry"
	"github.com/studydeck/studydeck-exam/internal/session"
)

// Verdict classifies one question's outcome.
type Verdict string

const (
	VerdictCorrect     Verdict = "correct"
	VerdictIncorrect   Verdict = "incorrect"
	VerdictUnattempted Verdict = "unattempted"
)

// QuestionOutcome is the scored result of a single question.
type QuestionOutcome struct {
	QuestionID string  `json:"question_id"`
	Subject    string  `json:"subject"`
	SectionID  string  `json:"section_id"`
	Verdict    Verdict `json:"verdict"`
	Marks      float64 `json:"marks"`

	// TimeSpentSec and AnswerOrder come from the session's interaction log;
	// AnswerOrder is -1 for unattempted questions.
	TimeSpentSec float64 `json:"time_spent_sec"`
	AnswerOrder  int     `json:"answer_order"`
}

// AttemptResult is created once per session at submission time and is
// immutable afterwards.
type AttemptResult struct {
	AttemptID string `json:"attempt_id"`
	TestID    string `json:"test_id"`
	UserID    string `json:"user_id"`

	Reason      string `json:"reason"` // manual | expired
	SubmittedAt int64  `json:"submitted_at"`

	TotalScore   float64 `json:"total_score"`
	MaxScore     float64 `json:"max_score"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Unattempted  int     `json:"unattempted"`
	TimeTakenSec float64 `json:"time_taken_sec"`

	// Outcomes are in registry (paper) order.
	Outcomes []QuestionOutcome `json:"outcomes"`
}

// Input carries the session-side facts scoring needs beyond the snapshot.
type Input struct {
	Snapshot     session.AnswerSnapshot
	TimeSpentSec map[string]float64
	AnswerOrder  []string // chronological first-answer order
}

// Score walks the registry in paper order and scores every question against
// the snapshot. Unattempted earns zero; a wrong answer earns the question's
// negative marks. The total may be negative.
func Score(reg *registry.Registry, in Input) AttemptResult {
	orderIndex := make(map[string]int, len(in.AnswerOrder))
	for i, qid := range in.AnswerOrder {
		orderIndex[qid] = i
	}

	var res AttemptResult
	res.TestID = reg.TestID
	res.Outcomes = make([]QuestionOutcome, 0, reg.Len())
	for _, qid := range reg.QuestionIDs() {
		q, _ := reg.Question(qid)
		sec, _ := reg.SectionOf(qid)
		out := QuestionOutcome{
			QuestionID:   qid,
			Subject:      q.Subject,
			SectionID:    sec.ID,
			TimeSpentSec: in.TimeSpentSec[qid],
			AnswerOrder:  -1,
		}
		res.MaxScore += q.Marks
		res.TimeTakenSec += out.TimeSpentSec

		ans, attempted := in.Snapshot.Get(qid)
		if !attempted {
			out.Verdict = VerdictUnattempted
			res.Unattempted++
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		if i, ok := orderIndex[qid]; ok {
			out.AnswerOrder = i
		}
		if isCorrect(q, ans) {
			out.Verdict = VerdictCorrect
			out.Marks = q.Marks
			res.Correct++
		} else {
			out.Verdict = VerdictIncorrect
			out.Marks = -q.NegativeMarks
			res.Incorrect++
		}
		res.TotalScore += out.Marks
		res.Outcomes = append(res.Outcomes, out)
	}
	return res
}

// isCorrect matches the answer variant exhaustively against the key.
func isCorrect(q registry.Question, ans session.AnswerValue) bool {
	switch q.Type {
	case registry.TypeSingleChoice:
		return len(q.Correct) == 1 && ans.Single == q.Correct[0]
	case registry.TypeMultiChoice:
		return intSetEqual(ans.Multiple, q.Correct)
	case registry.TypeNumerical:
		if q.Numeric == nil {
			return false
		}
		return ans.Numeric >= q.Numeric.Lo && ans.Numeric <= q.Numeric.Hi
	default:
		return false
	}
}

// intSetEqual compares the selected set with the key, order-insensitive.
// Full marks only on exact equality; no partial credit in this scheme.
func intSetEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[int]int{}
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
