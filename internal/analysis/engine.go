// Package analysis derives subject-wise metrics, accuracy/speed trends and a
// historical comparison from a completed attempt. Everything here is shaped
// from timestamps and ordering captured during the attempt; the engine never
// reads the wall clock, so output is reproducible bit for bit.
package analysis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/studydeck/studydeck-exam/internal/scoring"
)

// ErrMissingSubject is a data-integrity failure: a question without a
// subject would silently corrupt the subject-wise breakdown, so analysis for
// the attempt is refused instead of guessing a bucket. The attempt itself
// stays valid.
var ErrMissingSubject = errors.New("question has no subject mapping")

// SubjectMetric aggregates per-question outcomes for one subject.
type SubjectMetric struct {
	Subject      string  `json:"subject"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Attempted    int     `json:"attempted"`
	Total        int     `json:"total"`
	Score        float64 `json:"score"`
	TimeSpentSec float64 `json:"time_spent_sec"`
}

// TrendSample is one point of the accuracy trend: cumulative accuracy after
// each answered question, in chronological answer order.
type TrendSample struct {
	QuestionID         string  `json:"question_id"`
	Correct            bool    `json:"correct"`
	CumulativeAccuracy float64 `json:"cumulative_accuracy"`
	TimeSpentSec       float64 `json:"time_spent_sec"`
}

// SpeedSegment is the average time per question over one fixed-size
// chronological segment. A partial final segment reports only the questions
// it contains.
type SpeedSegment struct {
	Index          int     `json:"index"`
	Questions      int     `json:"questions"`
	AvgTimePerQSec float64 `json:"avg_time_per_q_sec"`
}

// SubjectProgression compares accuracy between the first and second halves
// of a subject's answered questions, to signal fatigue or improvement.
type SubjectProgression struct {
	Subject            string  `json:"subject"`
	FirstHalfAccuracy  float64 `json:"first_half_accuracy"`
	SecondHalfAccuracy float64 `json:"second_half_accuracy"`
	Delta              float64 `json:"delta"`
}

// HistoricalSummary is the passthrough shape of one prior attempt.
type HistoricalSummary struct {
	AttemptID    string  `json:"attempt_id"`
	SubmittedAt  int64   `json:"submitted_at"`
	TotalScore   float64 `json:"total_score"`
	MaxScore     float64 `json:"max_score"`
	TimeTakenSec float64 `json:"time_taken_sec"`
}

// Report is the full analysis of one attempt.
type Report struct {
	AttemptID          string               `json:"attempt_id"`
	SubjectWise        []SubjectMetric      `json:"subject_wise"`
	AccuracyTrend      []TrendSample        `json:"accuracy_trend"`
	SpeedTrend         []SpeedSegment       `json:"speed_trend"`
	SubjectProgression []SubjectProgression `json:"subject_progression"`
	History            []HistoricalSummary  `json:"history"`
}

// Engine computes reports. SegmentSize is the speed-trend segment length.
type Engine struct {
	SegmentSize int
}

const defaultSegmentSize = 5

func NewEngine(segmentSize int) *Engine {
	if segmentSize <= 0 {
		segmentSize = defaultSegmentSize
	}
	return &Engine{SegmentSize: segmentSize}
}

// Analyze derives the full report for one attempt plus its history. History
// entries are consumed read-only; this engine does no fetching.
func (e *Engine) Analyze(res scoring.AttemptResult, history []scoring.AttemptResult) (Report, error) {
	for _, out := range res.Outcomes {
		if out.Subject == "" {
			return Report{}, fmt.Errorf("question %s: %w", out.QuestionID, ErrMissingSubject)
		}
	}
	answered := chronological(res.Outcomes)
	return Report{
		AttemptID:          res.AttemptID,
		SubjectWise:        subjectWise(res.Outcomes),
		AccuracyTrend:      accuracyTrend(answered),
		SpeedTrend:         speedTrend(answered, e.SegmentSize),
		SubjectProgression: subjectProgression(answered),
		History:            shapeHistory(history),
	}, nil
}

// chronological filters to answered outcomes and orders them by the
// answer-order log. Unattempted questions never produce trend samples.
func chronological(outcomes []scoring.QuestionOutcome) []scoring.QuestionOutcome {
	answered := make([]scoring.QuestionOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.AnswerOrder >= 0 {
			answered = append(answered, o)
		}
	}
	sort.Slice(answered, func(i, j int) bool {
		return answered[i].AnswerOrder < answered[j].AnswerOrder
	})
	return answered
}

// subjectWise groups outcomes by subject, preserving first-appearance order
// from the paper so output ordering is stable.
func subjectWise(outcomes []scoring.QuestionOutcome) []SubjectMetric {
	byName := map[string]*SubjectMetric{}
	var order []string
	for _, o := range outcomes {
		m, ok := byName[o.Subject]
		if !ok {
			m = &SubjectMetric{Subject: o.Subject}
			byName[o.Subject] = m
			order = append(order, o.Subject)
		}
		m.Total++
		m.TimeSpentSec += o.TimeSpentSec
		switch o.Verdict {
		case scoring.VerdictCorrect:
			m.Correct++
			m.Attempted++
		case scoring.VerdictIncorrect:
			m.Incorrect++
			m.Attempted++
		}
		m.Score += o.Marks
	}
	out := make([]SubjectMetric, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func accuracyTrend(answered []scoring.QuestionOutcome) []TrendSample {
	samples := make([]TrendSample, 0, len(answered))
	correct := 0
	for i, o := range answered {
		ok := o.Verdict == scoring.VerdictCorrect
		if ok {
			correct++
		}
		samples = append(samples, TrendSample{
			QuestionID:         o.QuestionID,
			Correct:            ok,
			CumulativeAccuracy: float64(correct) / float64(i+1),
			TimeSpentSec:       o.TimeSpentSec,
		})
	}
	return samples
}

func speedTrend(answered []scoring.QuestionOutcome, segSize int) []SpeedSegment {
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}
	var segments []SpeedSegment
	for start := 0; start < len(answered); start += segSize {
		end := start + segSize
		if end > len(answered) {
			end = len(answered)
		}
		var total float64
		for _, o := range answered[start:end] {
			total += o.TimeSpentSec
		}
		n := end - start
		segments = append(segments, SpeedSegment{
			Index:          len(segments),
			Questions:      n,
			AvgTimePerQSec: total / float64(n),
		})
	}
	return segments
}

// subjectProgression splits each subject's answered questions in two by
// chronological order; odd counts put the extra question in the first half.
func subjectProgression(answered []scoring.QuestionOutcome) []SubjectProgression {
	bySubject := map[string][]scoring.QuestionOutcome{}
	var order []string
	for _, o := range answered {
		if _, ok := bySubject[o.Subject]; !ok {
			order = append(order, o.Subject)
		}
		bySubject[o.Subject] = append(bySubject[o.Subject], o)
	}
	out := make([]SubjectProgression, 0, len(order))
	for _, subj := range order {
		qs := bySubject[subj]
		half := (len(qs) + 1) / 2
		first := accuracyOf(qs[:half])
		second := 0.0
		if len(qs) > half {
			second = accuracyOf(qs[half:])
		}
		out = append(out, SubjectProgression{
			Subject:            subj,
			FirstHalfAccuracy:  first,
			SecondHalfAccuracy: second,
			Delta:              second - first,
		})
	}
	return out
}

func accuracyOf(qs []scoring.QuestionOutcome) float64 {
	if len(qs) == 0 {
		return 0
	}
	correct := 0
	for _, o := range qs {
		if o.Verdict == scoring.VerdictCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(qs))
}

func shapeHistory(history []scoring.AttemptResult) []HistoricalSummary {
	out := make([]HistoricalSummary, 0, len(history))
	for _, h := range history {
		out = append(out, HistoricalSummary{
			AttemptID:    h.AttemptID,
			SubmittedAt:  h.SubmittedAt,
			TotalScore:   h.TotalScore,
			MaxScore:     h.MaxScore,
			TimeTakenSec: h.TimeTakenSec,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt < out[j].SubmittedAt })
	return out
}
