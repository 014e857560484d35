package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/studydeck/studydeck-exam/internal/registry"
)

// ErrInvalidAnswerShape is returned when an answer value does not match the
// question's type. The store is left unchanged.
var ErrInvalidAnswerShape = errors.New("answer value does not match question type")

// AnswerKind tags the variant held by an AnswerValue.
type AnswerKind string

const (
	KindSingle   AnswerKind = "single"
	KindMultiple AnswerKind = "multiple"
	KindNumeric  AnswerKind = "numeric"
)

// AnswerValue is a tagged variant over the three answer shapes. Exactly one
// payload field is meaningful, selected by Kind.
type AnswerValue struct {
	Kind     AnswerKind `json:"kind"`
	Single   int        `json:"single,omitempty"`
	Multiple []int      `json:"multiple,omitempty"`
	Numeric  float64    `json:"numeric,omitempty"`
}

// Single builds a single-choice answer.
func Single(optionIndex int) AnswerValue {
	return AnswerValue{Kind: KindSingle, Single: optionIndex}
}

// Multiple builds a multiple-choice answer. Indices are deduplicated and
// stored sorted so snapshots compare deterministically.
func Multiple(optionIndices ...int) AnswerValue {
	seen := map[int]bool{}
	out := make([]int, 0, len(optionIndices))
	for _, i := range optionIndices {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return AnswerValue{Kind: KindMultiple, Multiple: out}
}

// Numeric builds a numerical answer.
func Numeric(v float64) AnswerValue {
	return AnswerValue{Kind: KindNumeric, Numeric: v}
}

func (v AnswerValue) clone() AnswerValue {
	if v.Kind == KindMultiple {
		cp := make([]int, len(v.Multiple))
		copy(cp, v.Multiple)
		v.Multiple = cp
	}
	return v
}

// AnswerSnapshot is an immutable copy of the store handed to scoring. Later
// store mutation never reaches a snapshot already taken.
type AnswerSnapshot map[string]AnswerValue

// Get returns the recorded answer for a question, if any.
func (s AnswerSnapshot) Get(questionID string) (AnswerValue, bool) {
	v, ok := s[questionID]
	return v, ok
}

// answerStore is the single owner of the examinee's current answers. All
// mutation goes through set/clear; Session serializes access.
type answerStore struct {
	values map[string]AnswerValue
}

func newAnswerStore() *answerStore {
	return &answerStore{values: map[string]AnswerValue{}}
}

func (st *answerStore) set(q registry.Question, v AnswerValue) error {
	if err := checkShape(q, v); err != nil {
		return err
	}
	st.values[q.ID] = v.clone()
	return nil
}

func (st *answerStore) get(questionID string) (AnswerValue, bool) {
	v, ok := st.values[questionID]
	if !ok {
		return AnswerValue{}, false
	}
	return v.clone(), true
}

func (st *answerStore) clear(questionID string) {
	delete(st.values, questionID)
}

func (st *answerStore) has(questionID string) bool {
	_, ok := st.values[questionID]
	return ok
}

func (st *answerStore) snapshot() AnswerSnapshot {
	out := make(AnswerSnapshot, len(st.values))
	for k, v := range st.values {
		out[k] = v.clone()
	}
	return out
}

func checkShape(q registry.Question, v AnswerValue) error {
	switch q.Type {
	case registry.TypeSingleChoice:
		if v.Kind != KindSingle {
			return fmt.Errorf("%w: question %s wants a single option, got %s", ErrInvalidAnswerShape, q.ID, v.Kind)
		}
		if v.Single < 0 || v.Single >= len(q.Options) {
			return fmt.Errorf("%w: question %s option index %d out of range", ErrInvalidAnswerShape, q.ID, v.Single)
		}
	case registry.TypeMultiChoice:
		if v.Kind != KindMultiple {
			return fmt.Errorf("%w: question %s wants an option set, got %s", ErrInvalidAnswerShape, q.ID, v.Kind)
		}
		if len(v.Multiple) == 0 {
			return fmt.Errorf("%w: question %s got an empty option set", ErrInvalidAnswerShape, q.ID)
		}
		for _, i := range v.Multiple {
			if i < 0 || i >= len(q.Options) {
				return fmt.Errorf("%w: question %s option index %d out of range", ErrInvalidAnswerShape, q.ID, i)
			}
		}
	case registry.TypeNumerical:
		if v.Kind != KindNumeric {
			return fmt.Errorf("%w: question %s wants a numeric value, got %s", ErrInvalidAnswerShape, q.ID, v.Kind)
		}
	default:
		return fmt.Errorf("%w: question %s has unknown type %q", ErrInvalidAnswerShape, q.ID, q.Type)
	}
	return nil
}
