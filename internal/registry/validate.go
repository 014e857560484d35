package registry

import (
	"errors"
	"fmt"
)

var errNoSections = errors.New("registry: test has no sections")

// NewRegistry validates a test definition and freezes it into a Registry.
// Every question must belong to exactly one section, carry a subject, and
// have an answer key consistent with its type.
func NewRegistry(def TestDefinition) (*Registry, error) {
	if def.TestID == "" {
		return nil, errors.New("registry: test_id is required")
	}
	if def.DurationSec <= 0 {
		return nil, fmt.Errorf("registry: non-positive duration %d", def.DurationSec)
	}
	if len(def.Sections) == 0 {
		return nil, errNoSections
	}

	byID := make(map[string]Question, len(def.Questions))
	for _, q := range def.Questions {
		if q.ID == "" {
			return nil, errors.New("registry: question id is required")
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate question id %s", q.ID)
		}
		if q.Subject == "" {
			return nil, fmt.Errorf("registry: question %s has no subject", q.ID)
		}
		if err := validateKey(q); err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}

	secSeen := map[string]bool{}
	assigned := map[string]string{} // questionID -> sectionID
	var order []string
	for _, s := range def.Sections {
		if s.ID == "" {
			return nil, errors.New("registry: section id is required")
		}
		if secSeen[s.ID] {
			return nil, fmt.Errorf("registry: duplicate section id %s", s.ID)
		}
		secSeen[s.ID] = true
		if s.TimeLimitSec < 0 {
			return nil, fmt.Errorf("registry: negative time_limit_sec in section %s", s.ID)
		}
		if len(s.QuestionIDs) == 0 {
			return nil, fmt.Errorf("registry: section %s has no questions", s.ID)
		}
		for _, qid := range s.QuestionIDs {
			if _, ok := byID[qid]; !ok {
				return nil, fmt.Errorf("registry: section %s references unknown question %s", s.ID, qid)
			}
			if prev, ok := assigned[qid]; ok {
				return nil, fmt.Errorf("registry: question %s in sections %s and %s", qid, prev, s.ID)
			}
			assigned[qid] = s.ID
			order = append(order, qid)
		}
	}
	if len(assigned) != len(byID) {
		for id := range byID {
			if _, ok := assigned[id]; !ok {
				return nil, fmt.Errorf("registry: question %s not assigned to any section", id)
			}
		}
	}

	sections := make([]Section, len(def.Sections))
	copy(sections, def.Sections)
	return &Registry{
		TestID:      def.TestID,
		Title:       def.Title,
		DurationSec: def.DurationSec,
		sections:    sections,
		questions:   byID,
		order:       order,
	}, nil
}

func validateKey(q Question) error {
	switch q.Type {
	case TypeSingleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("registry: question %s needs at least 2 options", q.ID)
		}
		if len(q.Correct) != 1 {
			return fmt.Errorf("registry: question %s must have exactly one correct option", q.ID)
		}
		return validateIndices(q)
	case TypeMultiChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("registry: question %s needs at least 2 options", q.ID)
		}
		if len(q.Correct) == 0 {
			return fmt.Errorf("registry: question %s has an empty answer key", q.ID)
		}
		return validateIndices(q)
	case TypeNumerical:
		if q.Numeric == nil {
			return fmt.Errorf("registry: question %s has no numeric key", q.ID)
		}
		if q.Numeric.Lo > q.Numeric.Hi {
			return fmt.Errorf("registry: question %s has inverted range [%v, %v]", q.ID, q.Numeric.Lo, q.Numeric.Hi)
		}
		return nil
	default:
		return fmt.Errorf("registry: question %s has unsupported type %q", q.ID, q.Type)
	}
}

func validateIndices(q Question) error {
	seen := map[int]bool{}
	for _, i := range q.Correct {
		if i < 0 || i >= len(q.Options) {
			return fmt.Errorf("registry: question %s correct index %d out of range", q.ID, i)
		}
		if seen[i] {
			return fmt.Errorf("registry: question %s repeats correct index %d", q.ID, i)
		}
		seen[i] = true
	}
	return nil
}
