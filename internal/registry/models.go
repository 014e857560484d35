package registry

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeMultiChoice  QuestionType = "multi_choice"
	TypeNumerical    QuestionType = "numerical"
)

// NumericRange is an inclusive tolerance band for numerical answers.
// When Lo == Hi the answer must match exactly.
type NumericRange struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Question is one item of a test paper. Immutable for the lifetime of a
// session: the registry hands out copies, never pointers into its own state.
type Question struct {
	ID      string       `json:"id"`
	Subject string       `json:"subject"`
	Type    QuestionType `json:"type"`

	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options,omitempty"`

	// Correct holds the option indices that form the answer key for choice
	// questions. For numerical questions Numeric is the key instead.
	Correct []int         `json:"correct,omitempty"`
	Numeric *NumericRange `json:"numeric,omitempty"`

	Marks         float64 `json:"marks"`
	NegativeMarks float64 `json:"negative_marks"`
}

// Section is an ordered slice of the paper with an optional independent
// time allocation.
type Section struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	QuestionIDs  []string `json:"question_ids"`
	TimeLimitSec int      `json:"time_limit_sec,omitempty"`
}

// Registry is the per-attempt snapshot of a test: questions, section order
// and the marking scheme. Built once by NewRegistry and read-only afterwards.
type Registry struct {
	TestID      string
	Title       string
	DurationSec int

	sections  []Section
	questions map[string]Question
	order     []string // all question IDs, section order flattened
}

// TestDefinition is the wire shape returned by the test-definition
// collaborator and consumed by NewRegistry.
type TestDefinition struct {
	TestID      string     `json:"test_id"`
	Title       string     `json:"title"`
	DurationSec int        `json:"duration_sec"`
	Sections    []Section  `json:"sections"`
	Questions   []Question `json:"questions"`
}

// Sections returns the section list in paper order.
func (r *Registry) Sections() []Section {
	out := make([]Section, len(r.sections))
	copy(out, r.sections)
	return out
}

// Question returns the question with the given ID.
func (r *Registry) Question(id string) (Question, bool) {
	q, ok := r.questions[id]
	return q, ok
}

// QuestionIDs returns every question ID in paper order (sections flattened).
func (r *Registry) QuestionIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len is the total number of questions in the paper.
func (r *Registry) Len() int { return len(r.order) }

// SectionOf reports which section a question belongs to.
func (r *Registry) SectionOf(questionID string) (Section, bool) {
	for _, s := range r.sections {
		for _, id := range s.QuestionIDs {
			if id == questionID {
				return s, true
			}
		}
	}
	return Section{}, false
}
