package catalog

// Answer is one option of a question revision. Order matters: attempt ledgers
// reference answers by index into this slice.
type Answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback,omitempty"`
}

// QuestionRevision is an immutable snapshot of a question's content. Once an
// attempt has locked in a revision ID, later edits to the question never
// change what that attempt saw.
type QuestionRevision struct {
	ID                string   `json:"id"`
	QuestionID        string   `json:"question_id"`
	Version           int      `json:"version"`
	Stem              string   `json:"stem"`
	Answers           []Answer `json:"answers"`
	FeedbackCorrect   string   `json:"feedback_correct,omitempty"`
	FeedbackIncorrect string   `json:"feedback_incorrect,omitempty"`
	ContentHash       string   `json:"content_hash"`
	CreatedAt         int64    `json:"created_at,omitempty"`
}

// CorrectIndices returns the sorted indices of answers flagged correct.
func (r QuestionRevision) CorrectIndices() []int {
	var out []int
	for i, a := range r.Answers {
		if a.IsCorrect {
			out = append(out, i)
		}
	}
	return out
}

type QuestionStatus string

const (
	QuestionDraft     QuestionStatus = "draft"
	QuestionPublished QuestionStatus = "published"
	QuestionDeleted   QuestionStatus = "deleted" // soft delete
)

// Question is the mutable shell around a chain of revisions: bank/category/tag
// membership, difficulty, weight and the pointer to the current revision.
type Question struct {
	ID                string         `json:"id"`
	BankID            string         `json:"bank_id,omitempty"`
	Difficulty        string         `json:"difficulty,omitempty"`
	Points            float64        `json:"points"`
	Status            QuestionStatus `json:"status"`
	CurrentRevisionID string         `json:"current_revision_id,omitempty"`
	CategoryIDs       []string       `json:"category_ids,omitempty"`
	TagIDs            []string       `json:"tag_ids,omitempty"`
}

// QuestionMeta is the slice of question state the scoring engine needs:
// weight and category membership, keyed off the live question (weights are
// not versioned with content).
type QuestionMeta struct {
	QuestionID  string
	Points      float64
	CategoryIDs []string
}

// SaveInput is the authoring payload for creating or editing a question.
type SaveInput struct {
	QuestionID        string   `json:"question_id,omitempty"` // empty = create
	BankID            string   `json:"bank_id"`
	Difficulty        string   `json:"difficulty,omitempty"`
	Points            float64  `json:"points"`
	CategoryIDs       []string `json:"category_ids,omitempty"`
	TagIDs            []string `json:"tag_ids,omitempty"`
	Stem              string   `json:"stem"`
	Answers           []Answer `json:"answers"`
	FeedbackCorrect   string   `json:"feedback_correct,omitempty"`
	FeedbackIncorrect string   `json:"feedback_incorrect,omitempty"`
}

// Filter selects candidate questions for dynamic quiz rules. Empty fields
// mean "any"; CategoryIDs and TagIDs require membership in all listed values.
type Filter struct {
	BankID       string
	CategoryIDs  []string
	TagIDs       []string
	Difficulties []string
}
