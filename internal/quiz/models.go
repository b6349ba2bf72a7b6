package quiz

// Mode controls how a quiz is taken.
type Mode string

const (
	ModeTutorial Mode = "tutorial" // per-item feedback while answering
	ModeTimed    Mode = "timed"
)

// GenerationMode controls where an attempt's question set comes from.
type GenerationMode string

const (
	GenerationFixed   GenerationMode = "fixed"   // stored question ID list
	GenerationDynamic GenerationMode = "dynamic" // sampled from rules at start
)

// ShowAnswers controls when correct answers are revealed to the test taker.
type ShowAnswers string

const (
	ShowNever       ShowAnswers = "never"
	ShowAfterSubmit ShowAnswers = "after_submit"
	ShowAfterPass   ShowAnswers = "after_pass"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Band is one feedback message keyed by an inclusive percent range.
type Band struct {
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Message string `json:"message"`
}

// Rule is one ordered sampling rule of a dynamic quiz. Empty filters mean
// "any"; QuestionCount is the desired draw size, not a guarantee.
type Rule struct {
	ID            string   `json:"id"`
	Position      int      `json:"position"`
	BankID        string   `json:"bank_id,omitempty"`
	CategoryIDs   []string `json:"category_ids,omitempty"`
	TagIDs        []string `json:"tag_ids,omitempty"`
	Difficulties  []string `json:"difficulties,omitempty"`
	QuestionCount int      `json:"question_count"`
}

type Quiz struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Mode                Mode           `json:"mode"`
	GenerationMode      GenerationMode `json:"generation_mode"`
	TimeLimitSeconds    *int           `json:"time_limit_seconds,omitempty"` // nil = untimed
	PassPercent         int            `json:"pass_percent"`
	MaxAttempts         *int           `json:"max_attempts,omitempty"`
	AttemptDelayMinutes *int           `json:"attempt_delay_minutes,omitempty"`
	AllowSkip           bool           `json:"allow_skip"`
	AllowBackward       bool           `json:"allow_backward"`
	AllowResume         bool           `json:"allow_resume"`
	RandomizeQuestions  bool           `json:"randomize_questions"`
	RandomizeAnswers    bool           `json:"randomize_answers"`
	ShowAnswers         ShowAnswers    `json:"show_answers"`
	EnableConfidence    bool           `json:"enable_confidence"`
	BandFeedback        []Band         `json:"band_feedback,omitempty"`
	QuestionIDs         []string       `json:"question_ids,omitempty"` // fixed mode
	Rules               []Rule         `json:"rules,omitempty"`        // dynamic mode
	Status              Status         `json:"status"`
	CreatedAt           int64          `json:"created_at,omitempty"`
	UpdatedAt           int64          `json:"updated_at,omitempty"`
}
