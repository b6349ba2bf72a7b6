package attempt

import "time"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition is legal out of s.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusAbandoned
}

// QuestionRef is one entry of the frozen question list: the question and the
// exact revision the test taker saw. Captured once at start, never re-derived,
// so later catalog edits cannot drift a live or finished attempt.
type QuestionRef struct {
	QuestionID string `json:"question_id"`
	RevisionID string `json:"revision_id"`
}

// Attempt is one test-taking session of a quiz by one identity. Exactly one
// of UserID or the guest fields is set.
type Attempt struct {
	ID             string        `json:"id"`
	QuizID         string        `json:"quiz_id"`
	UserID         string        `json:"user_id,omitempty"`
	GuestEmail     string        `json:"guest_email,omitempty"`
	GuestToken     string        `json:"-"` // bearer credential, never serialized
	TokenExpiresAt time.Time     `json:"token_expires_at,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at,omitempty"`
	ActiveElapsed  time.Duration `json:"active_elapsed_ms"` // client-reported cumulative active time
	Elapsed        time.Duration `json:"elapsed_ms,omitempty"`
	Status         Status        `json:"status"`
	Position       int           `json:"current_position"`
	ScorePoints    *float64      `json:"score_points,omitempty"`
	MaxPoints      *float64      `json:"max_points,omitempty"`
	ScorePercent   *int          `json:"score_percent,omitempty"`
	Passed         *bool         `json:"passed,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`
	Questions      []QuestionRef `json:"questions"`
}

// IdentityKey is the owner handle used for attempt counting and cooldowns.
func (a Attempt) IdentityKey() string {
	if a.UserID != "" {
		return "user:" + a.UserID
	}
	return "guest:" + a.GuestEmail
}

// Item is the ledger row for one question within one attempt.
// (AttemptID, RevisionID) is unique per attempt.
type Item struct {
	ID          string        `json:"id"`
	AttemptID   string        `json:"attempt_id"`
	QuestionID  string        `json:"question_id"`
	RevisionID  string        `json:"question_revision_id"`
	OrderIndex  int           `json:"order_index"`
	AnswerOrder []int         `json:"answer_order,omitempty"` // fixed display permutation, set when answers are randomized
	Selected    []int         `json:"selected_answers"`       // indices into the revision's answers array
	Confidence  *bool         `json:"confidence,omitempty"`
	FirstViewAt time.Time     `json:"first_view_at,omitempty"`
	LastAnswer  time.Time     `json:"last_answer_at,omitempty"`
	TimeSpent   time.Duration `json:"time_spent_ms,omitempty"`
	IsCorrect   *bool         `json:"is_correct,omitempty"`
	ScorePoints *float64      `json:"score_points,omitempty"`
}

// Answered reports whether the taker has saved any selection for the item.
func (it Item) Answered() bool {
	return len(it.Selected) > 0
}

// Identity is who is calling: an authenticated user, an anonymous guest
// (email at start time, token afterwards), or a caller holding the admin
// override capability.
type Identity struct {
	UserID     string
	GuestEmail string
	GuestToken string
	Admin      bool
}

func (id Identity) Anonymous() bool { return id.UserID == "" && !id.Admin }

func (id Identity) Key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	return "guest:" + id.GuestEmail
}

type ListOpts struct {
	QuizID   string
	Identity string // IdentityKey form
	Status   Status
	Limit    int
	Offset   int
}

// ItemResult carries one item's scoring outcome into the terminal write.
type ItemResult struct {
	ItemID      string
	IsCorrect   *bool
	ScorePoints *float64
}

// FinishUpdate is the single terminal write of an attempt: status flip plus
// score fields, applied only if the attempt is still in progress.
type FinishUpdate struct {
	Status        Status // StatusSubmitted or StatusAbandoned
	FinishedAt    time.Time
	ActiveElapsed time.Duration
	Elapsed       time.Duration
	ScorePoints   *float64
	MaxPoints     *float64
	ScorePercent  *int
	Passed        *bool
	Degraded      bool
	Items         []ItemResult
}
