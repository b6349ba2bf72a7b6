package http

import (
	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

// answerView is one answer option as served to the taker. Correctness and
// feedback stay hidden until the quiz's reveal policy allows them.
type answerView struct {
	Index     int    `json:"index"` // index into the revision's answers array
	Text      string `json:"text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

type itemView struct {
	ID         string       `json:"id"`
	OrderIndex int          `json:"order_index"`
	Stem       string       `json:"stem"`
	Answers    []answerView `json:"answers"`
	Selected   []int        `json:"selected_answers"`
	Confidence *bool        `json:"confidence,omitempty"`
	IsCorrect  *bool        `json:"is_correct,omitempty"`
	Feedback   string       `json:"feedback,omitempty"`
}

type attemptView struct {
	Attempt     attempt.Attempt `json:"attempt"`
	Items       []itemView      `json:"items"`
	RemainingMS *int64          `json:"remaining_ms,omitempty"`
}

// revealAnswers applies the quiz's show-answers policy for a given attempt
// state.
func revealAnswers(q quiz.Quiz, a attempt.Attempt) bool {
	if a.Status != attempt.StatusSubmitted {
		return false
	}
	switch q.ShowAnswers {
	case quiz.ShowNever:
		return false
	case quiz.ShowAfterSubmit:
		return true
	case quiz.ShowAfterPass:
		return a.Passed != nil && *a.Passed
	default:
		return false
	}
}

// buildAttemptView assembles the taker-facing attempt: frozen revision
// content in stored item order, answers in the per-item fixed permutation,
// with correctness withheld until revealed.
func buildAttemptView(q quiz.Quiz, a attempt.Attempt, items []attempt.Item, revs map[string]catalog.QuestionRevision) attemptView {
	reveal := revealAnswers(q, a)
	view := attemptView{Attempt: a}
	for _, it := range items {
		iv := itemView{
			ID:         it.ID,
			OrderIndex: it.OrderIndex,
			Selected:   it.Selected,
			Confidence: it.Confidence,
		}
		if reveal {
			iv.IsCorrect = it.IsCorrect
		}
		rev, ok := revs[it.RevisionID]
		if !ok {
			view.Items = append(view.Items, iv)
			continue
		}
		iv.Stem = rev.Stem
		order := it.AnswerOrder
		if len(order) != len(rev.Answers) {
			order = nil
		}
		for pos := range rev.Answers {
			idx := pos
			if order != nil {
				idx = order[pos]
			}
			av := answerView{Index: idx, Text: rev.Answers[idx].Text}
			if reveal {
				c := rev.Answers[idx].IsCorrect
				av.IsCorrect = &c
				av.Feedback = rev.Answers[idx].Feedback
			}
			iv.Answers = append(iv.Answers, av)
		}
		if reveal && it.IsCorrect != nil {
			if *it.IsCorrect {
				iv.Feedback = rev.FeedbackCorrect
			} else {
				iv.Feedback = rev.FeedbackIncorrect
			}
		}
		view.Items = append(view.Items, iv)
	}
	return view
}
