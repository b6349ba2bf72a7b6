package http

import (
	"testing"

	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

func boolPtr(b bool) *bool { return &b }

func fixtureRevision() catalog.QuestionRevision {
	return catalog.QuestionRevision{
		ID:   "r1",
		Stem: "Pick one",
		Answers: []catalog.Answer{
			{Text: "a"},
			{Text: "b", IsCorrect: true},
			{Text: "c"},
		},
		FeedbackCorrect:   "nice",
		FeedbackIncorrect: "nope",
	}
}

func TestRevealAnswersPolicy(t *testing.T) {
	passed := boolPtr(true)
	failed := boolPtr(false)
	cases := []struct {
		name   string
		show   quiz.ShowAnswers
		status attempt.Status
		passed *bool
		want   bool
	}{
		{"in progress never reveals", quiz.ShowAfterSubmit, attempt.StatusInProgress, nil, false},
		{"abandoned never reveals", quiz.ShowAfterSubmit, attempt.StatusAbandoned, nil, false},
		{"after submit", quiz.ShowAfterSubmit, attempt.StatusSubmitted, failed, true},
		{"never", quiz.ShowNever, attempt.StatusSubmitted, passed, false},
		{"after pass, passed", quiz.ShowAfterPass, attempt.StatusSubmitted, passed, true},
		{"after pass, failed", quiz.ShowAfterPass, attempt.StatusSubmitted, failed, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q := quiz.Quiz{ShowAnswers: c.show}
			a := attempt.Attempt{Status: c.status, Passed: c.passed}
			if got := revealAnswers(q, a); got != c.want {
				t.Fatalf("reveal = %v, want %v", got, c.want)
			}
		})
	}
}

func TestBuildAttemptViewHidesCorrectnessInProgress(t *testing.T) {
	q := quiz.Quiz{ShowAnswers: quiz.ShowAfterSubmit}
	a := attempt.Attempt{Status: attempt.StatusInProgress}
	items := []attempt.Item{{ID: "i1", RevisionID: "r1", Selected: []int{1}}}
	revs := map[string]catalog.QuestionRevision{"r1": fixtureRevision()}

	view := buildAttemptView(q, a, items, revs)
	if len(view.Items) != 1 {
		t.Fatalf("items = %d", len(view.Items))
	}
	iv := view.Items[0]
	if iv.Stem != "Pick one" || len(iv.Answers) != 3 {
		t.Fatalf("item view = %+v", iv)
	}
	for _, av := range iv.Answers {
		if av.IsCorrect != nil || av.Feedback != "" {
			t.Fatalf("correctness leaked before submit: %+v", av)
		}
	}
	if iv.IsCorrect != nil || iv.Feedback != "" {
		t.Fatalf("item feedback leaked before submit: %+v", iv)
	}
}

func TestBuildAttemptViewRevealsAfterSubmit(t *testing.T) {
	q := quiz.Quiz{ShowAnswers: quiz.ShowAfterSubmit}
	a := attempt.Attempt{Status: attempt.StatusSubmitted, Passed: boolPtr(true)}
	items := []attempt.Item{{
		ID: "i1", RevisionID: "r1", Selected: []int{0}, IsCorrect: boolPtr(false),
	}}
	revs := map[string]catalog.QuestionRevision{"r1": fixtureRevision()}

	view := buildAttemptView(q, a, items, revs)
	iv := view.Items[0]
	if iv.IsCorrect == nil || *iv.IsCorrect {
		t.Fatalf("item correctness = %v", iv.IsCorrect)
	}
	if iv.Feedback != "nope" {
		t.Fatalf("feedback = %q, want incorrect-path feedback", iv.Feedback)
	}
	var sawCorrect bool
	for _, av := range iv.Answers {
		if av.IsCorrect != nil && *av.IsCorrect {
			sawCorrect = true
			if av.Index != 1 {
				t.Fatalf("correct answer index = %d", av.Index)
			}
		}
	}
	if !sawCorrect {
		t.Fatalf("answer key not revealed after submit")
	}
}

func TestBuildAttemptViewAppliesAnswerOrder(t *testing.T) {
	q := quiz.Quiz{ShowAnswers: quiz.ShowNever, RandomizeAnswers: true}
	a := attempt.Attempt{Status: attempt.StatusInProgress}
	items := []attempt.Item{{
		ID: "i1", RevisionID: "r1", Selected: []int{}, AnswerOrder: []int{2, 0, 1},
	}}
	revs := map[string]catalog.QuestionRevision{"r1": fixtureRevision()}

	view := buildAttemptView(q, a, items, revs)
	got := view.Items[0].Answers
	if got[0].Text != "c" || got[1].Text != "a" || got[2].Text != "b" {
		t.Fatalf("display order = %q,%q,%q", got[0].Text, got[1].Text, got[2].Text)
	}
	// Index stays in revision space so saved selections are unambiguous.
	if got[0].Index != 2 || got[2].Index != 1 {
		t.Fatalf("indices = %d,%d,%d", got[0].Index, got[1].Index, got[2].Index)
	}
}

func TestBuildAttemptViewMissingRevision(t *testing.T) {
	q := quiz.Quiz{ShowAnswers: quiz.ShowAfterSubmit}
	a := attempt.Attempt{Status: attempt.StatusInProgress}
	items := []attempt.Item{{ID: "i1", RevisionID: "gone", Selected: []int{}}}

	view := buildAttemptView(q, a, items, map[string]catalog.QuestionRevision{})
	if len(view.Items) != 1 || view.Items[0].Stem != "" || view.Items[0].Answers != nil {
		t.Fatalf("missing revision should yield a bare item: %+v", view.Items)
	}
}
