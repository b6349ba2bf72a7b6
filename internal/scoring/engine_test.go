package scoring

import (
	"io"
	"log"
	"testing"

	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

func quietEngine() *Engine {
	return NewEngine(log.New(io.Discard, "", 0))
}

func rev(id string, correct ...int) catalog.QuestionRevision {
	r := catalog.QuestionRevision{ID: id}
	n := 4
	for _, c := range correct {
		if c >= n {
			n = c + 1
		}
	}
	for i := 0; i < n; i++ {
		r.Answers = append(r.Answers, catalog.Answer{Text: "opt"})
	}
	for _, c := range correct {
		r.Answers[c].IsCorrect = true
	}
	return r
}

func boolPtr(b bool) *bool { return &b }

func TestScorePassAndFail(t *testing.T) {
	q := quiz.Quiz{PassPercent: 70}
	revs := map[string]catalog.QuestionRevision{
		"r1": rev("r1", 0),
		"r2": rev("r2", 2),
		"r3": rev("r3", 1),
		"r4": rev("r4", 3),
		"r5": rev("r5", 0),
	}
	meta := map[string]catalog.QuestionMeta{
		"q1": {QuestionID: "q1", Points: 1},
		"q2": {QuestionID: "q2", Points: 1},
		"q3": {QuestionID: "q3", Points: 1},
		"q4": {QuestionID: "q4", Points: 1},
		"q5": {QuestionID: "q5", Points: 1},
	}
	items := []Item{
		{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}},
		{ItemID: "i2", QuestionID: "q2", RevisionID: "r2", Selected: []int{2}},
		{ItemID: "i3", QuestionID: "q3", RevisionID: "r3", Selected: []int{1}},
		{ItemID: "i4", QuestionID: "q4", RevisionID: "r4", Selected: []int{0}}, // wrong
		{ItemID: "i5", QuestionID: "q5", RevisionID: "r5", Selected: []int{0}},
	}

	res := quietEngine().Score(q, items, revs, meta)
	if res.Points != 4 || res.MaxPoints != 5 {
		t.Fatalf("points = %v/%v, want 4/5", res.Points, res.MaxPoints)
	}
	if res.Percent != 80 || !res.Passed {
		t.Fatalf("percent=%d passed=%v, want 80 true", res.Percent, res.Passed)
	}
	if res.CorrectCount != 4 {
		t.Fatalf("correct count = %d, want 4", res.CorrectCount)
	}

	// Drop two more answers: 2/5 = 40%, below the bar.
	items[0].Selected = []int{1}
	items[1].Selected = nil
	res = quietEngine().Score(q, items, revs, meta)
	if res.Percent != 40 || res.Passed {
		t.Fatalf("percent=%d passed=%v, want 40 false", res.Percent, res.Passed)
	}
}

func TestScoreWeightsAndRounding(t *testing.T) {
	// 2 of 3 points earned: 66.666 rounds to 67.
	q := quiz.Quiz{PassPercent: 67}
	revs := map[string]catalog.QuestionRevision{
		"r1": rev("r1", 0),
		"r2": rev("r2", 0),
	}
	meta := map[string]catalog.QuestionMeta{
		"q1": {QuestionID: "q1", Points: 2},
		"q2": {QuestionID: "q2", Points: 1},
	}
	items := []Item{
		{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}},
		{ItemID: "i2", QuestionID: "q2", RevisionID: "r2", Selected: []int{1}},
	}
	res := quietEngine().Score(q, items, revs, meta)
	if res.Percent != 67 {
		t.Fatalf("percent = %d, want 67", res.Percent)
	}
	if !res.Passed {
		t.Fatalf("rounded percent should meet the threshold")
	}
}

func TestRoundPercent(t *testing.T) {
	cases := []struct {
		points, max float64
		want        int
	}{
		{0, 0, 0}, // zero ceiling defines 0%
		{5, 0, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{0.595, 1, 60}, // 59.5 rounds half up
		{0.594, 1, 59},
		{1, 1, 100},
	}
	for _, c := range cases {
		if got := RoundPercent(c.points, c.max); got != c.want {
			t.Errorf("RoundPercent(%v, %v) = %d, want %d", c.points, c.max, got, c.want)
		}
	}
}

func TestIndexSetEquality(t *testing.T) {
	cases := []struct {
		selected, correct []int
		want              bool
	}{
		{[]int{0, 2}, []int{2, 0}, true}, // order irrelevant
		{[]int{0}, []int{0, 2}, false},   // subset is wrong
		{[]int{0, 1, 2}, []int{0, 2}, false},
		{nil, nil, true}, // no correct answers, no selection
		{nil, []int{1}, false},
		{[]int{1}, nil, false},
	}
	for _, c := range cases {
		if got := indexSetEqual(c.selected, c.correct); got != c.want {
			t.Errorf("indexSetEqual(%v, %v) = %v, want %v", c.selected, c.correct, got, c.want)
		}
	}
}

func TestScoreCategoryBreakdown(t *testing.T) {
	q := quiz.Quiz{PassPercent: 50}
	revs := map[string]catalog.QuestionRevision{
		"r1": rev("r1", 0),
		"r2": rev("r2", 0),
	}
	meta := map[string]catalog.QuestionMeta{
		"q1": {QuestionID: "q1", Points: 1, CategoryIDs: []string{"algebra", "basics"}},
		"q2": {QuestionID: "q2", Points: 1, CategoryIDs: []string{"algebra"}},
	}
	items := []Item{
		{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}},
		{ItemID: "i2", QuestionID: "q2", RevisionID: "r2", Selected: []int{1}},
	}
	res := quietEngine().Score(q, items, revs, meta)
	if got := res.Breakdown["algebra"]; got.Correct != 1 || got.Total != 2 {
		t.Fatalf("algebra tally = %+v, want 1/2", got)
	}
	if got := res.Breakdown["basics"]; got.Correct != 1 || got.Total != 1 {
		t.Fatalf("basics tally = %+v, want 1/1", got)
	}
}

func TestScoreConfidenceCrossTab(t *testing.T) {
	q := quiz.Quiz{PassPercent: 0, EnableConfidence: true}
	revs := map[string]catalog.QuestionRevision{"r1": rev("r1", 0)}
	meta := map[string]catalog.QuestionMeta{"q1": {QuestionID: "q1", Points: 1}}
	items := []Item{
		{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}, Confidence: boolPtr(true)},
		{ItemID: "i2", QuestionID: "q1", RevisionID: "r1", Selected: []int{1}, Confidence: boolPtr(true)},
		{ItemID: "i3", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}, Confidence: boolPtr(false)},
		{ItemID: "i4", QuestionID: "q1", RevisionID: "r1", Selected: []int{1}}, // nil counts as not confident
	}
	res := quietEngine().Score(q, items, revs, meta)
	cs := res.Confidence
	if cs.ConfidentCorrect != 1 || cs.ConfidentIncorrect != 1 || cs.NotConfidentCorrect != 1 || cs.NotConfidentIncorrect != 1 {
		t.Fatalf("confidence stats = %+v, want one in each cell", cs)
	}
}

func TestScoreBandFeedback(t *testing.T) {
	q := quiz.Quiz{
		PassPercent: 60,
		BandFeedback: []quiz.Band{
			{Min: 0, Max: 59, Message: "keep practicing"},
			{Min: 60, Max: 100, Message: "well done"},
		},
	}
	revs := map[string]catalog.QuestionRevision{"r1": rev("r1", 0)}
	meta := map[string]catalog.QuestionMeta{"q1": {QuestionID: "q1", Points: 1}}

	correct := []Item{{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}}}
	res := quietEngine().Score(q, correct, revs, meta)
	if res.BandMessage != "well done" {
		t.Fatalf("band = %q, want well done", res.BandMessage)
	}

	wrong := []Item{{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{1}}}
	res = quietEngine().Score(q, wrong, revs, meta)
	if res.BandMessage != "keep practicing" {
		t.Fatalf("band = %q, want keep practicing", res.BandMessage)
	}
}

func TestScoreDegradedMissingRevision(t *testing.T) {
	q := quiz.Quiz{PassPercent: 50}
	revs := map[string]catalog.QuestionRevision{"r1": rev("r1", 0)}
	meta := map[string]catalog.QuestionMeta{
		"q1": {QuestionID: "q1", Points: 1},
		"q2": {QuestionID: "q2", Points: 2}, // revision gone, weight survives
	}
	items := []Item{
		{ItemID: "i1", QuestionID: "q1", RevisionID: "r1", Selected: []int{0}},
		{ItemID: "i2", QuestionID: "q2", RevisionID: "r-gone", Selected: []int{0}},
		{ItemID: "i3", QuestionID: "q-gone", RevisionID: "r-gone2", Selected: []int{0}}, // fully excluded
	}
	res := quietEngine().Score(q, items, revs, meta)
	if !res.Degraded {
		t.Fatalf("expected degraded result")
	}
	if res.Points != 1 || res.MaxPoints != 3 {
		t.Fatalf("points = %v/%v, want 1/3", res.Points, res.MaxPoints)
	}
	if res.Percent != 33 || res.Passed {
		t.Fatalf("percent=%d passed=%v, want 33 false", res.Percent, res.Passed)
	}
	if len(res.Items) != 3 || !res.Items[1].Skipped || !res.Items[2].Skipped {
		t.Fatalf("missing-revision items should be marked skipped: %+v", res.Items)
	}
}
