// Package scoring evaluates a finished answer ledger against the locked-in
// question revisions and produces the immutable score snapshot.
package scoring

import (
	"log"
	"math"
	"sort"

	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

// Item is the slice of one ledger row the engine needs.
type Item struct {
	ItemID     string
	QuestionID string
	RevisionID string
	Selected   []int
	Confidence *bool
}

type CategoryTally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ConfidenceStats is the calibration cross-tab. Items with no confidence flag
// count as not confident.
type ConfidenceStats struct {
	ConfidentCorrect      int `json:"confident_correct"`
	ConfidentIncorrect    int `json:"confident_incorrect"`
	NotConfidentCorrect   int `json:"not_confident_correct"`
	NotConfidentIncorrect int `json:"not_confident_incorrect"`
}

// ItemScore is the per-item outcome written back to the ledger. Skipped items
// had no usable revision and take no part in correctness counting.
type ItemScore struct {
	ItemID    string
	Skipped   bool
	IsCorrect bool
	Points    float64
	MaxPoints float64
}

type Result struct {
	Points       float64                  `json:"points"`
	MaxPoints    float64                  `json:"max_points"`
	Percent      int                      `json:"percent"`
	Passed       bool                     `json:"passed"`
	CorrectCount int                      `json:"correct_count"`
	Breakdown    map[string]CategoryTally `json:"category_breakdown"`
	Confidence   ConfidenceStats          `json:"confidence_stats"`
	BandMessage  string                   `json:"band_message,omitempty"`
	Degraded     bool                     `json:"degraded,omitempty"`
	Items        []ItemScore              `json:"-"`
}

// Engine scores attempts. The logger receives degraded-scoring warnings;
// band feedback comes in with the quiz, not from any ambient settings.
type Engine struct {
	logger *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{logger: logger}
}

// Score computes the full result for one attempt. revisions maps revision IDs
// to locked content; meta maps question IDs to weight and categories. A
// missing revision degrades the result: the item is skipped for correctness,
// and counts toward max points only when its weight is still recoverable from
// the question row.
func (e *Engine) Score(q quiz.Quiz, items []Item, revisions map[string]catalog.QuestionRevision, meta map[string]catalog.QuestionMeta) Result {
	res := Result{Breakdown: map[string]CategoryTally{}}

	for _, it := range items {
		m, hasMeta := meta[it.QuestionID]
		weight := m.Points
		if !hasMeta || weight <= 0 {
			weight = 1
		}

		rev, hasRev := revisions[it.RevisionID]
		if !hasRev || len(rev.Answers) == 0 {
			res.Degraded = true
			score := ItemScore{ItemID: it.ItemID, Skipped: true}
			if hasMeta {
				// Weight survives on the question row: keep the ceiling honest.
				score.MaxPoints = weight
				res.MaxPoints += weight
				e.logger.Printf("scoring: attempt item %s: revision %s missing, counted toward max only", it.ItemID, it.RevisionID)
			} else {
				e.logger.Printf("scoring: attempt item %s: revision %s and question %s missing, excluded", it.ItemID, it.RevisionID, it.QuestionID)
			}
			res.Items = append(res.Items, score)
			continue
		}

		correct := indexSetEqual(it.Selected, rev.CorrectIndices())
		earned := 0.0
		if correct {
			earned = weight
			res.CorrectCount++
		}
		res.Points += earned
		res.MaxPoints += weight
		res.Items = append(res.Items, ItemScore{
			ItemID:    it.ItemID,
			IsCorrect: correct,
			Points:    earned,
			MaxPoints: weight,
		})

		for _, cat := range m.CategoryIDs {
			t := res.Breakdown[cat]
			t.Total++
			if correct {
				t.Correct++
			}
			res.Breakdown[cat] = t
		}

		confident := it.Confidence != nil && *it.Confidence
		switch {
		case confident && correct:
			res.Confidence.ConfidentCorrect++
		case confident && !correct:
			res.Confidence.ConfidentIncorrect++
		case !confident && correct:
			res.Confidence.NotConfidentCorrect++
		default:
			res.Confidence.NotConfidentIncorrect++
		}
	}

	res.Percent = RoundPercent(res.Points, res.MaxPoints)
	res.Passed = res.Percent >= q.PassPercent
	if band, ok := quiz.MatchBand(q.BandFeedback, res.Percent); ok {
		res.BandMessage = band.Message
	}
	return res
}

// RoundPercent rounds half up (away from zero is identical for non-negative
// input). Zero max points defines 0%.
func RoundPercent(points, maxPoints float64) int {
	if maxPoints <= 0 {
		return 0
	}
	return int(math.Round(points / maxPoints * 100))
}

// indexSetEqual compares selections against the answer key as sorted sets:
// binary correctness, no partial credit for subset overlap.
func indexSetEqual(selected, correct []int) bool {
	if len(selected) != len(correct) {
		return false
	}
	a := append([]int(nil), selected...)
	b := append([]int(nil), correct...)
	sort.Ints(a)
	sort.Ints(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
