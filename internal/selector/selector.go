// Package selector draws an attempt's question set for dynamic quizzes: each
// rule samples from its filtered candidate pool, in rule order, without
// replacement across the whole attempt.
package selector

import (
	"context"
	"math/rand"
	"time"

	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

// Pool supplies candidate question IDs matching a filter. Satisfied by
// catalog.SQLStore.
type Pool interface {
	CandidateIDs(ctx context.Context, f catalog.Filter) ([]string, error)
}

type Selector struct {
	pool Pool
	rng  *rand.Rand
}

// New builds a selector with its own RNG. Tests pass a seeded source through
// NewWithRand for reproducible draws.
func New(pool Pool) *Selector {
	return NewWithRand(pool, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewWithRand(pool Pool, rng *rand.Rand) *Selector {
	return &Selector{pool: pool, rng: rng}
}

// Select samples question IDs per rule and concatenates the draws in rule
// order. A question drawn by an earlier rule is excluded from later pools, so
// the result never repeats a question. Rules whose pool is smaller than
// requested under-fill silently.
func (s *Selector) Select(ctx context.Context, rules []quiz.Rule) ([]string, error) {
	var out []string
	chosen := map[string]bool{}
	for _, r := range rules {
		pool, err := s.pool.CandidateIDs(ctx, filterOf(r))
		if err != nil {
			return nil, err
		}
		avail := pool[:0:0]
		for _, id := range pool {
			if !chosen[id] {
				avail = append(avail, id)
			}
		}
		n := r.QuestionCount
		if n > len(avail) {
			n = len(avail)
		}
		s.rng.Shuffle(len(avail), func(i, j int) { avail[i], avail[j] = avail[j], avail[i] })
		for _, id := range avail[:n] {
			chosen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// MatchingCount is the authoring-time diagnostic: how many questions a rule's
// filter currently matches. Draw time never enforces it.
func (s *Selector) MatchingCount(ctx context.Context, r quiz.Rule) (int, error) {
	pool, err := s.pool.CandidateIDs(ctx, filterOf(r))
	if err != nil {
		return 0, err
	}
	return len(pool), nil
}

// Shuffle permutes a frozen question list in place. Used once at attempt
// creation when the quiz randomizes question order.
func (s *Selector) Shuffle(ids []string) {
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// Permutation returns a random permutation of [0,n), used for per-item answer
// order when the quiz randomizes answers.
func (s *Selector) Permutation(n int) []int {
	return s.rng.Perm(n)
}

func filterOf(r quiz.Rule) catalog.Filter {
	return catalog.Filter{
		BankID:       r.BankID,
		CategoryIDs:  r.CategoryIDs,
		TagIDs:       r.TagIDs,
		Difficulties: r.Difficulties,
	}
}
