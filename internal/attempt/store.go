package attempt

import (
	"context"
	"sort"
	"sync"
	"time"
)

// AnswerWrite overwrites one item's selection. The write is last-write-wins
// per item; Confidence and TimeSpent ride along only when non-nil.
type AnswerWrite struct {
	Selected   []int
	Confidence *bool
	TimeSpent  *time.Duration
	At         time.Time
}

type Store interface {
	// Create persists the attempt and its full item ledger atomically.
	Create(ctx context.Context, a Attempt, items []Item) error
	Get(ctx context.Context, id string) (Attempt, error)
	Items(ctx context.Context, attemptID string) ([]Item, error)
	Item(ctx context.Context, attemptID, itemID string) (Item, error)

	SaveAnswer(ctx context.Context, attemptID, itemID string, w AnswerWrite) error
	SetConfidence(ctx context.Context, attemptID, itemID string, confidence bool) error
	MarkViewed(ctx context.Context, attemptID, itemID string, at time.Time) error

	// SetActiveElapsed overwrites the cumulative active-time counter; callers
	// send totals, not deltas.
	SetActiveElapsed(ctx context.Context, attemptID string, d time.Duration) error
	SetPosition(ctx context.Context, attemptID string, pos int) error

	// Finish applies the terminal transition iff the attempt is still
	// in_progress; reports false when another writer got there first.
	Finish(ctx context.Context, attemptID string, fin FinishUpdate) (bool, error)

	CountByStatus(ctx context.Context, quizID, identityKey string, status Status) (int, error)
	LastFinishedAt(ctx context.Context, quizID, identityKey string) (time.Time, error)
	FindInProgress(ctx context.Context, quizID, identityKey string) (string, error)
	List(ctx context.Context, opts ListOpts) ([]Attempt, error)

	// AbandonStale flips in_progress attempts with no answered items started
	// before cutoff to abandoned. Returns how many were swept.
	AbandonStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ErrStoreNotFound is the store-level miss; the service layer decides whether
// it surfaces as NotFound or as an authorization failure.
var ErrStoreNotFound = errNotFound("not_found", "attempt not found")

type memoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	items    map[string][]Item // attemptID -> ordered ledger
}

// NewMemoryStore backs the service with maps. Used by tests and by the
// gateway's demo mode.
func NewMemoryStore() Store {
	return &memoryStore{
		attempts: map[string]Attempt{},
		items:    map[string][]Item{},
	}
}

func (m *memoryStore) Create(_ context.Context, a Attempt, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	ledger := make([]Item, len(items))
	copy(ledger, items)
	m.items[a.ID] = ledger
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrStoreNotFound
	}
	return a, nil
}

func (m *memoryStore) Items(_ context.Context, attemptID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ledger, ok := m.items[attemptID]
	if !ok {
		return nil, ErrStoreNotFound
	}
	out := make([]Item, len(ledger))
	copy(out, ledger)
	return out, nil
}

func (m *memoryStore) Item(_ context.Context, attemptID, itemID string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items[attemptID] {
		if it.ID == itemID {
			return it, nil
		}
	}
	return Item{}, ErrStoreNotFound
}

func (m *memoryStore) mutateItem(attemptID, itemID string, f func(*Item)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger := m.items[attemptID]
	for i := range ledger {
		if ledger[i].ID == itemID {
			f(&ledger[i])
			return nil
		}
	}
	return ErrStoreNotFound
}

func (m *memoryStore) SaveAnswer(_ context.Context, attemptID, itemID string, w AnswerWrite) error {
	return m.mutateItem(attemptID, itemID, func(it *Item) {
		it.Selected = append([]int(nil), w.Selected...)
		it.LastAnswer = w.At
		if it.FirstViewAt.IsZero() {
			it.FirstViewAt = w.At
		}
		if w.Confidence != nil {
			c := *w.Confidence
			it.Confidence = &c
		}
		if w.TimeSpent != nil {
			it.TimeSpent = *w.TimeSpent
		}
	})
}

func (m *memoryStore) SetConfidence(_ context.Context, attemptID, itemID string, confidence bool) error {
	return m.mutateItem(attemptID, itemID, func(it *Item) {
		c := confidence
		it.Confidence = &c
	})
}

func (m *memoryStore) MarkViewed(_ context.Context, attemptID, itemID string, at time.Time) error {
	return m.mutateItem(attemptID, itemID, func(it *Item) {
		if it.FirstViewAt.IsZero() {
			it.FirstViewAt = at
		}
	})
}

func (m *memoryStore) SetActiveElapsed(_ context.Context, attemptID string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrStoreNotFound
	}
	a.ActiveElapsed = d
	m.attempts[attemptID] = a
	return nil
}

func (m *memoryStore) SetPosition(_ context.Context, attemptID string, pos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrStoreNotFound
	}
	a.Position = pos
	m.attempts[attemptID] = a
	return nil
}

func (m *memoryStore) Finish(_ context.Context, attemptID string, fin FinishUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return false, ErrStoreNotFound
	}
	if a.Status != StatusInProgress {
		return false, nil
	}
	a.Status = fin.Status
	a.FinishedAt = fin.FinishedAt
	a.ActiveElapsed = fin.ActiveElapsed
	a.Elapsed = fin.Elapsed
	a.ScorePoints = fin.ScorePoints
	a.MaxPoints = fin.MaxPoints
	a.ScorePercent = fin.ScorePercent
	a.Passed = fin.Passed
	a.Degraded = fin.Degraded
	m.attempts[attemptID] = a

	byID := map[string]ItemResult{}
	for _, r := range fin.Items {
		byID[r.ItemID] = r
	}
	ledger := m.items[attemptID]
	for i := range ledger {
		if r, ok := byID[ledger[i].ID]; ok {
			ledger[i].IsCorrect = r.IsCorrect
			ledger[i].ScorePoints = r.ScorePoints
		}
	}
	return true, nil
}

func (m *memoryStore) CountByStatus(_ context.Context, quizID, identityKey string, status Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.IdentityKey() == identityKey && a.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) LastFinishedAt(_ context.Context, quizID, identityKey string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.IdentityKey() == identityKey && a.FinishedAt.After(last) {
			last = a.FinishedAt
		}
	}
	return last, nil
}

func (m *memoryStore) FindInProgress(_ context.Context, quizID, identityKey string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, a := range m.attempts {
		if a.QuizID == quizID && a.IdentityKey() == identityKey && a.Status == StatusInProgress {
			return id, nil
		}
	}
	return "", nil
}

func (m *memoryStore) List(_ context.Context, opts ListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.Identity != "" && a.IdentityKey() != opts.Identity {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) AbandonStale(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.attempts {
		if a.Status != StatusInProgress || !a.StartedAt.Before(cutoff) {
			continue
		}
		answered := false
		for _, it := range m.items[id] {
			if it.Answered() {
				answered = true
				break
			}
		}
		if answered {
			continue
		}
		a.Status = StatusAbandoned
		a.FinishedAt = cutoff
		m.attempts[id] = a
		n++
	}
	return n, nil
}
