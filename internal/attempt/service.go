package attempt

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/guest"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/scoring"
)

// QuizSource supplies quiz definitions. Satisfied by quiz.SQLStore.
type QuizSource interface {
	Get(ctx context.Context, id string) (quiz.Quiz, error)
}

// Catalog is the read-only slice of the question catalog the attempt engine
// needs. The engine never mutates the catalog.
type Catalog interface {
	CurrentRevisions(ctx context.Context, questionIDs []string) (map[string]string, error)
	GetRevisions(ctx context.Context, ids []string) (map[string]catalog.QuestionRevision, error)
	Meta(ctx context.Context, questionIDs []string) (map[string]catalog.QuestionMeta, error)
}

// Picker draws the question set for dynamic quizzes. Satisfied by
// selector.Selector.
type Picker interface {
	Select(ctx context.Context, rules []quiz.Rule) ([]string, error)
	Shuffle(ids []string)
	Permutation(n int) []int
}

// EventSink receives lifecycle events; nil-safe via the noop sink.
type EventSink interface {
	Append(ctx context.Context, typ, key string, data any) error
}

type noopSink struct{}

func (noopSink) Append(context.Context, string, string, any) error { return nil }

// Service owns the attempt lifecycle: start, answer/time writes, submit,
// abandon and the lazy timeout on access. Each method is one request-scoped
// unit of work; the single conditional status transition in the store keeps
// racing submits down to one scoring pass.
type Service struct {
	store   Store
	quizzes QuizSource
	catalog Catalog
	picker  Picker
	issuer  *guest.Issuer
	engine  *scoring.Engine
	events  EventSink
	logger  *log.Logger

	allowGuests bool
	staleGrace  time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithGuests(allowed bool, issuer *guest.Issuer) Option {
	return func(s *Service) { s.allowGuests = allowed; s.issuer = issuer }
}

func WithStaleGrace(d time.Duration) Option {
	return func(s *Service) { s.staleGrace = d }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, quizzes QuizSource, cat Catalog, picker Picker, opts ...Option) *Service {
	s := &Service{
		store:      store,
		quizzes:    quizzes,
		catalog:    cat,
		picker:     picker,
		events:     noopSink{},
		logger:     log.Default(),
		staleGrace: 24 * time.Hour,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine(s.logger)
	}
	return s
}

// Start validates capacity and cooldown rules, freezes the question set and
// creates the attempt with its full ledger in one atomic write. Anonymous
// starters get a guest token minted alongside.
func (s *Service) Start(ctx context.Context, quizID string, id Identity) (Attempt, error) {
	if quizID == "" {
		return Attempt{}, errValidation("missing_quiz", "quiz id required")
	}
	if id.UserID == "" && id.GuestEmail == "" {
		return Attempt{}, errValidation("missing_identity", "a user or guest email is required")
	}
	if id.UserID == "" && !s.allowGuests {
		return Attempt{}, errNotAuthorized()
	}

	q, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return Attempt{}, errNotFound("not_found", "quiz not found")
	}
	if q.Status != quiz.StatusPublished {
		return Attempt{}, errNotFound("not_found", "quiz not found")
	}

	now := s.now().UTC()
	key := id.Key()

	if existing, err := s.store.FindInProgress(ctx, quizID, key); err != nil {
		return Attempt{}, err
	} else if existing != "" {
		return Attempt{}, errAlreadyInProgress()
	}
	if q.MaxAttempts != nil {
		n, err := s.store.CountByStatus(ctx, quizID, key, StatusSubmitted)
		if err != nil {
			return Attempt{}, err
		}
		if n >= *q.MaxAttempts {
			return Attempt{}, errAttemptsExhausted()
		}
	}
	if q.AttemptDelayMinutes != nil {
		last, err := s.store.LastFinishedAt(ctx, quizID, key)
		if err != nil {
			return Attempt{}, err
		}
		if !last.IsZero() && now.Before(last.Add(time.Duration(*q.AttemptDelayMinutes)*time.Minute)) {
			return Attempt{}, errCooldownActive()
		}
	}

	questionIDs, err := s.questionSet(ctx, q)
	if err != nil {
		return Attempt{}, err
	}
	refs, err := s.freeze(ctx, questionIDs)
	if err != nil {
		return Attempt{}, err
	}
	if len(refs) == 0 {
		return Attempt{}, errValidation("empty_quiz", "quiz has no selectable questions")
	}

	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    q.ID,
		UserID:    id.UserID,
		StartedAt: now,
		Status:    StatusInProgress,
		Questions: refs,
	}
	if id.UserID == "" {
		a.GuestEmail = id.GuestEmail
		token, exp, err := s.issuer.Issue(now)
		if err != nil {
			return Attempt{}, err
		}
		a.GuestToken = token
		a.TokenExpiresAt = exp
	}

	items, err := s.buildLedger(ctx, a, q)
	if err != nil {
		return Attempt{}, err
	}
	if err := s.store.Create(ctx, a, items); err != nil {
		return Attempt{}, err
	}
	_ = s.events.Append(ctx, "AttemptStarted", a.ID, map[string]any{
		"quiz_id": q.ID, "identity": key, "questions": len(refs),
	})
	return a, nil
}

// Retake abandons the caller's in-progress attempt on the quiz, if any, then
// starts a fresh one.
func (s *Service) Retake(ctx context.Context, quizID string, id Identity) (Attempt, error) {
	key := id.Key()
	existing, err := s.store.FindInProgress(ctx, quizID, key)
	if err != nil {
		return Attempt{}, err
	}
	if existing != "" {
		if err := s.Abandon(ctx, existing, id); err != nil {
			return Attempt{}, err
		}
	}
	return s.Start(ctx, quizID, id)
}

// Get serves an authorized view of the attempt. Reaching a timed-out
// in_progress attempt submits it first, so the caller always sees the
// post-submit state; expiry needs no background job.
func (s *Service) Get(ctx context.Context, attemptID string, id Identity) (Attempt, []Item, error) {
	a, err := s.load(ctx, attemptID, id)
	if err != nil {
		return Attempt{}, nil, err
	}
	if err := s.authorize(a, id, false); err != nil {
		return Attempt{}, nil, err
	}
	q, err := s.quizzes.Get(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if timedOut(q, a, s.now()) {
		if err := s.autoSubmit(ctx, a, q); err != nil {
			return Attempt{}, nil, err
		}
		if a, err = s.store.Get(ctx, attemptID); err != nil {
			return Attempt{}, nil, err
		}
	}
	items, err := s.store.Items(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	return a, items, nil
}

// SaveAnswer overwrites an item's selection; re-saving the same item is
// idempotent. Confidence and per-item time ride along when present.
func (s *Service) SaveAnswer(ctx context.Context, attemptID, itemID string, selected []int, confidence *bool, timeSpent *time.Duration, id Identity) error {
	_, q, err := s.liveForWrite(ctx, attemptID, id)
	if err != nil {
		return err
	}
	it, err := s.store.Item(ctx, attemptID, itemID)
	if err != nil {
		return err
	}
	revs, err := s.catalog.GetRevisions(ctx, []string{it.RevisionID})
	if err != nil {
		return err
	}
	if rev, ok := revs[it.RevisionID]; ok {
		seen := map[int]bool{}
		for _, idx := range selected {
			if idx < 0 || idx >= len(rev.Answers) {
				return errValidation("bad_answer_index", "selected answer index out of range")
			}
			if seen[idx] {
				return errValidation("duplicate_answer_index", "selected answer index repeated")
			}
			seen[idx] = true
		}
	}
	if confidence != nil && !q.EnableConfidence {
		confidence = nil
	}
	return s.store.SaveAnswer(ctx, attemptID, itemID, AnswerWrite{
		Selected:   selected,
		Confidence: confidence,
		TimeSpent:  timeSpent,
		At:         s.now().UTC(),
	})
}

// SaveConfidence updates the confidence flag without touching the answer.
func (s *Service) SaveConfidence(ctx context.Context, attemptID, itemID string, confidence bool, id Identity) error {
	if _, _, err := s.liveForWrite(ctx, attemptID, id); err != nil {
		return err
	}
	return s.store.SetConfidence(ctx, attemptID, itemID, confidence)
}

// SyncTime overwrites the cumulative active-time counter. Clients send the
// running total so parallel heartbeats cannot lose updates.
func (s *Service) SyncTime(ctx context.Context, attemptID string, active time.Duration, id Identity) error {
	if active < 0 {
		return errValidation("bad_elapsed", "active elapsed must not be negative")
	}
	if _, _, err := s.liveForWrite(ctx, attemptID, id); err != nil {
		return err
	}
	return s.store.SetActiveElapsed(ctx, attemptID, active)
}

// Navigate moves the taker's position and marks the target item viewed.
func (s *Service) Navigate(ctx context.Context, attemptID string, position int, id Identity) error {
	a, q, err := s.liveForWrite(ctx, attemptID, id)
	if err != nil {
		return err
	}
	if position < 0 || position >= len(a.Questions) {
		return errValidation("bad_position", "position out of range")
	}
	if !q.AllowBackward && position < a.Position {
		return errValidation("backward_disabled", "backward navigation is disabled for this quiz")
	}
	if !q.AllowSkip && position > a.Position+1 {
		return errValidation("skip_disabled", "skipping ahead is disabled for this quiz")
	}
	items, err := s.store.Items(ctx, attemptID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.OrderIndex == position {
			if err := s.store.MarkViewed(ctx, attemptID, it.ID, s.now().UTC()); err != nil {
				return err
			}
			break
		}
	}
	return s.store.SetPosition(ctx, attemptID, position)
}

// Submit scores the ledger and flips the attempt to submitted. A second
// submit fails with already_submitted and never re-scores.
func (s *Service) Submit(ctx context.Context, attemptID string, id Identity) (Attempt, scoring.Result, error) {
	a, err := s.load(ctx, attemptID, id)
	if err != nil {
		return Attempt{}, scoring.Result{}, err
	}
	if err := s.authorize(a, id, true); err != nil {
		return Attempt{}, scoring.Result{}, err
	}
	if a.Status.Terminal() {
		return Attempt{}, scoring.Result{}, errAlreadySubmitted()
	}
	q, err := s.quizzes.Get(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, scoring.Result{}, err
	}
	res, err := s.finish(ctx, a, q)
	if err != nil {
		return Attempt{}, scoring.Result{}, err
	}
	final, err := s.store.Get(ctx, attemptID)
	if err != nil {
		return Attempt{}, scoring.Result{}, err
	}
	return final, res, nil
}

// Abandon is the terminal dead-end: no scoring, reached by explicit retake or
// staleness. Illegal from a terminal state.
func (s *Service) Abandon(ctx context.Context, attemptID string, id Identity) error {
	a, err := s.load(ctx, attemptID, id)
	if err != nil {
		return err
	}
	if err := s.authorize(a, id, true); err != nil {
		return err
	}
	if a.Status.Terminal() {
		return errNotInProgress()
	}
	now := s.now().UTC()
	ok, err := s.store.Finish(ctx, attemptID, FinishUpdate{
		Status:        StatusAbandoned,
		FinishedAt:    now,
		ActiveElapsed: a.ActiveElapsed,
		Elapsed:       now.Sub(a.StartedAt),
	})
	if err != nil {
		return err
	}
	if !ok {
		return errNotInProgress()
	}
	_ = s.events.Append(ctx, "AttemptAbandoned", attemptID, map[string]any{"quiz_id": a.QuizID})
	return nil
}

// List returns attempts the caller may see: admins anything, everyone else
// only their own.
func (s *Service) List(ctx context.Context, opts ListOpts, id Identity) ([]Attempt, error) {
	if !id.Admin {
		opts.Identity = id.Key()
	}
	return s.store.List(ctx, opts)
}

// SweepStale abandons in_progress attempts with no answers older than the
// grace window. Run periodically by the gateway.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	return s.store.AbandonStale(ctx, s.now().UTC().Add(-s.staleGrace))
}

// Remaining exposes the timeout policy for one attempt.
func (s *Service) Remaining(ctx context.Context, attemptID string, id Identity) (time.Duration, bool, error) {
	a, err := s.load(ctx, attemptID, id)
	if err != nil {
		return 0, false, err
	}
	if err := s.authorize(a, id, false); err != nil {
		return 0, false, err
	}
	q, err := s.quizzes.Get(ctx, a.QuizID)
	if err != nil {
		return 0, false, err
	}
	left, ok := Remaining(q, a, s.now())
	return left, ok, nil
}

// ---- internals ----

// load hides existence from unauthorized callers: a miss surfaces as
// not_authorized unless the caller holds the admin override.
func (s *Service) load(ctx context.Context, attemptID string, id Identity) (Attempt, error) {
	if attemptID == "" {
		return Attempt{}, errValidation("missing_attempt", "attempt id required")
	}
	a, err := s.store.Get(ctx, attemptID)
	if err != nil {
		if KindOf(err) == KindNotFound && !id.Admin {
			return Attempt{}, errNotAuthorized()
		}
		return Attempt{}, err
	}
	return a, nil
}

// authorize implements the access rule: authenticated owner, matching guest
// token (unexpired for writes, any age for reads), or admin override.
func (s *Service) authorize(a Attempt, id Identity, write bool) error {
	if id.Admin {
		return nil
	}
	if a.UserID != "" && id.UserID == a.UserID {
		return nil
	}
	if a.GuestToken != "" && guest.Match(a.GuestToken, id.GuestToken) {
		if !write {
			return nil
		}
		if !guest.Expired(a.TokenExpiresAt, s.now()) {
			return nil
		}
	}
	return errNotAuthorized()
}

// liveForWrite loads, authorizes a write and enforces state: terminal
// attempts refuse with not_in_progress, expired ones are submitted on the
// spot and refuse with timed_out.
func (s *Service) liveForWrite(ctx context.Context, attemptID string, id Identity) (Attempt, quiz.Quiz, error) {
	a, err := s.load(ctx, attemptID, id)
	if err != nil {
		return Attempt{}, quiz.Quiz{}, err
	}
	if err := s.authorize(a, id, true); err != nil {
		return Attempt{}, quiz.Quiz{}, err
	}
	if a.Status != StatusInProgress {
		return Attempt{}, quiz.Quiz{}, errNotInProgress()
	}
	q, err := s.quizzes.Get(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, quiz.Quiz{}, err
	}
	if timedOut(q, a, s.now()) {
		if err := s.autoSubmit(ctx, a, q); err != nil {
			return Attempt{}, quiz.Quiz{}, err
		}
		return Attempt{}, quiz.Quiz{}, errTimedOut()
	}
	return a, q, nil
}

func (s *Service) autoSubmit(ctx context.Context, a Attempt, q quiz.Quiz) error {
	_, err := s.finish(ctx, a, q)
	if err != nil && KindOf(err) == KindStateConflict {
		// Another access path got there first; the attempt is terminal now.
		return nil
	}
	return err
}

// finish runs the single scoring pass and applies the conditional terminal
// write. Exactly one caller wins the status transition.
func (s *Service) finish(ctx context.Context, a Attempt, q quiz.Quiz) (scoring.Result, error) {
	items, err := s.store.Items(ctx, a.ID)
	if err != nil {
		return scoring.Result{}, err
	}
	revIDs := make([]string, 0, len(a.Questions))
	qIDs := make([]string, 0, len(a.Questions))
	for _, ref := range a.Questions {
		revIDs = append(revIDs, ref.RevisionID)
		qIDs = append(qIDs, ref.QuestionID)
	}
	revs, err := s.catalog.GetRevisions(ctx, revIDs)
	if err != nil {
		return scoring.Result{}, err
	}
	meta, err := s.catalog.Meta(ctx, qIDs)
	if err != nil {
		return scoring.Result{}, err
	}

	input := make([]scoring.Item, len(items))
	for i, it := range items {
		input[i] = scoring.Item{
			ItemID:     it.ID,
			QuestionID: it.QuestionID,
			RevisionID: it.RevisionID,
			Selected:   it.Selected,
			Confidence: it.Confidence,
		}
	}
	res := s.engine.Score(q, input, revs, meta)

	now := s.now().UTC()
	fin := FinishUpdate{
		Status:        StatusSubmitted,
		FinishedAt:    now,
		ActiveElapsed: a.ActiveElapsed,
		Elapsed:       now.Sub(a.StartedAt),
		ScorePoints:   &res.Points,
		MaxPoints:     &res.MaxPoints,
		ScorePercent:  &res.Percent,
		Passed:        &res.Passed,
		Degraded:      res.Degraded,
	}
	for _, sc := range res.Items {
		r := ItemResult{ItemID: sc.ItemID}
		if !sc.Skipped {
			correct := sc.IsCorrect
			points := sc.Points
			r.IsCorrect = &correct
			r.ScorePoints = &points
		}
		fin.Items = append(fin.Items, r)
	}

	ok, err := s.store.Finish(ctx, a.ID, fin)
	if err != nil {
		return scoring.Result{}, err
	}
	if !ok {
		return scoring.Result{}, errAlreadySubmitted()
	}
	_ = s.events.Append(ctx, "AttemptSubmitted", a.ID, map[string]any{
		"quiz_id": a.QuizID, "percent": res.Percent, "passed": res.Passed,
	})
	return res, nil
}

// questionSet resolves the attempt's ordered question IDs for the quiz's
// generation mode. The mode switch is exhaustive over the closed enum.
func (s *Service) questionSet(ctx context.Context, q quiz.Quiz) ([]string, error) {
	var ids []string
	switch q.GenerationMode {
	case quiz.GenerationFixed:
		// Dedup here too: the ledger keys items by revision, and quizzes
		// stored before the save-side check could repeat a question.
		seen := make(map[string]struct{}, len(q.QuestionIDs))
		for _, qid := range q.QuestionIDs {
			if _, dup := seen[qid]; dup {
				continue
			}
			seen[qid] = struct{}{}
			ids = append(ids, qid)
		}
	case quiz.GenerationDynamic:
		var err error
		ids, err = s.picker.Select(ctx, q.Rules)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errValidation("bad_generation_mode", "unknown quiz generation mode")
	}
	if q.RandomizeQuestions {
		s.picker.Shuffle(ids)
	}
	return ids, nil
}

// freeze locks each question to its current revision. Questions without a
// revision cannot be served and are dropped with a warning.
func (s *Service) freeze(ctx context.Context, questionIDs []string) ([]QuestionRef, error) {
	current, err := s.catalog.CurrentRevisions(ctx, questionIDs)
	if err != nil {
		return nil, err
	}
	refs := make([]QuestionRef, 0, len(questionIDs))
	for _, qid := range questionIDs {
		rid, ok := current[qid]
		if !ok {
			s.logger.Printf("attempt: question %s has no revision, dropped from attempt", qid)
			continue
		}
		refs = append(refs, QuestionRef{QuestionID: qid, RevisionID: rid})
	}
	return refs, nil
}

// buildLedger pre-populates one item per frozen question, including the fixed
// answer permutation when the quiz randomizes answer order.
func (s *Service) buildLedger(ctx context.Context, a Attempt, q quiz.Quiz) ([]Item, error) {
	var revs map[string]catalog.QuestionRevision
	if q.RandomizeAnswers {
		ids := make([]string, len(a.Questions))
		for i, ref := range a.Questions {
			ids[i] = ref.RevisionID
		}
		var err error
		if revs, err = s.catalog.GetRevisions(ctx, ids); err != nil {
			return nil, err
		}
	}
	items := make([]Item, len(a.Questions))
	for i, ref := range a.Questions {
		it := Item{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			QuestionID: ref.QuestionID,
			RevisionID: ref.RevisionID,
			OrderIndex: i,
			Selected:   []int{},
		}
		if q.RandomizeAnswers {
			if rev, ok := revs[ref.RevisionID]; ok {
				it.AnswerOrder = s.picker.Permutation(len(rev.Answers))
			}
		}
		items[i] = it
	}
	return items, nil
}
