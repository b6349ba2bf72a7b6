package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists attempts and their ledgers with database/sql; works
// against sqlite and postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const attemptCols = `id, quiz_id, identity_key, user_id, guest_email, guest_token, token_expires_at,
	started_at, finished_at, active_elapsed_ms, elapsed_ms, status, current_position,
	score_points, max_points, score_percent, passed, degraded, questions_json`

const itemCols = `id, attempt_id, question_id, question_revision_id, order_index,
	answer_order_json, selected_json, confidence, first_view_at, last_answer_at,
	time_spent_ms, is_correct, score_points`

func (s *SQLStore) Create(ctx context.Context, a Attempt, items []Item) error {
	qj, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts (`+attemptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.QuizID, a.IdentityKey(), nullStr(a.UserID), nullStr(a.GuestEmail), nullStr(a.GuestToken),
		msOrNil(a.TokenExpiresAt), a.StartedAt.UnixMilli(), msOrNil(a.FinishedAt),
		a.ActiveElapsed.Milliseconds(), nil, string(a.Status), a.Position,
		a.ScorePoints, a.MaxPoints, a.ScorePercent, a.Passed, a.Degraded, string(qj))
	if err != nil {
		return err
	}
	for _, it := range items {
		var orderJSON any
		if it.AnswerOrder != nil {
			b, err := json.Marshal(it.AnswerOrder)
			if err != nil {
				return err
			}
			orderJSON = string(b)
		}
		sj, err := json.Marshal(it.Selected)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attempt_items (`+itemCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			it.ID, a.ID, it.QuestionID, it.RevisionID, it.OrderIndex,
			orderJSON, string(sj), it.Confidence, msOrNil(it.FirstViewAt),
			msOrNil(it.LastAnswer), nil, it.IsCorrect, it.ScorePoints)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrStoreNotFound
	}
	return a, err
}

func (s *SQLStore) Items(ctx context.Context, attemptID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM attempt_items WHERE attempt_id=$1 ORDER BY order_index`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLStore) Item(ctx context.Context, attemptID, itemID string) (Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM attempt_items WHERE attempt_id=$1 AND id=$2`, attemptID, itemID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrStoreNotFound
	}
	return it, err
}

// SaveAnswer is a single-row update: concurrent saves to the same item
// resolve last-write-wins at the database, saves to different items never
// touch the same row.
func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID, itemID string, w AnswerWrite) error {
	sj, err := json.Marshal(w.Selected)
	if err != nil {
		return err
	}
	at := w.At.UnixMilli()
	set := []string{
		`selected_json=$1`,
		`last_answer_at=$2`,
		`first_view_at=COALESCE(first_view_at,$3)`,
	}
	args := []any{string(sj), at, at}
	next := 4
	if w.Confidence != nil {
		set = append(set, fmt.Sprintf(`confidence=$%d`, next))
		args = append(args, *w.Confidence)
		next++
	}
	if w.TimeSpent != nil {
		set = append(set, fmt.Sprintf(`time_spent_ms=$%d`, next))
		args = append(args, w.TimeSpent.Milliseconds())
		next++
	}
	args = append(args, attemptID, itemID)
	query := fmt.Sprintf(`UPDATE attempt_items SET %s WHERE attempt_id=$%d AND id=$%d`,
		strings.Join(set, ", "), next, next+1)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *SQLStore) SetConfidence(ctx context.Context, attemptID, itemID string, confidence bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempt_items SET confidence=$1 WHERE attempt_id=$2 AND id=$3`,
		confidence, attemptID, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *SQLStore) MarkViewed(ctx context.Context, attemptID, itemID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempt_items SET first_view_at=COALESCE(first_view_at,$1) WHERE attempt_id=$2 AND id=$3`,
		at.UnixMilli(), attemptID, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *SQLStore) SetActiveElapsed(ctx context.Context, attemptID string, d time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET active_elapsed_ms=$1 WHERE id=$2`, d.Milliseconds(), attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *SQLStore) SetPosition(ctx context.Context, attemptID string, pos int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET current_position=$1 WHERE id=$2`, pos, attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

// Finish is the conditional terminal transition: the status flip and score
// write only land if the row is still in_progress, so two racing submits
// produce exactly one scoring pass.
func (s *SQLStore) Finish(ctx context.Context, attemptID string, fin FinishUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts SET status=$1, finished_at=$2, active_elapsed_ms=$3, elapsed_ms=$4,
			score_points=$5, max_points=$6, score_percent=$7, passed=$8, degraded=$9
		WHERE id=$10 AND status=$11`,
		string(fin.Status), fin.FinishedAt.UnixMilli(), fin.ActiveElapsed.Milliseconds(),
		fin.Elapsed.Milliseconds(), fin.ScorePoints, fin.MaxPoints, fin.ScorePercent,
		fin.Passed, fin.Degraded, attemptID, string(StatusInProgress))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Either missing or already terminal; caller re-reads to tell apart.
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, attemptID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrStoreNotFound
		}
		if err != nil {
			return false, err
		}
		return false, tx.Commit()
	}
	for _, r := range fin.Items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE attempt_items SET is_correct=$1, score_points=$2 WHERE attempt_id=$3 AND id=$4`,
			r.IsCorrect, r.ScorePoints, attemptID, r.ItemID); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

func (s *SQLStore) CountByStatus(ctx context.Context, quizID, identityKey string, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND identity_key=$2 AND status=$3`,
		quizID, identityKey, string(status)).Scan(&n)
	return n, err
}

func (s *SQLStore) LastFinishedAt(ctx context.Context, quizID, identityKey string) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(finished_at) FROM attempts WHERE quiz_id=$1 AND identity_key=$2`, quizID,
		identityKey).Scan(&ms)
	if err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

func (s *SQLStore) FindInProgress(ctx context.Context, quizID, identityKey string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM attempts WHERE quiz_id=$1 AND identity_key=$2 AND status=$3 LIMIT 1`,
		quizID, identityKey, string(StatusInProgress)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	where := []string{"1=1"}
	var args []any
	next := 1
	if opts.QuizID != "" {
		where = append(where, fmt.Sprintf(`quiz_id=$%d`, next))
		args = append(args, opts.QuizID)
		next++
	}
	if opts.Identity != "" {
		where = append(where, fmt.Sprintf(`identity_key=$%d`, next))
		args = append(args, opts.Identity)
		next++
	}
	if opts.Status != "" {
		where = append(where, fmt.Sprintf(`status=$%d`, next))
		args = append(args, string(opts.Status))
		next++
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT `+attemptCols+` FROM attempts WHERE %s
		ORDER BY started_at DESC LIMIT %d OFFSET %d`,
		strings.Join(where, " AND "), limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attempts SET status=$1, finished_at=$2
		WHERE status=$3 AND started_at < $4
		  AND NOT EXISTS (
			SELECT 1 FROM attempt_items i
			WHERE i.attempt_id = attempts.id AND i.selected_json <> '[]'
		  )`,
		string(StatusAbandoned), cutoff.UnixMilli(), string(StatusInProgress), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a                               Attempt
		identityKey                     string
		userID, guestEmail, guestToken  sql.NullString
		tokenExp, finishedAt, elapsedMs sql.NullInt64
		startedAt, activeMs             int64
		status                          string
		scorePts, maxPts                sql.NullFloat64
		scorePct                        sql.NullInt64
		passed                          sql.NullBool
		qj                              string
	)
	err := row.Scan(&a.ID, &a.QuizID, &identityKey, &userID, &guestEmail, &guestToken, &tokenExp,
		&startedAt, &finishedAt, &activeMs, &elapsedMs, &status, &a.Position,
		&scorePts, &maxPts, &scorePct, &passed, &a.Degraded, &qj)
	if err != nil {
		return Attempt{}, err
	}
	a.UserID = userID.String
	a.GuestEmail = guestEmail.String
	a.GuestToken = guestToken.String
	if tokenExp.Valid {
		a.TokenExpiresAt = time.UnixMilli(tokenExp.Int64).UTC()
	}
	a.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		a.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	a.ActiveElapsed = time.Duration(activeMs) * time.Millisecond
	if elapsedMs.Valid {
		a.Elapsed = time.Duration(elapsedMs.Int64) * time.Millisecond
	}
	a.Status = Status(status)
	if scorePts.Valid {
		a.ScorePoints = &scorePts.Float64
	}
	if maxPts.Valid {
		a.MaxPoints = &maxPts.Float64
	}
	if scorePct.Valid {
		v := int(scorePct.Int64)
		a.ScorePercent = &v
	}
	if passed.Valid {
		a.Passed = &passed.Bool
	}
	if err := json.Unmarshal([]byte(qj), &a.Questions); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s questions: %w", a.ID, err)
	}
	return a, nil
}

func scanItem(row rowScanner) (Item, error) {
	var (
		it                     Item
		orderJSON              sql.NullString
		sj                     string
		confidence, isCorrect  sql.NullBool
		firstView, lastAnswer  sql.NullInt64
		timeSpent              sql.NullInt64
		scorePts               sql.NullFloat64
	)
	err := row.Scan(&it.ID, &it.AttemptID, &it.QuestionID, &it.RevisionID, &it.OrderIndex,
		&orderJSON, &sj, &confidence, &firstView, &lastAnswer, &timeSpent, &isCorrect, &scorePts)
	if err != nil {
		return Item{}, err
	}
	if orderJSON.Valid {
		if err := json.Unmarshal([]byte(orderJSON.String), &it.AnswerOrder); err != nil {
			return Item{}, err
		}
	}
	if err := json.Unmarshal([]byte(sj), &it.Selected); err != nil {
		return Item{}, err
	}
	if confidence.Valid {
		it.Confidence = &confidence.Bool
	}
	if firstView.Valid {
		it.FirstViewAt = time.UnixMilli(firstView.Int64).UTC()
	}
	if lastAnswer.Valid {
		it.LastAnswer = time.UnixMilli(lastAnswer.Int64).UTC()
	}
	if timeSpent.Valid {
		it.TimeSpent = time.Duration(timeSpent.Int64) * time.Millisecond
	}
	if isCorrect.Valid {
		it.IsCorrect = &isCorrect.Bool
	}
	if scorePts.Valid {
		it.ScorePoints = &scorePts.Float64
	}
	return it, nil
}

func msOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
