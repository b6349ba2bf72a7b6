package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("catalog: not found")

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SaveQuestion creates or edits a question. A content change (detected by
// hash) mints a new immutable revision; a metadata-only change leaves the
// revision chain alone.
func (s *SQLStore) SaveQuestion(ctx context.Context, in SaveInput) (Question, QuestionRevision, error) {
	if strings.TrimSpace(in.Stem) == "" {
		return Question{}, QuestionRevision{}, errors.New("catalog: stem required")
	}
	if len(in.Answers) == 0 {
		return Question{}, QuestionRevision{}, errors.New("catalog: at least one answer required")
	}
	if in.Points <= 0 {
		in.Points = 1
	}
	hash := ContentHash(in.Stem, in.Answers)
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, QuestionRevision{}, err
	}
	defer tx.Rollback()

	q := Question{
		ID:          in.QuestionID,
		BankID:      in.BankID,
		Difficulty:  in.Difficulty,
		Points:      in.Points,
		CategoryIDs: in.CategoryIDs,
		TagIDs:      in.TagIDs,
	}
	version := 1
	var prevHash string

	if q.ID == "" {
		q.ID = uuid.NewString()
		q.Status = QuestionDraft
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, bank_id, difficulty, points, status, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$6)`,
			q.ID, nullStr(q.BankID), q.Difficulty, q.Points, string(q.Status), now); err != nil {
			return Question{}, QuestionRevision{}, err
		}
	} else {
		var status, curRev sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT status, current_revision_id FROM questions WHERE id=$1`, q.ID).
			Scan(&status, &curRev)
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, QuestionRevision{}, ErrNotFound
		}
		if err != nil {
			return Question{}, QuestionRevision{}, err
		}
		q.Status = QuestionStatus(status.String)
		if curRev.Valid {
			if err := tx.QueryRowContext(ctx,
				`SELECT content_hash, version FROM question_revisions WHERE id=$1`, curRev.String).
				Scan(&prevHash, &version); err != nil {
				return Question{}, QuestionRevision{}, err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE questions SET bank_id=$1, difficulty=$2, points=$3, updated_at=$4 WHERE id=$5`,
			nullStr(q.BankID), q.Difficulty, q.Points, now, q.ID); err != nil {
			return Question{}, QuestionRevision{}, err
		}
		q.CurrentRevisionID = curRev.String
	}

	rev := QuestionRevision{
		ID:                q.CurrentRevisionID,
		QuestionID:        q.ID,
		Version:           version,
		Stem:              in.Stem,
		Answers:           in.Answers,
		FeedbackCorrect:   in.FeedbackCorrect,
		FeedbackIncorrect: in.FeedbackIncorrect,
		ContentHash:       hash,
		CreatedAt:         now,
	}
	if hash != prevHash {
		if prevHash != "" {
			rev.Version = version + 1
		}
		rev.ID = uuid.NewString()
		aj, err := json.Marshal(in.Answers)
		if err != nil {
			return Question{}, QuestionRevision{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_revisions (id, question_id, version, stem, answers_json, feedback_correct, feedback_incorrect, content_hash, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rev.ID, q.ID, rev.Version, in.Stem, string(aj), in.FeedbackCorrect, in.FeedbackIncorrect, hash, now); err != nil {
			return Question{}, QuestionRevision{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE questions SET current_revision_id=$1 WHERE id=$2`, rev.ID, q.ID); err != nil {
			return Question{}, QuestionRevision{}, err
		}
		q.CurrentRevisionID = rev.ID
	}

	if err := replaceMembership(ctx, tx, "question_categories", "category_id", q.ID, in.CategoryIDs); err != nil {
		return Question{}, QuestionRevision{}, err
	}
	if err := replaceMembership(ctx, tx, "question_tags", "tag_id", q.ID, in.TagIDs); err != nil {
		return Question{}, QuestionRevision{}, err
	}

	if err := tx.Commit(); err != nil {
		return Question{}, QuestionRevision{}, err
	}
	return q, rev, nil
}

func (s *SQLStore) SetQuestionStatus(ctx context.Context, id string, status QuestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status=$1, updated_at=$2 WHERE id=$3`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	var q Question
	var bank, curRev sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, bank_id, difficulty, points, status, current_revision_id FROM questions WHERE id=$1`, id).
		Scan(&q.ID, &bank, &q.Difficulty, &q.Points, &status, &curRev)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, err
	}
	q.BankID = bank.String
	q.Status = QuestionStatus(status)
	q.CurrentRevisionID = curRev.String
	if q.CategoryIDs, err = s.memberIDs(ctx, "question_categories", "category_id", id); err != nil {
		return Question{}, err
	}
	if q.TagIDs, err = s.memberIDs(ctx, "question_tags", "tag_id", id); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) GetRevision(ctx context.Context, id string) (QuestionRevision, error) {
	revs, err := s.GetRevisions(ctx, []string{id})
	if err != nil {
		return QuestionRevision{}, err
	}
	rev, ok := revs[id]
	if !ok {
		return QuestionRevision{}, ErrNotFound
	}
	return rev, nil
}

// GetRevisions loads revisions by ID. Missing IDs are simply absent from the
// result map; callers decide whether that is fatal.
func (s *SQLStore) GetRevisions(ctx context.Context, ids []string) (map[string]QuestionRevision, error) {
	out := make(map[string]QuestionRevision, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(
		`SELECT id, question_id, version, stem, answers_json, feedback_correct, feedback_incorrect, content_hash, created_at
		 FROM question_revisions WHERE id IN (%s)`, placeholders(1, len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r QuestionRevision
		var aj string
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.Version, &r.Stem, &aj,
			&r.FeedbackCorrect, &r.FeedbackIncorrect, &r.ContentHash, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aj), &r.Answers); err != nil {
			return nil, fmt.Errorf("catalog: revision %s answers: %w", r.ID, err)
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// CurrentRevisions maps question IDs to their current revision IDs. Questions
// without a revision yet are omitted.
func (s *SQLStore) CurrentRevisions(ctx context.Context, questionIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(
		`SELECT id, current_revision_id FROM questions WHERE id IN (%s) AND current_revision_id IS NOT NULL`,
		placeholders(1, len(questionIDs)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(questionIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var qid, rid string
		if err := rows.Scan(&qid, &rid); err != nil {
			return nil, err
		}
		out[qid] = rid
	}
	return out, rows.Err()
}

// Meta returns scoring metadata (weight, categories) for a set of questions.
func (s *SQLStore) Meta(ctx context.Context, questionIDs []string) (map[string]QuestionMeta, error) {
	out := make(map[string]QuestionMeta, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT id, points FROM questions WHERE id IN (%s)`,
		placeholders(1, len(questionIDs)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(questionIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m QuestionMeta
		if err := rows.Scan(&m.QuestionID, &m.Points); err != nil {
			return nil, err
		}
		out[m.QuestionID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query = fmt.Sprintf(`SELECT question_id, category_id FROM question_categories WHERE question_id IN (%s)`,
		placeholders(1, len(questionIDs)))
	crows, err := s.db.QueryContext(ctx, query, toAnySlice(questionIDs)...)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var qid, cid string
		if err := crows.Scan(&qid, &cid); err != nil {
			return nil, err
		}
		m := out[qid]
		m.CategoryIDs = append(m.CategoryIDs, cid)
		out[qid] = m
	}
	return out, crows.Err()
}

// CandidateIDs returns published question IDs matching the filter. Each
// sub-filter applies only when non-empty; category and tag lists require
// membership in every listed value.
func (s *SQLStore) CandidateIDs(ctx context.Context, f Filter) ([]string, error) {
	var (
		where = []string{`q.status=$1`}
		args  = []any{string(QuestionPublished)}
	)
	next := 2
	if f.BankID != "" {
		where = append(where, fmt.Sprintf(`q.bank_id=$%d`, next))
		args = append(args, f.BankID)
		next++
	}
	if len(f.Difficulties) > 0 {
		where = append(where, fmt.Sprintf(`q.difficulty IN (%s)`, placeholders(next, len(f.Difficulties))))
		args = append(args, toAnySlice(f.Difficulties)...)
		next += len(f.Difficulties)
	}
	if len(f.CategoryIDs) > 0 {
		where = append(where, fmt.Sprintf(
			`(SELECT COUNT(*) FROM question_categories qc WHERE qc.question_id=q.id AND qc.category_id IN (%s)) = %d`,
			placeholders(next, len(f.CategoryIDs)), len(f.CategoryIDs)))
		args = append(args, toAnySlice(f.CategoryIDs)...)
		next += len(f.CategoryIDs)
	}
	if len(f.TagIDs) > 0 {
		where = append(where, fmt.Sprintf(
			`(SELECT COUNT(*) FROM question_tags qt WHERE qt.question_id=q.id AND qt.tag_id IN (%s)) = %d`,
			placeholders(next, len(f.TagIDs)), len(f.TagIDs)))
		args = append(args, toAnySlice(f.TagIDs)...)
		next += len(f.TagIDs)
	}
	query := `SELECT q.id FROM questions q WHERE ` + strings.Join(where, " AND ") + ` ORDER BY q.id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) memberIDs(ctx context.Context, table, col, questionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE question_id=$1 ORDER BY %s`, col, table, col), questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func replaceMembership(ctx context.Context, tx *sql.Tx, table, col, questionID string, ids []string) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE question_id=$1`, table), questionID); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (question_id, %s) VALUES ($1,$2)`, table, col), questionID, id); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
