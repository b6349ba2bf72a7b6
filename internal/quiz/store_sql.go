package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("quiz: not found")
	ErrInvalid  = errors.New("quiz: invalid")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save upserts a quiz and replaces its rules. Bands are validated here so a
// stored quiz can always be scored without re-checking.
func (s *SQLStore) Save(ctx context.Context, q Quiz) (Quiz, []string, error) {
	warnings, err := ValidateBands(q.BandFeedback)
	if err != nil {
		return Quiz{}, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch q.Mode {
	case ModeTutorial, ModeTimed:
	default:
		return Quiz{}, nil, fmt.Errorf("%w: unknown mode %q", ErrInvalid, q.Mode)
	}
	switch q.GenerationMode {
	case GenerationFixed, GenerationDynamic:
	default:
		return Quiz{}, nil, fmt.Errorf("%w: unknown generation mode %q", ErrInvalid, q.GenerationMode)
	}
	if q.ShowAnswers == "" {
		q.ShowAnswers = ShowAfterSubmit
	}
	if q.PassPercent < 0 || q.PassPercent > 100 {
		return Quiz{}, nil, fmt.Errorf("%w: pass percent %d outside 0-100", ErrInvalid, q.PassPercent)
	}
	// A question can appear in a fixed list once; the attempt ledger keys
	// items by revision.
	seen := make(map[string]struct{}, len(q.QuestionIDs))
	for _, qid := range q.QuestionIDs {
		if _, dup := seen[qid]; dup {
			return Quiz{}, nil, fmt.Errorf("%w: duplicate question %q in question list", ErrInvalid, qid)
		}
		seen[qid] = struct{}{}
	}

	now := time.Now().UnixMilli()
	if q.ID == "" {
		q.ID = uuid.NewString()
		q.Status = StatusDraft
		q.CreatedAt = now
	}
	q.UpdatedAt = now

	bandsJSON, err := json.Marshal(q.BandFeedback)
	if err != nil {
		return Quiz{}, nil, err
	}
	idsJSON, err := json.Marshal(q.QuestionIDs)
	if err != nil {
		return Quiz{}, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Quiz{}, nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quizzes (id, title, mode, generation_mode, time_limit_sec, pass_percent,
			max_attempts, attempt_delay_min, allow_skip, allow_backward, allow_resume,
			randomize_questions, randomize_answers, show_answers, enable_confidence,
			bands_json, question_ids_json, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, mode=EXCLUDED.mode, generation_mode=EXCLUDED.generation_mode,
			time_limit_sec=EXCLUDED.time_limit_sec, pass_percent=EXCLUDED.pass_percent,
			max_attempts=EXCLUDED.max_attempts, attempt_delay_min=EXCLUDED.attempt_delay_min,
			allow_skip=EXCLUDED.allow_skip, allow_backward=EXCLUDED.allow_backward,
			allow_resume=EXCLUDED.allow_resume, randomize_questions=EXCLUDED.randomize_questions,
			randomize_answers=EXCLUDED.randomize_answers, show_answers=EXCLUDED.show_answers,
			enable_confidence=EXCLUDED.enable_confidence, bands_json=EXCLUDED.bands_json,
			question_ids_json=EXCLUDED.question_ids_json, updated_at=EXCLUDED.updated_at`,
		q.ID, q.Title, string(q.Mode), string(q.GenerationMode), nullInt(q.TimeLimitSeconds),
		q.PassPercent, nullInt(q.MaxAttempts), nullInt(q.AttemptDelayMinutes),
		q.AllowSkip, q.AllowBackward, q.AllowResume, q.RandomizeQuestions, q.RandomizeAnswers,
		string(q.ShowAnswers), q.EnableConfidence, string(bandsJSON), string(idsJSON),
		string(q.Status), q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return Quiz{}, nil, err
	}

	// status and created_at are excluded from the DO UPDATE list, so on the
	// update path the stored values win; echo those, not the caller's.
	var st string
	if err := tx.QueryRowContext(ctx,
		`SELECT status, created_at FROM quizzes WHERE id=$1`, q.ID).
		Scan(&st, &q.CreatedAt); err != nil {
		return Quiz{}, nil, err
	}
	q.Status = Status(st)

	if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_rules WHERE quiz_id=$1`, q.ID); err != nil {
		return Quiz{}, nil, err
	}
	for i := range q.Rules {
		r := &q.Rules[i]
		r.Position = i
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		cj, _ := json.Marshal(r.CategoryIDs)
		tj, _ := json.Marshal(r.TagIDs)
		dj, _ := json.Marshal(r.Difficulties)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_rules (id, quiz_id, position, bank_id, category_ids_json, tag_ids_json, difficulties_json, question_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			r.ID, q.ID, r.Position, nullStr(r.BankID), string(cj), string(tj), string(dj), r.QuestionCount); err != nil {
			return Quiz{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Quiz{}, nil, err
	}
	return q, warnings, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Quiz, error) {
	var (
		q                      Quiz
		mode, gen, show, st    string
		limitSec, maxAtt, dlay sql.NullInt64
		bandsJSON, idsJSON     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, mode, generation_mode, time_limit_sec, pass_percent, max_attempts,
			attempt_delay_min, allow_skip, allow_backward, allow_resume, randomize_questions,
			randomize_answers, show_answers, enable_confidence, bands_json, question_ids_json,
			status, created_at, updated_at
		FROM quizzes WHERE id=$1`, id).
		Scan(&q.ID, &q.Title, &mode, &gen, &limitSec, &q.PassPercent, &maxAtt, &dlay,
			&q.AllowSkip, &q.AllowBackward, &q.AllowResume, &q.RandomizeQuestions,
			&q.RandomizeAnswers, &show, &q.EnableConfidence, &bandsJSON, &idsJSON,
			&st, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	q.Mode = Mode(mode)
	q.GenerationMode = GenerationMode(gen)
	q.ShowAnswers = ShowAnswers(show)
	q.Status = Status(st)
	q.TimeLimitSeconds = intPtr(limitSec)
	q.MaxAttempts = intPtr(maxAtt)
	q.AttemptDelayMinutes = intPtr(dlay)
	if err := json.Unmarshal([]byte(bandsJSON), &q.BandFeedback); err != nil {
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &q.QuestionIDs); err != nil {
		return Quiz{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, bank_id, category_ids_json, tag_ids_json, difficulties_json, question_count
		FROM quiz_rules WHERE quiz_id=$1 ORDER BY position`, id)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var r Rule
		var bank sql.NullString
		var cj, tj, dj string
		if err := rows.Scan(&r.ID, &r.Position, &bank, &cj, &tj, &dj, &r.QuestionCount); err != nil {
			return Quiz{}, err
		}
		r.BankID = bank.String
		_ = json.Unmarshal([]byte(cj), &r.CategoryIDs)
		_ = json.Unmarshal([]byte(tj), &r.TagIDs)
		_ = json.Unmarshal([]byte(dj), &r.Difficulties)
		q.Rules = append(q.Rules, r)
	}
	return q, rows.Err()
}

func (s *SQLStore) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET status=$1, updated_at=$2 WHERE id=$3`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
