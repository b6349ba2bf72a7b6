package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:quizforge.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/quizforge?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Timestamps are unix milliseconds (BIGINT) throughout: attempt timing is
// millisecond-granular and mixing units across columns invites drift.

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS banks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  bank_id TEXT REFERENCES banks(id),
  difficulty TEXT NOT NULL DEFAULT '',
  points REAL NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'draft',
  current_revision_id TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_revisions (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  version INTEGER NOT NULL,
  stem TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  feedback_correct TEXT NOT NULL DEFAULT '',
  feedback_incorrect TEXT NOT NULL DEFAULT '',
  content_hash TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (question_id, version)
);

CREATE TABLE IF NOT EXISTS question_categories (
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
  PRIMARY KEY (question_id, category_id)
);

CREATE TABLE IF NOT EXISTS question_tags (
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
  PRIMARY KEY (question_id, tag_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  mode TEXT NOT NULL,
  generation_mode TEXT NOT NULL,
  time_limit_sec INTEGER,
  pass_percent INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER,
  attempt_delay_min INTEGER,
  allow_skip INTEGER NOT NULL DEFAULT 1,
  allow_backward INTEGER NOT NULL DEFAULT 1,
  allow_resume INTEGER NOT NULL DEFAULT 1,
  randomize_questions INTEGER NOT NULL DEFAULT 0,
  randomize_answers INTEGER NOT NULL DEFAULT 0,
  show_answers TEXT NOT NULL DEFAULT 'after_submit',
  enable_confidence INTEGER NOT NULL DEFAULT 0,
  bands_json TEXT NOT NULL DEFAULT '[]',
  question_ids_json TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'draft',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_rules (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  bank_id TEXT,
  category_ids_json TEXT NOT NULL DEFAULT '[]',
  tag_ids_json TEXT NOT NULL DEFAULT '[]',
  difficulties_json TEXT NOT NULL DEFAULT '[]',
  question_count INTEGER NOT NULL,
  UNIQUE (quiz_id, position)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id),
  identity_key TEXT NOT NULL,
  user_id TEXT,
  guest_email TEXT,
  guest_token TEXT,
  token_expires_at BIGINT,
  started_at BIGINT NOT NULL,
  finished_at BIGINT,
  active_elapsed_ms BIGINT NOT NULL DEFAULT 0,
  elapsed_ms BIGINT,
  status TEXT NOT NULL,
  current_position INTEGER NOT NULL DEFAULT 0,
  score_points REAL,
  max_points REAL,
  score_percent INTEGER,
  passed INTEGER,
  degraded INTEGER NOT NULL DEFAULT 0,
  questions_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON attempts(quiz_id);
CREATE INDEX IF NOT EXISTS idx_attempts_identity ON attempts(identity_key);

CREATE TABLE IF NOT EXISTS attempt_items (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  question_revision_id TEXT NOT NULL,
  order_index INTEGER NOT NULL,
  answer_order_json TEXT,
  selected_json TEXT NOT NULL DEFAULT '[]',
  confidence INTEGER,
  first_view_at BIGINT,
  last_answer_at BIGINT,
  time_spent_ms BIGINT,
  is_correct INTEGER,
  score_points REAL,
  UNIQUE (attempt_id, question_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_attempt_items_attempt ON attempt_items(attempt_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  pass_hash TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS banks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  bank_id TEXT REFERENCES banks(id),
  difficulty TEXT NOT NULL DEFAULT '',
  points DOUBLE PRECISION NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'draft',
  current_revision_id TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_revisions (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  version INTEGER NOT NULL,
  stem TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  feedback_correct TEXT NOT NULL DEFAULT '',
  feedback_incorrect TEXT NOT NULL DEFAULT '',
  content_hash TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (question_id, version)
);

CREATE TABLE IF NOT EXISTS question_categories (
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
  PRIMARY KEY (question_id, category_id)
);

CREATE TABLE IF NOT EXISTS question_tags (
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
  PRIMARY KEY (question_id, tag_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  mode TEXT NOT NULL,
  generation_mode TEXT NOT NULL,
  time_limit_sec INTEGER,
  pass_percent INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER,
  attempt_delay_min INTEGER,
  allow_skip BOOLEAN NOT NULL DEFAULT TRUE,
  allow_backward BOOLEAN NOT NULL DEFAULT TRUE,
  allow_resume BOOLEAN NOT NULL DEFAULT TRUE,
  randomize_questions BOOLEAN NOT NULL DEFAULT FALSE,
  randomize_answers BOOLEAN NOT NULL DEFAULT FALSE,
  show_answers TEXT NOT NULL DEFAULT 'after_submit',
  enable_confidence BOOLEAN NOT NULL DEFAULT FALSE,
  bands_json TEXT NOT NULL DEFAULT '[]',
  question_ids_json TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'draft',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_rules (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  bank_id TEXT,
  category_ids_json TEXT NOT NULL DEFAULT '[]',
  tag_ids_json TEXT NOT NULL DEFAULT '[]',
  difficulties_json TEXT NOT NULL DEFAULT '[]',
  question_count INTEGER NOT NULL,
  UNIQUE (quiz_id, position)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id),
  identity_key TEXT NOT NULL,
  user_id TEXT,
  guest_email TEXT,
  guest_token TEXT,
  token_expires_at BIGINT,
  started_at BIGINT NOT NULL,
  finished_at BIGINT,
  active_elapsed_ms BIGINT NOT NULL DEFAULT 0,
  elapsed_ms BIGINT,
  status TEXT NOT NULL,
  current_position INTEGER NOT NULL DEFAULT 0,
  score_points DOUBLE PRECISION,
  max_points DOUBLE PRECISION,
  score_percent INTEGER,
  passed BOOLEAN,
  degraded BOOLEAN NOT NULL DEFAULT FALSE,
  questions_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON attempts(quiz_id);
CREATE INDEX IF NOT EXISTS idx_attempts_identity ON attempts(identity_key);

CREATE TABLE IF NOT EXISTS attempt_items (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  question_revision_id TEXT NOT NULL,
  order_index INTEGER NOT NULL,
  answer_order_json TEXT,
  selected_json TEXT NOT NULL DEFAULT '[]',
  confidence BOOLEAN,
  first_view_at BIGINT,
  last_answer_at BIGINT,
  time_spent_ms BIGINT,
  is_correct BOOLEAN,
  score_points DOUBLE PRECISION,
  UNIQUE (attempt_id, question_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_attempt_items_attempt ON attempt_items(attempt_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  pass_hash TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
