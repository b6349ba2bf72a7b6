// Package eventlog appends attempt lifecycle events to an ordered log table
// for downstream sync and reporting.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Event struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"` // AttemptStarted | AttemptSubmitted | AttemptAbandoned
	Key       string `json:"key"`  // natural key: attempt ID
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

type Log struct {
	db *sql.DB
}

func New(db *sql.DB) *Log { return &Log{db: db} }

func (l *Log) Append(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(buf), time.Now().UnixMilli())
	return err
}

// Since returns up to limit events after the given sequence number, oldest first.
func (l *Log) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
