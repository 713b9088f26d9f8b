// Package sqlite stores the saga log in its own SQLite file, separate from
// the marketplace database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    saga_id     TEXT NOT NULL,
    order_id    TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    step        TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT '',
    payload     TEXT,
    errors      TEXT NOT NULL DEFAULT '[]',
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_status ON saga_logs(status);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z"

var columns = []string{
	"saga_id", "order_id", "status", "step", "state", "COALESCE(payload, '')",
	"errors", "trace_id", "span_id", "updated_at",
}

type Repository struct {
	db *sql.DB
}

var (
	_ sagalog.Writer = (*Repository)(nil)
	_ sagalog.Reader = (*Repository)(nil)
)

func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sagalog: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sagalog: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Save appends; rows are never updated.
func (r *Repository) Save(ctx context.Context, e *sagalog.Entry) error {
	var payload any
	if e.Payload != "" {
		payload = e.Payload
	}
	_, err := sq.Insert("saga_logs").
		Columns("saga_id", "order_id", "status", "step", "state", "payload", "errors", "trace_id", "span_id", "updated_at").
		Values(e.SagaID, e.OrderID, string(e.Status), e.Step, e.State, payload, e.Errors, e.TraceID, e.SpanID,
			e.UpdatedAt.UTC().Format(timeLayout)).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("sagalog: save %s/%s: %w", e.SagaID, e.Status, err)
	}
	return nil
}

func (r *Repository) GetLatest(ctx context.Context, sagaID string) (*sagalog.Entry, error) {
	entries, err := r.query(ctx, sq.Select(columns...).From("saga_logs").
		Where(sq.Eq{"saga_id": sagaID}).OrderBy("id DESC").Limit(1))
	if err != nil {
		return nil, fmt.Errorf("sagalog: latest %q: %w", sagaID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("sagalog: %q: %w", sagaID, sagalog.ErrNotFound)
	}
	return &entries[0], nil
}

// History lists a saga's entries oldest first.
func (r *Repository) History(ctx context.Context, sagaID string) ([]sagalog.Entry, error) {
	entries, err := r.query(ctx, sq.Select(columns...).From("saga_logs").
		Where(sq.Eq{"saga_id": sagaID}).OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("sagalog: history %q: %w", sagaID, err)
	}
	return entries, nil
}

func (r *Repository) query(ctx context.Context, b sq.SelectBuilder) ([]sagalog.Entry, error) {
	rows, err := b.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sagalog.Entry
	for rows.Next() {
		var (
			e  sagalog.Entry
			ts string
		)
		if err := rows.Scan(&e.SagaID, &e.OrderID, &e.Status, &e.Step, &e.State, &e.Payload,
			&e.Errors, &e.TraceID, &e.SpanID, &ts); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse updated_at %q: %w", ts, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
