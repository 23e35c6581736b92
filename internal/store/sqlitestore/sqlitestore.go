// Package sqlitestore is the single-file storage driver built on sqlx and
// the pure-Go sqlite driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devxworld/erx/internal/store"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sqlx.DB
}

// New wraps an already migrated connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, collection string) (json.RawMessage, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM documents WHERE collection_id = ?`, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select document %s: %w", collection, err)
	}
	return json.RawMessage(data), nil
}

func (s *Store) Put(ctx context.Context, collection string, data json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (collection_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, string(data), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", collection, err)
	}
	return nil
}

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sequence tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1`, name); err != nil {
		return 0, fmt.Errorf("bump sequence %s: %w", name, err)
	}
	var n int64
	if err := tx.GetContext(ctx, &n, `SELECT value FROM sequences WHERE name = ?`, name); err != nil {
		return 0, fmt.Errorf("read sequence %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sequence %s: %w", name, err)
	}
	return n, nil
}

type auditRecord struct {
	ID        string `db:"id"`
	ActorID   string `db:"actor_id"`
	Action    string `db:"action"`
	Details   string `db:"details"`
	CreatedAt string `db:"created_at"`
}

func (s *Store) AppendAudit(ctx context.Context, row store.AuditRow) error {
	rec := auditRecord{
		ID:        row.ID,
		ActorID:   row.ActorID,
		Action:    row.Action,
		Details:   row.Details,
		CreatedAt: row.CreatedAt.UTC().Format(timeLayout),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, details, created_at)
		VALUES (:id, :actor_id, :action, :details, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]store.AuditRow, error) {
	query := `SELECT id, actor_id, action, details, created_at FROM audit_logs ORDER BY created_at DESC`
	var args []any
	// limit <= 0 lists every row.
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var recs []auditRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	out := make([]store.AuditRow, 0, len(recs))
	for _, r := range recs {
		at, err := time.Parse(timeLayout, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", r.CreatedAt, err)
		}
		out = append(out, store.AuditRow{ID: r.ID, ActorID: r.ActorID, Action: r.Action, Details: r.Details, CreatedAt: at})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
