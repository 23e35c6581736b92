// Package pgstore is the PostgreSQL storage driver: one JSONB row per
// collection, an upsert-based sequence table and the audit_logs table.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devxworld/erx/internal/store"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	db   queryable
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Get(ctx context.Context, collection string) (json.RawMessage, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM documents WHERE collection_id = $1`, collection).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select document %s: %w", collection, err)
	}
	return json.RawMessage(data), nil
}

func (s *Store) Put(ctx context.Context, collection string, data json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (collection_id, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (collection_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, string(data))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", collection, err)
	}
	return nil
}

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return n, nil
}

func (s *Store) AppendAudit(ctx context.Context, row store.AuditRow) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.ActorID, row.Action, row.Details, row.CreatedAt)
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
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []store.AuditRow
	for rows.Next() {
		var r store.AuditRow
		if err := rows.Scan(&r.ID, &r.ActorID, &r.Action, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
