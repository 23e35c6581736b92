// Package sqlite opens the embedded single-file database used for
// single-node deployments and tests.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/devxworld/erx/internal/platform/db"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Connect opens the database at dsn. Use ":memory:" for a throwaway database.
func Connect(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %s: %w", dsn, err)
	}
	// One connection: sqlite serializes writers and ":memory:" is per-connection.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return conn, nil
}

// Migrate applies every pending schema file and returns how many ran.
func Migrate(ctx context.Context, conn *sqlx.DB) (int, error) {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("create _migrations table: %w", err)
	}

	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return 0, err
	}
	migrations, err := db.LoadMigrations(sub)
	if err != nil {
		return 0, err
	}

	var applied []int
	if err := conn.SelectContext(ctx, &applied, `SELECT version FROM _migrations`); err != nil {
		return 0, fmt.Errorf("query applied versions: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	count := 0
	for _, mig := range migrations {
		if done[mig.Version] {
			continue
		}
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return count, fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("record migration %d: %w", mig.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
