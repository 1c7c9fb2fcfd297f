package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"sort"

	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the schema up to date, applying any embedded migration
// files that have not run yet. It is idempotent and safe to call on
// every open. Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	const q = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`
	_, err := db.ExecContext(ctx, q)
	if err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := migrationApplied(ctx, db, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, db, name); err != nil {
			return errors.Wrapf(err, "apply migration %s", name)
		}
	}
	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	const q = `SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`
	var n int
	err := db.QueryRowContext(ctx, q, name).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "check migration")
	}
	return n > 0, nil
}

func applyMigration(ctx context.Context, db *sql.DB, name string) error {
	ddl, err := migrations.ReadFile("migrations/" + name)
	if err != nil {
		return errors.Wrap(err, "read migration")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
		return err
	}
	const q = `INSERT INTO schema_migrations (filename) VALUES (?)`
	if _, err := tx.ExecContext(ctx, q, name); err != nil {
		return errors.Wrap(err, "record migration")
	}
	return tx.Commit()
}
