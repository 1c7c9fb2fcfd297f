// Package sqltest provides database fixtures for tests.
// It creates a fresh migrated database file per test and
// verifies referential integrity at teardown.
package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
)

// NewContext opens a fresh database in a per-test temp directory, runs
// migrations, and returns a Context carrying the handle. The database
// is checked for foreign-key violations and closed when the test ends.
func NewContext(t testing.TB) context.Context {
	t.Helper()
	db := open(t)
	ctx := sqlite.NewContext(context.Background(), db)
	t.Cleanup(func() {
		if vs := fkViolations(t, db); len(vs) > 0 {
			t.Errorf("foreign key violations after teardown: %v", vs)
		}
		db.Close()
	})
	return ctx
}

func open(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assetsync.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	err = sqlite.Migrate(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func fkViolations(t testing.TB, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`PRAGMA foreign_key_check`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			t.Fatal(err)
		}
		out = append(out, fmt.Sprintf("%s rowid=%d references %s", table, rowid.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

// Exec runs the statement against the DB carried by ctx,
// failing the test on error.
func Exec(ctx context.Context, t testing.TB, query string, args ...interface{}) {
	t.Helper()
	_, err := sqlite.Exec(ctx, query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// Count returns the number of rows in the named table.
func Count(ctx context.Context, t testing.TB, table string) int {
	t.Helper()
	var n int
	err := sqlite.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// SeedPair inserts the provider, asset class, and pair rows needed
// before a manifest referencing (provider, class) can exist.
func SeedPair(ctx context.Context, t testing.TB, provider, name, class string) {
	t.Helper()
	Exec(ctx, t, `INSERT INTO provider (code, name) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`, provider, name)
	Exec(ctx, t, `INSERT INTO asset_class (code) VALUES (?) ON CONFLICT (code) DO NOTHING`, class)
	Exec(ctx, t, `
		INSERT INTO provider_asset_class (provider_code, asset_class_code)
		VALUES (?, ?)
		ON CONFLICT (provider_code, asset_class_code) DO NOTHING
	`, provider, class)
}
