// Package sqlite provides the embedded relational store used by the
// coverage, backlog, and catalog subsystems: connection setup with the
// pragmas those subsystems rely on, context plumbing for handles and
// transactions, and embedded schema migrations.
package sqlite

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Connection tuning applied to every connection in the pool.
//
//   - journal_mode=WAL: readers do not block the single writer.
//   - foreign_keys=on: RESTRICT/CASCADE actions are enforced.
//   - busy_timeout=5000: writers wait up to 5s on contention instead of
//     failing immediately with SQLITE_BUSY.
//   - txlock=immediate: transactions take the write lock at BEGIN, so two
//     concurrent writers are rejected up front rather than deadlocking on
//     lock upgrade.
const connParams = "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"

// Open opens the database file at url with the connection
// parameters above applied to every pooled connection.
// It does not run migrations; see Migrate.
func Open(url string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", url+sep+connParams)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	return db, nil
}
