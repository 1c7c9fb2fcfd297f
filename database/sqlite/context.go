package sqlite

import (
	"context"
	"database/sql"
)

// DB holds methods common to the DB and Tx types
// in package sql.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// key is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type key int

// dbKey is the key for DB values in Contexts. It is
// unexported; clients use sqlite.NewContext and
// sqlite.FromContext instead of using this key directly.
var dbKey key = 0

// NewContext returns a new Context that carries value db.
func NewContext(ctx context.Context, db DB) context.Context {
	return context.WithValue(ctx, dbKey, db)
}

// FromContext returns the DB value stored in ctx.
// If there is no DB value, FromContext panics.
func FromContext(ctx context.Context) DB {
	return ctx.Value(dbKey).(DB)
}

// Exec runs the statement against the DB carried by ctx.
func Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return FromContext(ctx).ExecContext(ctx, query, args...)
}

// Query runs the query against the DB carried by ctx.
func Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return FromContext(ctx).QueryContext(ctx, query, args...)
}

// QueryRow runs the query against the DB carried by ctx.
func QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return FromContext(ctx).QueryRowContext(ctx, query, args...)
}
