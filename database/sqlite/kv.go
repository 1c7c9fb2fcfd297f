package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// KVGet reads the value stored under k in engine_kv.
// The second return is false if the key is absent.
func KVGet(ctx context.Context, k string) (string, bool, error) {
	const q = `SELECT v FROM engine_kv WHERE k = ?`
	var v string
	err := QueryRow(ctx, q, k).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "kv get %q", k)
	}
	return v, true, nil
}

// KVPut stores v under k in engine_kv, replacing any previous value.
func KVPut(ctx context.Context, k, v string) error {
	const q = `
		INSERT INTO engine_kv (k, v) VALUES (?, ?)
		ON CONFLICT (k) DO UPDATE SET v = excluded.v
	`
	_, err := Exec(ctx, q, k, v)
	return errors.Wrapf(err, "kv put %q", k)
}
