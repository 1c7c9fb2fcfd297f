package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Tx wraps a sql.Tx so it satisfies the DB interface and can travel
// through a Context the same way the root handle does.
type Tx struct {
	*sql.Tx
}

// Commit commits the transaction.
func (tx *Tx) Commit(ctx context.Context) error {
	return tx.Tx.Commit()
}

// Rollback aborts the transaction. Calling Rollback after a successful
// Commit is a no-op, so it is safe to defer unconditionally.
func (tx *Tx) Rollback(ctx context.Context) error {
	err := tx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Begin opens a transaction on the DB carried by ctx and returns the
// transaction along with a new Context carrying it. Because connections
// are opened with txlock=immediate, the write lock is acquired at BEGIN.
func Begin(ctx context.Context) (*Tx, context.Context, error) {
	type beginner interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}
	b, ok := FromContext(ctx).(beginner)
	if !ok {
		return nil, ctx, errors.New("handle in context cannot begin a transaction")
	}
	sqltx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return nil, ctx, errors.Wrap(err, "begin transaction")
	}
	tx := &Tx{sqltx}
	return tx, NewContext(ctx, tx), nil
}
