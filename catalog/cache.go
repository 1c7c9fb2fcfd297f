package catalog

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
)

// The allowed-pair cache is a read-mostly snapshot of the
// provider_asset_class table behind an atomic pointer. Readers load
// the current snapshot without locking; RefreshAllowed builds a fresh
// set and swaps it in, so a reader observes either the old or the new
// snapshot, never a torn state.
//
// The cache starts empty: until the first refresh every membership
// check returns false.

type pairSet map[Pair]bool

var allowed atomic.Pointer[pairSet]

func init() {
	ClearAllowedCache()
}

// IsAllowedPair reports whether the (provider, asset class) pair is in
// the current snapshot. One atomic load plus a map lookup; no store
// access.
func IsAllowedPair(provider, class string) bool {
	snap := allowed.Load()
	return (*snap)[Pair{Provider: provider, Class: class}]
}

// AllowedSnapshot returns the current snapshot set. Callers must treat
// it as read-only.
func AllowedSnapshot() map[Pair]bool {
	return *allowed.Load()
}

// RefreshAllowed rebuilds the snapshot from provider_asset_class and
// swaps it in atomically. Call at process startup and after a
// committed catalog sync.
func RefreshAllowed(ctx context.Context) error {
	rows, err := sqlite.Query(ctx, `SELECT provider_code, asset_class_code FROM provider_asset_class`)
	if err != nil {
		return errors.Wrap(err, "select allowed pairs")
	}
	next := make(pairSet)
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Provider, &p.Class); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan allowed pair")
		}
		next[p] = true
	}
	if err := rows.Close(); err != nil {
		return errors.Wrap(err, "end allowed pair scan")
	}
	allowed.Store(&next)
	return nil
}

// ClearAllowedCache resets the snapshot to the empty set. Useful for
// tests.
func ClearAllowedCache() {
	empty := make(pairSet)
	allowed.Store(&empty)
}
