package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
)

// ErrSymbolNotFound means no symbol translation exists for the
// requested (provider, asset class, canonical) key.
var ErrSymbolNotFound = errors.New("symbol mapping not found")

// Pair is an allowed (provider, asset class) combination.
type Pair struct {
	Provider string
	Class    string
}

// Symbol is one canonical-to-remote translation row.
type Symbol struct {
	Provider  string
	Class     string
	Canonical string
	Remote    string
}

// Contents is the full catalog state as stored: the four entity sets
// the sync engine diffs against.
type Contents struct {
	Providers map[string]string // code -> name
	Classes   map[string]bool
	Pairs     map[Pair]bool
	Symbols   map[Symbol]bool
}

func newContents() *Contents {
	return &Contents{
		Providers: make(map[string]string),
		Classes:   make(map[string]bool),
		Pairs:     make(map[Pair]bool),
		Symbols:   make(map[Symbol]bool),
	}
}

// ReadContents loads the current catalog rows from the store.
func ReadContents(ctx context.Context) (*Contents, error) {
	defer metrics.RecordElapsed(time.Now())
	c := newContents()

	rows, err := sqlite.Query(ctx, `SELECT code, name FROM provider ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "select providers")
	}
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan provider")
		}
		c.Providers[code] = name
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end provider scan")
	}

	rows, err = sqlite.Query(ctx, `SELECT code FROM asset_class ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "select asset classes")
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan asset class")
		}
		c.Classes[code] = true
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end asset class scan")
	}

	rows, err = sqlite.Query(ctx, `
		SELECT provider_code, asset_class_code
		FROM provider_asset_class
		ORDER BY provider_code, asset_class_code
	`)
	if err != nil {
		return nil, errors.Wrap(err, "select pairs")
	}
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Provider, &p.Class); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan pair")
		}
		c.Pairs[p] = true
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end pair scan")
	}

	rows, err = sqlite.Query(ctx, `
		SELECT provider_code, asset_class_code, canonical_symbol, remote_symbol
		FROM provider_symbol_map
		ORDER BY provider_code, asset_class_code, canonical_symbol
	`)
	if err != nil {
		return nil, errors.Wrap(err, "select symbols")
	}
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.Provider, &s.Class, &s.Canonical, &s.Remote); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan symbol")
		}
		c.Symbols[s] = true
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end symbol scan")
	}

	return c, nil
}

// RemoteSymbol translates a canonical symbol to the provider's remote
// symbol. Returns ErrSymbolNotFound if no mapping exists.
func RemoteSymbol(ctx context.Context, provider, class, canonical string) (string, error) {
	const q = `
		SELECT remote_symbol FROM provider_symbol_map
		WHERE provider_code = ? AND asset_class_code = ? AND canonical_symbol = ?
	`
	var remote string
	err := sqlite.QueryRow(ctx, q, provider, class, canonical).Scan(&remote)
	if err == sql.ErrNoRows {
		return "", errors.WithMessagef(ErrSymbolNotFound, "%s/%s %s", provider, class, canonical)
	}
	if err != nil {
		return "", errors.Wrap(err, "select remote symbol")
	}
	return remote, nil
}

// UpsertProvider inserts the provider or updates its display name.
func UpsertProvider(ctx context.Context, code, name string) error {
	const q = `
		INSERT INTO provider (code, name) VALUES (?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name
	`
	_, err := sqlite.Exec(ctx, q, code, name)
	return errors.Wrapf(err, "upsert provider %s", code)
}

// UpsertAssetClass inserts the asset class if absent.
func UpsertAssetClass(ctx context.Context, code string) error {
	const q = `
		INSERT INTO asset_class (code) VALUES (?)
		ON CONFLICT (code) DO NOTHING
	`
	_, err := sqlite.Exec(ctx, q, code)
	return errors.Wrapf(err, "upsert asset class %s", code)
}

// UpsertPair inserts the provider/asset-class link if absent.
func UpsertPair(ctx context.Context, provider, class string) error {
	const q = `
		INSERT INTO provider_asset_class (provider_code, asset_class_code)
		VALUES (?, ?)
		ON CONFLICT (provider_code, asset_class_code) DO NOTHING
	`
	_, err := sqlite.Exec(ctx, q, provider, class)
	return errors.Wrapf(err, "upsert pair %s/%s", provider, class)
}

// UpsertSymbol inserts the mapping or updates its remote symbol.
func UpsertSymbol(ctx context.Context, provider, class, canonical, remote string) error {
	const q = `
		INSERT INTO provider_symbol_map
			(provider_code, asset_class_code, canonical_symbol, remote_symbol)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (provider_code, asset_class_code, canonical_symbol)
		DO UPDATE SET remote_symbol = excluded.remote_symbol
	`
	_, err := sqlite.Exec(ctx, q, provider, class, canonical, remote)
	return errors.Wrapf(err, "upsert symbol %s/%s %s", provider, class, canonical)
}

// DeleteProvider removes the provider row. RESTRICT foreign keys block
// the delete while any pair still references it.
func DeleteProvider(ctx context.Context, code string) error {
	_, err := sqlite.Exec(ctx, `DELETE FROM provider WHERE code = ?`, code)
	return errors.Wrapf(err, "delete provider %s", code)
}

// DeleteAssetClass removes the asset class row.
func DeleteAssetClass(ctx context.Context, code string) error {
	_, err := sqlite.Exec(ctx, `DELETE FROM asset_class WHERE code = ?`, code)
	return errors.Wrapf(err, "delete asset class %s", code)
}

// DeletePair removes the provider/asset-class link. RESTRICT foreign
// keys block the delete while a manifest or symbol references it.
func DeletePair(ctx context.Context, provider, class string) error {
	const q = `
		DELETE FROM provider_asset_class
		WHERE provider_code = ? AND asset_class_code = ?
	`
	_, err := sqlite.Exec(ctx, q, provider, class)
	return errors.Wrapf(err, "delete pair %s/%s", provider, class)
}

// DeleteSymbol removes one symbol mapping row, keyed by the full
// stored tuple including the remote symbol.
func DeleteSymbol(ctx context.Context, s Symbol) error {
	const q = `
		DELETE FROM provider_symbol_map
		WHERE provider_code = ? AND asset_class_code = ?
			AND canonical_symbol = ? AND remote_symbol = ?
	`
	_, err := sqlite.Exec(ctx, q, s.Provider, s.Class, s.Canonical, s.Remote)
	return errors.Wrapf(err, "delete symbol %s/%s %s", s.Provider, s.Class, s.Canonical)
}
