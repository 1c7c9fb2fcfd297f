package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
)

// SyncOptions control a catalog synchronization run.
type SyncOptions struct {
	// DryRun computes and returns the diff without writing.
	DryRun bool
	// Prune deletes rows absent from the declared catalog.
	Prune bool
}

// Sync reconciles the store with the declared catalog.
//
// The catalog is normalized, diffed against the current store state,
// and the diff is applied in a single immediate transaction: upserts
// parents-before-children (providers, classes, pairs, symbols), then
// deletes children-before-parents (symbols, pairs, providers,
// classes). On DryRun the diff is returned with nothing written. After
// a committed apply the allowed-pair cache is refreshed.
func Sync(ctx context.Context, cat *Catalog, opt SyncOptions) (*Diff, error) {
	defer metrics.RecordElapsed(time.Now())

	if _, err := cat.Normalize(DropUnknownSymbolClass); err != nil {
		return nil, err
	}
	wanted := wantedContents(cat)

	dbtx, txctx, err := sqlite.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin catalog sync")
	}
	defer dbtx.Rollback(ctx)

	current, err := ReadContents(txctx)
	if err != nil {
		return nil, err
	}
	diff := makeDiff(wanted, current, opt.Prune)

	if opt.DryRun {
		return diff, nil
	}

	if err := applyDiff(txctx, diff); err != nil {
		return nil, err
	}
	if err := dbtx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit catalog sync")
	}

	if err := RefreshAllowed(ctx); err != nil {
		return nil, errors.Wrap(err, "refresh allowed pairs")
	}
	return diff, nil
}

// wantedContents flattens a normalized catalog into the entity sets
// the diff works on.
func wantedContents(cat *Catalog) *Contents {
	w := newContents()
	for code, cfg := range cat.Providers {
		w.Providers[code] = cfg.Name
		for _, class := range cfg.AssetClasses {
			w.Classes[class] = true
			w.Pairs[Pair{Provider: code, Class: class}] = true
		}
		for _, sm := range cfg.SymbolMap {
			w.Symbols[Symbol{
				Provider:  code,
				Class:     sm.AssetClass,
				Canonical: sm.Canonical,
				Remote:    sm.Remote,
			}] = true
		}
	}
	return w
}

// applyDiff writes the diff inside the caller's transaction. Delete
// order honors RESTRICT foreign keys: symbols, then pairs, then
// providers and classes.
func applyDiff(ctx context.Context, d *Diff) error {
	for code, name := range d.ProvidersUpsert {
		if err := UpsertProvider(ctx, code, name); err != nil {
			return err
		}
	}
	for code := range d.ClassesUpsert {
		if err := UpsertAssetClass(ctx, code); err != nil {
			return err
		}
	}
	for p := range d.PairsUpsert {
		if err := UpsertPair(ctx, p.Provider, p.Class); err != nil {
			return err
		}
	}
	for s := range d.SymbolsUpsert {
		if err := UpsertSymbol(ctx, s.Provider, s.Class, s.Canonical, s.Remote); err != nil {
			return err
		}
	}

	for s := range d.SymbolsDelete {
		if err := DeleteSymbol(ctx, s); err != nil {
			return err
		}
	}
	for p := range d.PairsDelete {
		if err := DeletePair(ctx, p.Provider, p.Class); err != nil {
			return err
		}
	}
	for code := range d.ProvidersDelete {
		if err := DeleteProvider(ctx, code); err != nil {
			return err
		}
	}
	for code := range d.ClassesDelete {
		if err := DeleteAssetClass(ctx, code); err != nil {
			return err
		}
	}
	return nil
}
