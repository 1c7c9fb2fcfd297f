package catalog_test

import (
	"strings"
	"testing"

	. "github.com/mag1cfrog/stock-trading-bot/catalog"
	"github.com/mag1cfrog/stock-trading-bot/database/sqlite/sqltest"
)

func tinyCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := ParseCatalog([]byte(`
[providers.alpaca]
name = "Alpaca"
asset_classes = ["us_equity"]

[[providers.alpaca.symbol_map]]
asset_class = "us_equity"
canonical   = "AAPL"
remote      = "AAPL"

[providers.polygon]
name = "Polygon"
asset_classes = ["futures"]
`))
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestSyncHappyPathAndIdempotent(t *testing.T) {
	ctx := sqltest.NewContext(t)

	diff, err := Sync(ctx, tinyCatalog(t), SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.ProvidersUpsert) != 2 || len(diff.ClassesUpsert) != 2 {
		t.Errorf("first sync diff = %+v, want two providers and two classes", diff)
	}

	if got := sqltest.Count(ctx, t, "provider"); got != 2 {
		t.Errorf("provider count = %d want 2", got)
	}
	if got := sqltest.Count(ctx, t, "asset_class"); got != 2 {
		t.Errorf("asset_class count = %d want 2", got)
	}
	if got := sqltest.Count(ctx, t, "provider_asset_class"); got != 2 {
		t.Errorf("provider_asset_class count = %d want 2", got)
	}
	if got := sqltest.Count(ctx, t, "provider_symbol_map"); got != 1 {
		t.Errorf("provider_symbol_map count = %d want 1", got)
	}

	// Second run with the same input is a no-op.
	diff2, err := Sync(ctx, tinyCatalog(t), SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !diff2.Empty() {
		t.Errorf("second sync diff not empty:\n%s", diff2)
	}
}

func TestSyncDryRunDoesNotWrite(t *testing.T) {
	ctx := sqltest.NewContext(t)

	diff, err := Sync(ctx, tinyCatalog(t), SyncOptions{DryRun: true, Prune: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff.Empty() {
		t.Fatal("dry-run diff should not be empty")
	}
	if !strings.Contains(diff.String(), "Providers (UPSERT)") {
		t.Errorf("diff rendering missing provider section:\n%s", diff)
	}

	for _, table := range []string{"provider", "asset_class", "provider_asset_class", "provider_symbol_map", "asset_manifest"} {
		if got := sqltest.Count(ctx, t, table); got != 0 {
			t.Errorf("%s count = %d want 0 after dry-run", table, got)
		}
	}
}

func TestSyncUpdatesRemoteSymbol(t *testing.T) {
	ctx := sqltest.NewContext(t)

	cat, err := ParseCatalog([]byte(`
[providers.alpaca]
name = "Alpaca"
asset_classes = ["us_equity"]

[[providers.alpaca.symbol_map]]
asset_class = "us_equity"
canonical   = "AAPL"
remote      = "AAPL"
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(ctx, cat, SyncOptions{}); err != nil {
		t.Fatal(err)
	}

	cat2, err := ParseCatalog([]byte(`
[providers.alpaca]
name = "Alpaca"
asset_classes = ["us_equity"]

[[providers.alpaca.symbol_map]]
asset_class = "us_equity"
canonical   = "AAPL"
remote      = "AAPL.X"
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(ctx, cat2, SyncOptions{}); err != nil {
		t.Fatal(err)
	}

	remote, err := RemoteSymbol(ctx, "alpaca", "us_equity", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if remote != "AAPL.X" {
		t.Errorf("remote = %q want %q", remote, "AAPL.X")
	}
}

func TestSyncPruneRespectsFKRestrict(t *testing.T) {
	ctx := sqltest.NewContext(t)

	seed, err := ParseCatalog([]byte(`
[providers.alpaca]
name = "Alpaca"
asset_classes = ["us_equity"]
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(ctx, seed, SyncOptions{}); err != nil {
		t.Fatal(err)
	}

	// Reference the pair from asset_manifest so RESTRICT bites on prune.
	sqltest.Exec(ctx, t, `
		INSERT INTO asset_manifest
			(symbol, provider_code, asset_class_code, timeframe_amount, timeframe_unit, desired_start)
		VALUES ('AAPL', 'alpaca', 'us_equity', 1, 'Day', '2020-01-01T00:00:00.000Z')
	`)

	// The new catalog omits the pair; prune must fail and roll back.
	omit, err := ParseCatalog([]byte(`
[providers.polygon]
name = "Polygon"
asset_classes = []
`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Sync(ctx, omit, SyncOptions{Prune: true})
	if err == nil {
		t.Fatal("prune over a referenced pair should fail")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "foreign key") {
		t.Errorf("err = %v, want a foreign key violation", err)
	}

	// The pair survived the rollback; polygon was not committed either.
	if got := sqltest.Count(ctx, t, "provider_asset_class"); got != 1 {
		t.Errorf("provider_asset_class count = %d want 1", got)
	}
	if got := sqltest.Count(ctx, t, "asset_manifest"); got != 1 {
		t.Errorf("asset_manifest count = %d want 1", got)
	}
}

func TestSyncPruneDeletesUnreferencedRows(t *testing.T) {
	ctx := sqltest.NewContext(t)

	if _, err := Sync(ctx, tinyCatalog(t), SyncOptions{}); err != nil {
		t.Fatal(err)
	}

	only, err := ParseCatalog([]byte(`
[providers.alpaca]
name = "Alpaca"
asset_classes = ["us_equity"]

[[providers.alpaca.symbol_map]]
asset_class = "us_equity"
canonical   = "AAPL"
remote      = "AAPL"
`))
	if err != nil {
		t.Fatal(err)
	}
	diff, err := Sync(ctx, only, SyncOptions{Prune: true})
	if err != nil {
		t.Fatal(err)
	}
	if !diff.ProvidersDelete["polygon"] {
		t.Errorf("diff should delete polygon: %+v", diff)
	}

	if got := sqltest.Count(ctx, t, "provider"); got != 1 {
		t.Errorf("provider count = %d want 1", got)
	}
	if got := sqltest.Count(ctx, t, "asset_class"); got != 1 {
		t.Errorf("asset_class count = %d want 1", got)
	}
	if got := sqltest.Count(ctx, t, "provider_asset_class"); got != 1 {
		t.Errorf("provider_asset_class count = %d want 1", got)
	}
}

func TestSyncRefreshesAllowedPairCache(t *testing.T) {
	ctx := sqltest.NewContext(t)

	ClearAllowedCache()
	if IsAllowedPair("alpaca", "us_equity") {
		t.Fatal("cache should start empty")
	}

	if _, err := Sync(ctx, tinyCatalog(t), SyncOptions{}); err != nil {
		t.Fatal(err)
	}
	if !IsAllowedPair("alpaca", "us_equity") {
		t.Error("cache should contain (alpaca, us_equity) after sync")
	}
	if !IsAllowedPair("polygon", "futures") {
		t.Error("cache should contain (polygon, futures) after sync")
	}
	if IsAllowedPair("alpaca", "futures") {
		t.Error("cache should not contain undeclared pair")
	}
}

func TestDryRunDoesNotRefreshCache(t *testing.T) {
	ctx := sqltest.NewContext(t)

	ClearAllowedCache()
	if _, err := Sync(ctx, tinyCatalog(t), SyncOptions{DryRun: true}); err != nil {
		t.Fatal(err)
	}
	if IsAllowedPair("alpaca", "us_equity") {
		t.Error("dry-run must not refresh the allowed-pair cache")
	}
}

func TestReadContentsRoundTrip(t *testing.T) {
	ctx := sqltest.NewContext(t)

	if _, err := Sync(ctx, tinyCatalog(t), SyncOptions{}); err != nil {
		t.Fatal(err)
	}
	current, err := ReadContents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Providers["alpaca"] != "Alpaca" || current.Providers["polygon"] != "Polygon" {
		t.Errorf("providers = %v", current.Providers)
	}
	if !current.Pairs[Pair{Provider: "polygon", Class: "futures"}] {
		t.Errorf("pairs = %v", current.Pairs)
	}
	if !current.Symbols[Symbol{Provider: "alpaca", Class: "us_equity", Canonical: "AAPL", Remote: "AAPL"}] {
		t.Errorf("symbols = %v", current.Symbols)
	}
}

func TestRemoteSymbolNotFound(t *testing.T) {
	ctx := sqltest.NewContext(t)

	_, err := RemoteSymbol(ctx, "alpaca", "us_equity", "MISSING")
	if err == nil {
		t.Fatal("want error for missing mapping")
	}
	if !strings.Contains(err.Error(), "symbol mapping not found") {
		t.Errorf("err = %v", err)
	}
}

func TestCacheSnapshotSwap(t *testing.T) {
	ctx := sqltest.NewContext(t)

	ClearAllowedCache()
	sqltest.SeedPair(ctx, t, "alpaca", "Alpaca", "us_equity")

	// Readers do not see seeded rows until a refresh swaps the snapshot.
	if IsAllowedPair("alpaca", "us_equity") {
		t.Fatal("stale snapshot should not see new pair")
	}
	if err := RefreshAllowed(ctx); err != nil {
		t.Fatal(err)
	}
	if !IsAllowedPair("alpaca", "us_equity") {
		t.Error("refreshed snapshot should see the pair")
	}

	snap := AllowedSnapshot()
	if len(snap) != 1 {
		t.Errorf("snapshot size = %d want 1", len(snap))
	}

	// A refresh after clearing the table swaps in an empty snapshot,
	// but the previously taken snapshot value is unaffected.
	sqltest.Exec(ctx, t, `DELETE FROM provider_asset_class`)
	if err := RefreshAllowed(ctx); err != nil {
		t.Fatal(err)
	}
	if IsAllowedPair("alpaca", "us_equity") {
		t.Error("cleared table should clear membership after refresh")
	}
	if len(snap) != 1 {
		t.Error("held snapshot must be immutable across refresh")
	}
}
