package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func wantedMin() *Contents {
	w := newContents()
	w.Providers["alpaca"] = "Alpaca"
	w.Classes["us_equity"] = true
	w.Pairs[Pair{Provider: "alpaca", Class: "us_equity"}] = true
	// canonical == remote -> prints without arrow
	w.Symbols[Symbol{Provider: "alpaca", Class: "us_equity", Canonical: "AAPL", Remote: "AAPL"}] = true
	return w
}

func TestDiffNoChanges(t *testing.T) {
	d := makeDiff(newContents(), newContents(), false)
	require.True(t, d.Empty())
	require.Equal(t, "No changes", d.String())
}

func TestDiffUpsertRendering(t *testing.T) {
	d := makeDiff(wantedMin(), newContents(), false)

	want := "Providers (UPSERT)\n" +
		"------------------\n" +
		"+ alpaca  \"Alpaca\"\n" +
		"\n" +
		"Asset Classes (UPSERT)\n" +
		"----------------------\n" +
		"+ us_equity\n" +
		"\n" +
		"Provider - Class (UPSERT)\n" +
		"-------------------------\n" +
		"+ alpaca - us_equity\n" +
		"\n" +
		"Symbol Map (UPSERT)\n" +
		"-------------------\n" +
		"+ alpaca/us_equity  AAPL\n"

	require.Equal(t, want, d.String())
}

func TestDiffSymbolArrowWhenRemoteDiffers(t *testing.T) {
	w := newContents()
	w.Providers["alpaca"] = "Alpaca"
	w.Classes["futures"] = true
	w.Pairs[Pair{Provider: "alpaca", Class: "futures"}] = true
	w.Symbols[Symbol{Provider: "alpaca", Class: "futures", Canonical: "ES", Remote: "ESZ5"}] = true

	d := makeDiff(w, newContents(), false)
	require.Contains(t, d.String(), "+ alpaca/futures  ES → ESZ5")
}

func TestDiffPruneAndDeleteRendering(t *testing.T) {
	// Current carries extra rows; prune=true turns them into deletes.
	current := newContents()
	current.Providers["alpaca"] = "Alpaca"
	current.Providers["intrinio"] = "Intrinio"
	current.Classes["us_equity"] = true
	current.Classes["futures"] = true
	current.Pairs[Pair{Provider: "alpaca", Class: "us_equity"}] = true
	current.Pairs[Pair{Provider: "intrinio", Class: "futures"}] = true
	current.Symbols[Symbol{Provider: "alpaca", Class: "us_equity", Canonical: "AAPL", Remote: "AAPL"}] = true
	current.Symbols[Symbol{Provider: "intrinio", Class: "futures", Canonical: "ES", Remote: "ESZ5"}] = true

	d := makeDiff(wantedMin(), current, true)
	require.False(t, d.Empty())

	require.True(t, d.ProvidersDelete["intrinio"])
	require.True(t, d.ClassesDelete["futures"])
	require.True(t, d.PairsDelete[Pair{Provider: "intrinio", Class: "futures"}])

	out := d.String()
	require.Contains(t, out, "Providers (DELETE)\n------------------\n- intrinio\n")
	require.Contains(t, out, "Asset Classes (DELETE)\n----------------------\n- futures\n")
	require.Contains(t, out, "Provider - Class (DELETE)\n-------------------------\n- intrinio - futures\n")
	// Deletion line shows the stored remote in parentheses.
	require.Contains(t, out, "Symbol Map (DELETE)\n-------------------\n- intrinio/futures  ES (ESZ5)\n")
}

func TestDiffWithoutPruneNeverDeletes(t *testing.T) {
	current := newContents()
	current.Providers["stale"] = "Stale"
	d := makeDiff(wantedMin(), current, false)
	require.Empty(t, d.ProvidersDelete)
}

func TestDiffEmptyWhenCurrentEqualsWanted(t *testing.T) {
	w := wantedMin()
	current := newContents()
	for k, v := range w.Providers {
		current.Providers[k] = v
	}
	for k := range w.Classes {
		current.Classes[k] = true
	}
	for k := range w.Pairs {
		current.Pairs[k] = true
	}
	for k := range w.Symbols {
		current.Symbols[k] = true
	}

	d := makeDiff(w, current, true)
	require.True(t, d.Empty(), "current == wanted must diff to nothing")
	require.Equal(t, "No changes", d.String())
}

func TestDiffUpsertsOnlyChangedRows(t *testing.T) {
	w := wantedMin()
	current := newContents()
	current.Providers["alpaca"] = "Alpaca Markets" // stale name
	current.Classes["us_equity"] = true
	current.Pairs[Pair{Provider: "alpaca", Class: "us_equity"}] = true
	current.Symbols[Symbol{Provider: "alpaca", Class: "us_equity", Canonical: "AAPL", Remote: "AAPL.OLD"}] = true

	d := makeDiff(w, current, false)
	require.Equal(t, map[string]string{"alpaca": "Alpaca"}, d.ProvidersUpsert)
	require.Empty(t, d.ClassesUpsert)
	require.Empty(t, d.PairsUpsert)
	require.Len(t, d.SymbolsUpsert, 1, "changed remote symbol re-upserts")
}
