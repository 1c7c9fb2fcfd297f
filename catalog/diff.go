package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Diff is what has to change to make the store match the declared
// catalog. Upsert sets hold only wanted rows that are missing from the
// store or stored with a different provider name / remote symbol;
// delete sets are populated only when pruning.
type Diff struct {
	ProvidersUpsert map[string]string
	ClassesUpsert   map[string]bool
	PairsUpsert     map[Pair]bool
	SymbolsUpsert   map[Symbol]bool

	ProvidersDelete map[string]bool
	ClassesDelete   map[string]bool
	PairsDelete     map[Pair]bool
	SymbolsDelete   map[Symbol]bool
}

// Empty reports whether there is nothing to upsert or delete.
func (d *Diff) Empty() bool {
	return len(d.ProvidersUpsert) == 0 &&
		len(d.ClassesUpsert) == 0 &&
		len(d.PairsUpsert) == 0 &&
		len(d.SymbolsUpsert) == 0 &&
		len(d.ProvidersDelete) == 0 &&
		len(d.ClassesDelete) == 0 &&
		len(d.PairsDelete) == 0 &&
		len(d.SymbolsDelete) == 0
}

// makeDiff computes wanted-vs-current. Wanted rows missing from the
// store (or stored with a different provider name / remote symbol)
// become upserts regardless of options, so re-syncing an already
// synced catalog yields an empty diff. When prune is set, current rows
// absent from wanted become deletes.
func makeDiff(wanted, current *Contents, prune bool) *Diff {
	d := &Diff{
		ProvidersUpsert: make(map[string]string),
		ClassesUpsert:   make(map[string]bool),
		PairsUpsert:     make(map[Pair]bool),
		SymbolsUpsert:   make(map[Symbol]bool),
		ProvidersDelete: make(map[string]bool),
		ClassesDelete:   make(map[string]bool),
		PairsDelete:     make(map[Pair]bool),
		SymbolsDelete:   make(map[Symbol]bool),
	}
	for code, name := range wanted.Providers {
		if have, ok := current.Providers[code]; !ok || have != name {
			d.ProvidersUpsert[code] = name
		}
	}
	for code := range wanted.Classes {
		if !current.Classes[code] {
			d.ClassesUpsert[code] = true
		}
	}
	for p := range wanted.Pairs {
		if !current.Pairs[p] {
			d.PairsUpsert[p] = true
		}
	}
	for s := range wanted.Symbols {
		if !current.Symbols[s] {
			d.SymbolsUpsert[s] = true
		}
	}
	if !prune {
		return d
	}
	for code := range current.Providers {
		if _, ok := wanted.Providers[code]; !ok {
			d.ProvidersDelete[code] = true
		}
	}
	for code := range current.Classes {
		if !wanted.Classes[code] {
			d.ClassesDelete[code] = true
		}
	}
	for p := range current.Pairs {
		if !wanted.Pairs[p] {
			d.PairsDelete[p] = true
		}
	}
	for s := range current.Symbols {
		if !wanted.Symbols[s] {
			d.SymbolsDelete[s] = true
		}
	}
	return d
}

// String renders the diff for CLI consumption. Upsert sections come
// first, then delete sections; both list providers, asset classes,
// pairs, and symbols in that order. Each section is sorted by natural
// key and its header is underlined to the title length. Empty sections
// are omitted. An empty diff renders as exactly "No changes".
func (d *Diff) String() string {
	var b strings.Builder
	wroteAny := false

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if wroteAny {
			b.WriteByte('\n')
		}
		b.WriteString(title)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("-", len(title)))
		b.WriteByte('\n')
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		wroteAny = true
	}

	section("Providers (UPSERT)", providerLines("+", d.ProvidersUpsert))
	section("Asset Classes (UPSERT)", codeLines("+", d.ClassesUpsert))
	section("Provider - Class (UPSERT)", pairLines("+", d.PairsUpsert))
	section("Symbol Map (UPSERT)", symbolUpsertLines(d.SymbolsUpsert))

	section("Providers (DELETE)", codeLines("-", d.ProvidersDelete))
	section("Asset Classes (DELETE)", codeLines("-", d.ClassesDelete))
	section("Provider - Class (DELETE)", pairLines("-", d.PairsDelete))
	section("Symbol Map (DELETE)", symbolDeleteLines(d.SymbolsDelete))

	if !wroteAny {
		return "No changes"
	}
	return b.String()
}

func providerLines(prefix string, m map[string]string) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	lines := make([]string, len(codes))
	for i, code := range codes {
		lines[i] = fmt.Sprintf("%s %s  %q", prefix, code, m[code])
	}
	return lines
}

func codeLines(prefix string, m map[string]bool) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	lines := make([]string, len(codes))
	for i, code := range codes {
		lines[i] = fmt.Sprintf("%s %s", prefix, code)
	}
	return lines
}

func pairLines(prefix string, m map[Pair]bool) []string {
	pairs := make([]Pair, 0, len(m))
	for p := range m {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Provider != pairs[j].Provider {
			return pairs[i].Provider < pairs[j].Provider
		}
		return pairs[i].Class < pairs[j].Class
	})
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = fmt.Sprintf("%s %s - %s", prefix, p.Provider, p.Class)
	}
	return lines
}

func sortedSymbols(m map[Symbol]bool) []Symbol {
	symbols := make([]Symbol, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Canonical != b.Canonical {
			return a.Canonical < b.Canonical
		}
		return a.Remote < b.Remote
	})
	return symbols
}

func symbolUpsertLines(m map[Symbol]bool) []string {
	symbols := sortedSymbols(m)
	lines := make([]string, len(symbols))
	for i, s := range symbols {
		if s.Canonical == s.Remote {
			lines[i] = fmt.Sprintf("+ %s/%s  %s", s.Provider, s.Class, s.Canonical)
		} else {
			lines[i] = fmt.Sprintf("+ %s/%s  %s → %s", s.Provider, s.Class, s.Canonical, s.Remote)
		}
	}
	return lines
}

func symbolDeleteLines(m map[Symbol]bool) []string {
	symbols := sortedSymbols(m)
	lines := make([]string, len(symbols))
	for i, s := range symbols {
		lines[i] = fmt.Sprintf("- %s/%s  %s (%s)", s.Provider, s.Class, s.Canonical, s.Remote)
	}
	return lines
}
