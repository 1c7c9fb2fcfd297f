package catalog

import (
	"strings"

	"github.com/pkg/errors"
)

// UnknownSymbolClassPolicy selects what Normalize does with a
// symbol-map entry whose asset class is not in the provider's declared
// list.
type UnknownSymbolClassPolicy int

const (
	// DropUnknownSymbolClass drops the entry, counting it in the report.
	DropUnknownSymbolClass UnknownSymbolClassPolicy = iota
	// ErrorUnknownSymbolClass fails the whole normalization.
	ErrorUnknownSymbolClass
)

// NormalizationReport counts the changes a Normalize pass performed.
type NormalizationReport struct {
	// ProvidersRenamed counts provider keys changed by slugging.
	ProvidersRenamed int
	// AssetClassesDeduped counts removed duplicate asset classes.
	AssetClassesDeduped int
	// SymbolPairsDeduped counts removed duplicate
	// (asset_class, canonical) symbol entries.
	SymbolPairsDeduped int
	// SymbolsDroppedUnknownClass counts symbol entries dropped under
	// DropUnknownSymbolClass.
	SymbolsDroppedUnknownClass int
}

// Slug normalizes an identifier to a strict ASCII slug: trimmed,
// lowercased, chars limited to [a-z0-9_], length 1..=32.
func Slug(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("code cannot be empty")
	}
	if len(s) > 32 {
		return "", errors.New("code length must be 1..=32")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '_':
			b.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			b.WriteRune(ch + ('a' - 'A'))
		default:
			return "", errors.Errorf("code contains invalid character %q", ch)
		}
	}
	return b.String(), nil
}

// Normalize rewrites the catalog in place and reports what changed:
//
//   - provider keys become slugs; collisions after slugging are errors
//   - asset class lists become slugs, de-duplicated preserving first
//   - symbol-map entries get a slugged asset class and trimmed
//     canonical/remote symbols (empty after trim is an error), are
//     de-duplicated by (asset_class, canonical) preserving first, and
//     entries naming an undeclared asset class are handled per policy
//
// Normalize is idempotent: running it twice yields the same catalog
// and an all-zero second report.
func (c *Catalog) Normalize(policy UnknownSymbolClassPolicy) (*NormalizationReport, error) {
	report := new(NormalizationReport)

	rebuilt := make(map[string]*ProviderConfig, len(c.Providers))
	for rawCode, cfg := range c.Providers {
		code, err := Slug(rawCode)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid provider code %q", rawCode)
		}
		if code != rawCode {
			report.ProvidersRenamed++
		}
		if _, ok := rebuilt[code]; ok {
			return nil, errors.Errorf("duplicate provider code after normalization: %s", code)
		}

		if err := normalizeProvider(code, cfg, policy, report); err != nil {
			return nil, err
		}
		rebuilt[code] = cfg
	}
	c.Providers = rebuilt
	return report, nil
}

func normalizeProvider(code string, cfg *ProviderConfig, policy UnknownSymbolClassPolicy, report *NormalizationReport) error {
	before := len(cfg.AssetClasses)
	seen := make(map[string]bool, before)
	classes := make([]string, 0, before)
	for _, raw := range cfg.AssetClasses {
		ac, err := Slug(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid asset class %q for provider %s", raw, code)
		}
		if !seen[ac] {
			seen[ac] = true
			classes = append(classes, ac)
		}
	}
	report.AssetClassesDeduped += before - len(classes)
	cfg.AssetClasses = classes

	if cfg.SymbolMap == nil {
		return nil
	}
	seenPair := make(map[[2]string]bool, len(cfg.SymbolMap))
	out := cfg.SymbolMap[:0]
	for _, sm := range cfg.SymbolMap {
		ac, err := Slug(sm.AssetClass)
		if err != nil {
			return errors.Wrapf(err, "invalid symbol_map.asset_class %q for provider %s", sm.AssetClass, code)
		}
		sm.AssetClass = ac

		sm.Canonical = strings.TrimSpace(sm.Canonical)
		if sm.Canonical == "" {
			return errors.New("symbol_map.canonical cannot be empty after trimming")
		}
		sm.Remote = strings.TrimSpace(sm.Remote)
		if sm.Remote == "" {
			return errors.New("symbol_map.remote cannot be empty after trimming")
		}

		if !seen[sm.AssetClass] {
			switch policy {
			case DropUnknownSymbolClass:
				report.SymbolsDroppedUnknownClass++
				continue
			default:
				return errors.Errorf("symbol_map asset_class %q is not declared in provider.asset_classes", sm.AssetClass)
			}
		}

		key := [2]string{sm.AssetClass, sm.Canonical}
		if seenPair[key] {
			report.SymbolPairsDeduped++
			continue
		}
		seenPair[key] = true
		out = append(out, sm)
	}
	cfg.SymbolMap = out
	return nil
}
