// Package catalog manages the provider catalog: the declarative TOML
// description of providers, asset classes, allowed pairings, and symbol
// translations, its normalized form, and its synchronization into the
// store.
package catalog

import (
	"bytes"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Catalog is the top-level mapping from provider code to configuration.
// Keys are normalized to slugs by Normalize.
type Catalog struct {
	Providers map[string]*ProviderConfig `toml:"providers"`
}

// ProviderConfig is one provider's declared configuration.
type ProviderConfig struct {
	// Name is the human-readable provider name, e.g. "Alpaca Markets".
	Name string `toml:"name"`
	// AssetClasses lists the asset classes the provider supports.
	// Normalization slugs and de-duplicates the list preserving order.
	AssetClasses []string `toml:"asset_classes"`

	// Optional capability metadata; provider-specific semantics.
	Markets          []string          `toml:"markets,omitempty"`
	Timeframes       []TimeframeConfig `toml:"timeframes,omitempty"`
	SupportsExtended *bool             `toml:"supports_extended,omitempty"`
	SupportsBackfill *bool             `toml:"supports_backfill,omitempty"`

	// SymbolMap holds canonical-to-remote symbol mappings for this
	// provider. Normalization de-duplicates by (asset_class, canonical).
	SymbolMap []SymbolMapEntry `toml:"symbol_map,omitempty"`
}

// TimeframeConfig is a timeframe capability descriptor.
type TimeframeConfig struct {
	Amount uint32 `toml:"amount"`
	Unit   string `toml:"unit"`
}

// SymbolMapEntry maps a canonical symbol to the provider's remote
// symbol within one asset class.
type SymbolMapEntry struct {
	AssetClass string `toml:"asset_class"`
	Canonical  string `toml:"canonical"`
	Remote     string `toml:"remote"`
}

// ParseCatalog decodes catalog TOML. Unknown keys are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		return nil, errors.Wrap(err, "parse catalog TOML")
	}
	return &cat, nil
}

// LoadCatalog reads, parses, and normalizes a catalog file. Unknown
// symbol-map asset classes are dropped (see Normalize for the policy
// variant).
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog file %s", path)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	if _, err := cat.Normalize(DropUnknownSymbolClass); err != nil {
		return nil, err
	}
	return cat, nil
}
