// Package manifest persists what data to keep fresh and how much of
// it has been acquired: the durable asset manifests, their coverage
// bitmaps with versioned compare-and-set writes, the missing-range
// planner, and the gap backlog workers lease from.
package manifest

import (
	"bytes"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/bucket"
	"github.com/mag1cfrog/stock-trading-bot/timeutil"
)

// ProviderID names an upstream data provider. Its text form is the
// provider's catalog code.
type ProviderID string

// Known providers.
const (
	ProviderAlpaca ProviderID = "alpaca"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProviderID) UnmarshalText(b []byte) error {
	switch v := ProviderID(b); v {
	case ProviderAlpaca:
		*p = v
		return nil
	}
	return errors.Errorf("unknown provider %q", string(b))
}

// Code returns the catalog code for the provider.
func (p ProviderID) Code() string {
	return string(p)
}

// AssetClass names a class of tradable assets.
type AssetClass string

// Known asset classes.
const (
	AssetClassUSEquity AssetClass = "UsEquity"
	AssetClassFutures  AssetClass = "Futures"
)

var assetClassCodes = map[AssetClass]string{
	AssetClassUSEquity: "us_equity",
	AssetClassFutures:  "futures",
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AssetClass) UnmarshalText(b []byte) error {
	v := AssetClass(b)
	if _, ok := assetClassCodes[v]; !ok {
		return errors.Errorf("unknown asset class %q", string(b))
	}
	*a = v
	return nil
}

// Code returns the catalog code for the asset class.
func (a AssetClass) Code() string {
	return assetClassCodes[a]
}

// TimeframeSpec is the [timeframe] table of an asset spec file.
type TimeframeSpec struct {
	Amount uint32      `toml:"amount"`
	Unit   bucket.Unit `toml:"unit"`
}

// RangeSpec is the [range] table of an asset spec file: exactly one of
// [range.open] or [range.closed].
type RangeSpec struct {
	Open   *OpenRange   `toml:"open,omitempty"`
	Closed *ClosedRange `toml:"closed,omitempty"`
}

// OpenRange keeps coverage fresh from Start onward.
type OpenRange struct {
	Start timeutil.Time `toml:"start"`
}

// ClosedRange covers [Start, End).
type ClosedRange struct {
	Start timeutil.Time `toml:"start"`
	End   timeutil.Time `toml:"end"`
}

// AssetSpec declares what data to keep fresh for one symbol on one
// provider at one timeframe.
type AssetSpec struct {
	Symbol     string        `toml:"symbol"`
	Provider   ProviderID    `toml:"provider"`
	AssetClass AssetClass    `toml:"asset_class"`
	Timeframe  TimeframeSpec `toml:"timeframe"`
	Range      RangeSpec     `toml:"range"`
}

// Validate checks the declared asset's structural invariants.
func (s *AssetSpec) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("symbol cannot be empty")
	}
	if _, err := bucket.NewTimeframe(s.Timeframe.Amount, s.Timeframe.Unit); err != nil {
		return err
	}
	switch {
	case s.Range.Open != nil && s.Range.Closed != nil:
		return errors.New("range must be open or closed, not both")
	case s.Range.Open == nil && s.Range.Closed == nil:
		return errors.New("range is required")
	case s.Range.Closed != nil:
		if !s.Range.Closed.Start.Before(s.Range.Closed.End.Time) {
			return errors.New("closed range start must be before end")
		}
	}
	return nil
}

// DesiredRange returns the desired start and, for closed ranges, the
// exclusive end.
func (s *AssetSpec) DesiredRange() (start time.Time, end *time.Time) {
	if s.Range.Closed != nil {
		e := s.Range.Closed.End.Time
		return s.Range.Closed.Start.Time, &e
	}
	return s.Range.Open.Start.Time, nil
}

// timeframe returns the typed timeframe; call after Validate.
func (s *AssetSpec) timeframe() bucket.Timeframe {
	return bucket.Timeframe{Amount: s.Timeframe.Amount, Unit: s.Timeframe.Unit}
}

// ParseAssetSpec decodes and validates an asset spec. Unknown keys are
// rejected.
func ParseAssetSpec(data []byte) (*AssetSpec, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var spec AssetSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, "parse asset spec TOML")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadAssetSpec reads, decodes, and validates an asset spec file.
func LoadAssetSpec(path string) (*AssetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read asset spec file %s", path)
	}
	return ParseAssetSpec(data)
}
