// Package bucket maps UTC instants to stable integer bucket ids per
// timeframe, and back to the instant at which a bucket begins.
//
// One stable epoch: Unix (1970-01-01T00:00:00Z). Minute, hour, and day
// frames use second-based math. Weeks are Monday-aligned using a week
// anchor of 1969-12-29T00:00:00Z. Months use linear (year, month)
// indexing relative to 1970-01. All functions assume UTC inputs.
package bucket

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Unit is a timeframe granularity, calendar-aware where needed.
type Unit int

const (
	// Minute is a UTC minute.
	Minute Unit = iota
	// Hour is a UTC hour.
	Hour
	// Day is a UTC day.
	Day
	// Week is Monday-based, UTC.
	Week
	// Month is a calendar month, UTC.
	Month
)

var unitNames = map[Unit]string{
	Minute: "Minute",
	Hour:   "Hour",
	Day:    "Day",
	Week:   "Week",
	Month:  "Month",
}

// String returns the canonical unit name as stored in the database.
func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// UnitFromString parses a canonical unit name.
func UnitFromString(s string) (Unit, error) {
	for u, name := range unitNames {
		if name == s {
			return u, nil
		}
	}
	return 0, errors.Errorf("unknown timeframe unit: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	s, ok := unitNames[u]
	if !ok {
		return nil, errors.Errorf("unknown timeframe unit: %d", int(u))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(b []byte) error {
	v, err := UnitFromString(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// A Timeframe is amount × unit (e.g. 5-Minute, 3-Hour, 2-Week, 6-Month).
type Timeframe struct {
	Amount uint32
	Unit   Unit
}

// NewTimeframe validates amount ≥ 1 and returns the timeframe.
func NewTimeframe(amount uint32, unit Unit) (Timeframe, error) {
	if amount < 1 {
		return Timeframe{}, errors.New("timeframe amount must be >= 1")
	}
	if _, ok := unitNames[unit]; !ok {
		return Timeframe{}, errors.Errorf("unknown timeframe unit: %d", int(unit))
	}
	return Timeframe{Amount: amount, Unit: unit}, nil
}

// TimeframeFromRow rebuilds a Timeframe from its stored
// (amount, unit) columns.
func TimeframeFromRow(amount int64, unit string) (Timeframe, error) {
	if amount < 1 {
		return Timeframe{}, errors.Errorf("timeframe_amount must be >= 1, got %d", amount)
	}
	u, err := UnitFromString(unit)
	if err != nil {
		return Timeframe{}, err
	}
	return Timeframe{Amount: uint32(amount), Unit: u}, nil
}

// Columns returns the timeframe in its stored (amount, unit) form.
func (tf Timeframe) Columns() (int64, string) {
	return int64(tf.Amount), tf.Unit.String()
}

// short suffixes for the compact CLI form: 5m, 3h, 1D, 1W, 6M.
var unitSuffix = map[Unit]string{
	Minute: "m",
	Hour:   "h",
	Day:    "D",
	Week:   "W",
	Month:  "M",
}

// String renders the compact form, e.g. "5m" or "1D".
func (tf Timeframe) String() string {
	return fmt.Sprintf("%d%s", tf.Amount, unitSuffix[tf.Unit])
}

// ParseTimeframe parses the compact form produced by String.
func ParseTimeframe(s string) (Timeframe, error) {
	if len(s) < 2 {
		return Timeframe{}, errors.Errorf("bad timeframe %q", s)
	}
	digits, suffix := s[:len(s)-1], s[len(s)-1:]
	amount, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return Timeframe{}, errors.Wrapf(err, "bad timeframe %q", s)
	}
	for u, suf := range unitSuffix {
		if suf == suffix {
			return NewTimeframe(uint32(amount), u)
		}
	}
	return Timeframe{}, errors.Errorf("unknown timeframe unit suffix: %q", suffix)
}
