// Package timeutil holds the timestamp conventions shared by every
// store in this repository: RFC3339 parsing, the canonical millisecond
// UTC string form of persisted timestamps, and conversion of local
// wall-clock times to UTC with explicit DST handling.
package timeutil

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// millisLayout is the canonical string form of every persisted
// timestamp. Fixed width keeps lexicographic and chronological order
// identical, which the gap queue relies on for expiry comparisons.
const millisLayout = "2006-01-02T15:04:05.000Z"

// Errors surfaced by FromLocalNaive under policies that refuse to
// resolve a DST edge case.
var (
	ErrAmbiguousLocalTime   = errors.New("ambiguous local time")
	ErrNonexistentLocalTime = errors.New("nonexistent local time")
)

// ParseRFC3339UTC parses an offset-bearing RFC3339 timestamp and
// converts it to UTC.
func ParseRFC3339UTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad rfc3339 %q", s)
	}
	return t.UTC(), nil
}

// ToRFC3339Millis formats t as RFC3339 UTC with millisecond precision
// and a Z suffix.
func ToRFC3339Millis(t time.Time) string {
	return t.UTC().Format(millisLayout)
}

// DSTPolicy selects how FromLocalNaive resolves local wall-clock times
// that do not map to exactly one UTC instant.
type DSTPolicy int

const (
	// Strict errors on both ambiguous (fall-back) and nonexistent
	// (spring-forward) local times.
	Strict DSTPolicy = iota
	// PreferEarliest picks the earlier instant of an ambiguous pair.
	PreferEarliest
	// PreferLatest picks the later instant of an ambiguous pair.
	PreferLatest
	// ShiftForward steps a nonexistent local time forward in one-minute
	// increments, up to two hours, and takes the first wall time that
	// maps to a single instant.
	ShiftForward
)

// FromLocalNaive converts the wall-clock components of naive,
// interpreted in the IANA zone tzName, to UTC. The location attached
// to naive is ignored; only its displayed date and clock matter.
func FromLocalNaive(naive time.Time, tzName string, policy DSTPolicy) (time.Time, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad tz %q", tzName)
	}
	return fromLocalNaiveLoc(naive, loc, policy)
}

func fromLocalNaiveLoc(naive time.Time, loc *time.Location, policy DSTPolicy) (time.Time, error) {
	candidates := localCandidates(naive, loc)
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		if policy != ShiftForward {
			return time.Time{}, errors.WithMessagef(ErrNonexistentLocalTime, "%s in %s", naive.Format("2006-01-02T15:04:05"), loc)
		}
		t := naive
		for i := 0; i < 120; i++ {
			t = t.Add(time.Minute)
			if cs := localCandidates(t, loc); len(cs) == 1 {
				return cs[0], nil
			}
		}
		return time.Time{}, errors.WithMessagef(ErrNonexistentLocalTime, "%s in %s", naive.Format("2006-01-02T15:04:05"), loc)
	default:
		switch policy {
		case PreferEarliest:
			return candidates[0], nil
		case PreferLatest:
			return candidates[len(candidates)-1], nil
		default:
			return time.Time{}, errors.WithMessagef(ErrAmbiguousLocalTime, "%s in %s", naive.Format("2006-01-02T15:04:05"), loc)
		}
	}
}

// localCandidates returns every UTC instant whose wall clock in loc
// matches the components of naive, in ascending order. Zero results
// means the wall time falls in a spring-forward gap; two means it is
// repeated across a fall-back transition.
func localCandidates(naive time.Time, loc *time.Location) []time.Time {
	y, mo, d := naive.Date()
	h, mi, s := naive.Clock()
	guess := time.Date(y, mo, d, h, mi, s, 0, time.UTC)

	seen := make(map[int]bool)
	var out []time.Time
	for _, probe := range []time.Time{guess.Add(-24 * time.Hour), guess, guess.Add(24 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true

		cand := guess.Add(-time.Duration(offset) * time.Second)
		ly, lmo, ld := cand.In(loc).Date()
		lh, lmi, ls := cand.In(loc).Clock()
		if ly == y && lmo == mo && ld == d && lh == h && lmi == mi && ls == s {
			out = append(out, cand)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
