package bucket

import (
	"fmt"
	"math"
	"time"
)

const (
	secsPerMinute = 60
	secsPerHour   = 60 * secsPerMinute
	secsPerDay    = 24 * secsPerHour
	secsPerWeek   = 7 * secsPerDay

	// shift so Monday 1969-12-29 00:00Z becomes index 0
	weekAnchorOffsetSecs = 3 * secsPerDay
)

// OverflowError reports a bucket id that cannot be represented in the
// 32 bits the coverage bitmap stores.
type OverflowError struct {
	ID int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("bucket id %d overflows 32 bits", e.ID)
}

// ID computes the bucket id for a UTC instant. Division rounds toward
// negative infinity, so instants before the unit's anchor yield
// negative ids (the epoch, or Monday 1969-12-29 for weeks).
func ID(t time.Time, tf Timeframe) int64 {
	switch tf.Unit {
	case Week:
		width := int64(secsPerWeek) * int64(tf.Amount)
		return floorDiv(t.Unix()+weekAnchorOffsetSecs, width)
	case Month:
		y, m, _ := t.UTC().Date()
		idx := int64(y-1970)*12 + int64(m-1)
		return floorDiv(idx, int64(tf.Amount))
	default:
		return floorDiv(t.Unix(), fixedWidthSecs(tf))
	}
}

// Start returns the UTC instant at which bucket id begins.
func Start(id int64, tf Timeframe) time.Time {
	switch tf.Unit {
	case Week:
		width := int64(secsPerWeek) * int64(tf.Amount)
		return time.Unix(id*width-weekAnchorOffsetSecs, 0).UTC()
	case Month:
		startIdx := id * int64(tf.Amount)
		y := 1970 + floorDiv(startIdx, 12)
		m := time.Month(mod(startIdx, 12) + 1)
		return time.Date(int(y), m, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Unix(id*fixedWidthSecs(tf), 0).UTC()
	}
}

// EndExclusive returns the exclusive end of bucket id, which is the
// start of bucket id+1 for every unit.
func EndExclusive(id int64, tf Timeframe) time.Time {
	return Start(id+1, tf)
}

// ID32 is ID constrained to the unsigned 32-bit range used by the
// coverage bitmap. Ids outside that range fail with *OverflowError.
func ID32(t time.Time, tf Timeframe) (uint32, error) {
	id := ID(t, tf)
	if id < 0 || id > math.MaxUint32 {
		return 0, &OverflowError{ID: id}
	}
	return uint32(id), nil
}

func fixedWidthSecs(tf Timeframe) int64 {
	switch tf.Unit {
	case Minute:
		return secsPerMinute * int64(tf.Amount)
	case Hour:
		return secsPerHour * int64(tf.Amount)
	default:
		return secsPerDay * int64(tf.Amount)
	}
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
