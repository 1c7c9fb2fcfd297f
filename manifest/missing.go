package manifest

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/bucket"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
)

// Interval is a half-open UTC time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// ComputeMissing returns the sub-ranges of [windowStart, windowEnd)
// that the manifest's coverage does not yet include, as coalesced
// half-open UTC intervals in ascending order. It reads the manifest's
// timeframe and coverage but never mutates state.
func ComputeMissing(ctx context.Context, manifestID int64, windowStart, windowEnd time.Time) ([]Interval, error) {
	defer metrics.RecordElapsed(time.Now())

	if !windowEnd.After(windowStart) {
		return nil, nil
	}

	tf, err := loadTimeframe(ctx, manifestID)
	if err != nil {
		return nil, err
	}

	startID := bucket.ID(windowStart, tf)
	endID := bucket.ID(windowEnd, tf)
	if endID <= startID {
		return nil, nil
	}
	start32, err := bucket.ID32(windowStart, tf)
	if err != nil {
		return nil, errors.Wrap(err, "window start")
	}
	end32, err := bucket.ID32(windowEnd, tf)
	if err != nil {
		return nil, errors.Wrap(err, "window end")
	}

	present, _, err := CoverageGet(ctx, manifestID)
	if err != nil {
		return nil, err
	}

	window := roaring.New()
	window.AddRange(uint64(start32), uint64(end32))
	missing := roaring.AndNot(window, present)

	return coalesce(missing, tf), nil
}

// coalesce walks the missing ids in ascending order and folds maximal
// runs of consecutive ids into UTC intervals. A run [first..last]
// becomes [Start(first), Start(last+1)).
func coalesce(missing *roaring.Bitmap, tf bucket.Timeframe) []Interval {
	var out []Interval
	it := missing.Iterator()
	if !it.HasNext() {
		return out
	}

	runFirst := int64(it.Next())
	prev := runFirst
	for it.HasNext() {
		id := int64(it.Next())
		if id == prev+1 {
			prev = id
			continue
		}
		out = append(out, Interval{
			Start: bucket.Start(runFirst, tf),
			End:   bucket.Start(prev+1, tf),
		})
		runFirst = id
		prev = id
	}
	out = append(out, Interval{
		Start: bucket.Start(runFirst, tf),
		End:   bucket.Start(prev+1, tf),
	})
	return out
}
