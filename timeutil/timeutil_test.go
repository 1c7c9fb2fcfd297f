package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func naive(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestParseRFC3339OffsetToUTC(t *testing.T) {
	got, err := ParseRFC3339UTC("2024-03-10T09:30:00-05:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC), got)

	_, err = ParseRFC3339UTC("2024-03-10 09:30:00")
	require.Error(t, err)
}

func TestToRFC3339Millis(t *testing.T) {
	in := time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.UTC)
	require.Equal(t, "2024-01-02T03:04:05.678Z", ToRFC3339Millis(in))

	// Non-UTC inputs are converted first.
	est := time.FixedZone("EST", -5*3600)
	require.Equal(t, "2024-01-02T08:00:00.000Z", ToRFC3339Millis(time.Date(2024, 1, 2, 3, 0, 0, 0, est)))
}

func TestMillisFormRoundTripsThroughParse(t *testing.T) {
	in := time.Date(2015, 6, 1, 0, 0, 0, 250_000_000, time.UTC)
	got, err := ParseRFC3339UTC(ToRFC3339Millis(in))
	require.NoError(t, err)
	require.True(t, got.Equal(in))
}

func TestSpringForwardGapStrictErrors(t *testing.T) {
	// America/New_York jumps from 02:00 to 03:00 on 2024-03-10;
	// 02:30 does not exist.
	_, err := FromLocalNaive(naive(2024, 3, 10, 2, 30, 0), "America/New_York", Strict)
	require.ErrorIs(t, err, ErrNonexistentLocalTime)

	_, err = FromLocalNaive(naive(2024, 3, 10, 2, 30, 0), "America/New_York", PreferEarliest)
	require.ErrorIs(t, err, ErrNonexistentLocalTime)
}

func TestSpringForwardGapShiftsTo3AM(t *testing.T) {
	// ShiftForward lands on 03:00 local, which is 07:00Z under EDT.
	got, err := FromLocalNaive(naive(2024, 3, 10, 2, 30, 0), "America/New_York", ShiftForward)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), got)
}

func TestFallBackAmbiguity(t *testing.T) {
	// 2024-11-03 01:30 occurs twice in America/New_York:
	// 01:30 EDT -> 05:30Z and 01:30 EST -> 06:30Z.
	n := naive(2024, 11, 3, 1, 30, 0)

	_, err := FromLocalNaive(n, "America/New_York", Strict)
	require.ErrorIs(t, err, ErrAmbiguousLocalTime)

	_, err = FromLocalNaive(n, "America/New_York", ShiftForward)
	require.ErrorIs(t, err, ErrAmbiguousLocalTime)

	early, err := FromLocalNaive(n, "America/New_York", PreferEarliest)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC), early)

	late, err := FromLocalNaive(n, "America/New_York", PreferLatest)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC), late)
}

func TestUnambiguousLocalConversion(t *testing.T) {
	got, err := FromLocalNaive(naive(2024, 1, 15, 9, 30, 0), "America/New_York", Strict)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), got)
}

func TestBadZoneName(t *testing.T) {
	_, err := FromLocalNaive(naive(2024, 1, 15, 9, 30, 0), "America/Atlantis", Strict)
	require.Error(t, err)
}

func TestTimeTextRoundTrip(t *testing.T) {
	var v Time
	require.NoError(t, v.UnmarshalText([]byte("2024-01-01T00:00:00-05:00")))
	require.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), v.Time)

	out, err := v.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T05:00:00.000Z", string(out))

	require.Error(t, v.UnmarshalText([]byte("not-a-time")))
}
