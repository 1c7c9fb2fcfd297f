package timeutil

import "time"

// Time is a time.Time that marshals to and from the canonical RFC3339
// string form, for use in TOML-backed configuration files where
// timestamps are written as quoted strings.
type Time struct {
	time.Time
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Time) UnmarshalText(b []byte) error {
	parsed, err := ParseRFC3339UTC(string(b))
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(ToRFC3339Millis(t.Time)), nil
}
