package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the on-disk format of created_at, completed_at and last_updated.
	TimestampLayout = "2006-01-02 15:04:05"
	// DateLayout is the on-disk format of due dates.
	DateLayout = "2006-01-02"
)

// Timestamp is a local wall-clock instant with second precision.
type Timestamp struct {
	t time.Time
}

// NewTimestamp truncates t to whole seconds so the formatted value and the
// in-memory value always order the same way.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.Truncate(time.Second)}
}

// ParseTimestamp reads a timestamp in TimestampLayout, interpreted in local time.
func ParseTimestamp(raw string) (Timestamp, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(raw), time.Local)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return Timestamp{t: t}, nil
}

// Time returns the underlying instant.
func (ts Timestamp) Time() time.Time { return ts.t }

// IsZero reports whether the timestamp was never set.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Before reports whether ts is earlier than other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// Equal reports whether both timestamps denote the same second.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

func (ts Timestamp) String() string {
	return ts.t.Format(TimestampLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ts *Timestamp) UnmarshalText(b []byte) error {
	parsed, err := ParseTimestamp(string(b))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// Date is a calendar day without a time component.
type Date struct {
	t time.Time
}

// NewDate builds a Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads a YYYY-MM-DD date.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("due date must be in YYYY-MM-DD format: %q", raw)
	}
	return Date{t: t}, nil
}

// Before reports whether d falls on an earlier day than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// Equal reports whether both dates are the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
