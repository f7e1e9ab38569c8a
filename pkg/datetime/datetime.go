package datetime

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// layouts are tried in order. The zone-less forms are read as UTC.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse accepts RFC 3339, a naive ISO 8601 date-time or a bare date, and
// returns the instant in UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected RFC 3339, YYYY-MM-DDTHH:MM:SS or YYYY-MM-DD", s)
}

// Time decodes any format Parse accepts. It is meant for request decoding
// only; responses keep plain time.Time and RFC 3339.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Ptr returns nil for a nil or absent value.
func (t *Time) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// UTC normalizes t. Timestamp columns have no zone, so every clinical date is
// written as UTC.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// UTCPtr is UTC for optional dates.
func UTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
