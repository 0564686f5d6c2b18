package notion2ics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrParseDate = errors.New("date parsing error")

const dateLayout = "2006-01-02"

// DateTime is a point in time that may or may not carry a time of day.
// Date-only values are midnight UTC.
type DateTime struct {
	time.Time
	HasTime bool
}

// NormalizedDate is the parsed form of a date property. End is nil when the
// property had no end value.
type NormalizedDate struct {
	Start DateTime
	End   *DateTime
}

// Normalize parses the start and optional end of a date property. Each value
// may be an RFC 3339 timestamp or a bare YYYY-MM-DD date.
func Normalize(start string, end *string) (NormalizedDate, error) {
	var date NormalizedDate

	s, err := parseDateTime(start)
	if err != nil {
		return NormalizedDate{}, err
	}
	date.Start = s

	if end != nil {
		e, err := parseDateTime(*end)
		if err != nil {
			return NormalizedDate{}, fmt.Errorf("end: %w", err)
		}
		date.End = &e
	}

	return date, nil
}

func parseDateTime(value string) (DateTime, error) {
	value = strings.TrimSpace(value)

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return DateTime{Time: t, HasTime: true}, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return DateTime{Time: t}, nil
	}

	return DateTime{}, fmt.Errorf("%w: %q is not a valid date", ErrParseDate, value)
}

// String renders the value back into the form Normalize accepts.
func (d DateTime) String() string {
	if d.HasTime {
		return d.Format(time.RFC3339)
	}
	return d.Format(dateLayout)
}
