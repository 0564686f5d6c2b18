package notion2ics

import (
	"fmt"
	"strings"
	"time"
)

var exportTimeFormats = []string{"15:04", "3:04 PM"}
var exportDateFormats = []string{"January 2, 2006", "2006/01/02"}

// parseExportDateRange reads a date cell of a Notion CSV export, such as
// "May 1, 2024 10:00 AM → 11:00 AM", into a DateValue.
func parseExportDateRange(r string, zone *time.Location) (*DateValue, error) {
	parts := strings.SplitN(r, "→", 2)

	start, err := parseExportDate(parts[0], zone)
	if err != nil {
		return nil, err
	}
	value := &DateValue{Start: start.String()}

	if len(parts) == 2 {
		end, err := parseExportDate(parts[1], zone)
		if err != nil {
			var t time.Time
			t, err = parseExportTime(parts[1], zone)
			end = DateTime{Time: mergeExportDateTime(start.Time, t), HasTime: true}
		}

		if err != nil {
			return nil, err
		}

		s := end.String()
		value.End = &s
	}

	return value, nil
}

func parseExportDate(d string, zone *time.Location) (DateTime, error) {
	d = strings.TrimSpace(d)

	for _, fd := range exportDateFormats {
		for _, ft := range exportTimeFormats {
			if t, err := time.ParseInLocation(fd+" "+ft, d, zone); err == nil {
				return DateTime{Time: t, HasTime: true}, nil
			}
		}
	}

	for _, fd := range exportDateFormats {
		if t, err := time.Parse(fd, d); err == nil {
			return DateTime{Time: t}, nil
		}
	}

	return DateTime{}, fmt.Errorf("%w: %s is not a valid date", ErrParseDate, d)
}

func parseExportTime(d string, zone *time.Location) (time.Time, error) {
	d = strings.TrimSpace(d)

	for _, f := range exportTimeFormats {
		if t, err := time.ParseInLocation(f, d, zone); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s is not a valid time", ErrParseDate, d)
}

func mergeExportDateTime(date time.Time, t time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}
