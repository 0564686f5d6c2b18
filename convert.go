package notion2ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arran4/golang-ical"
)

const (
	CalendarName = "notion2ics"
	ProductID    = "-//Ambrose Chua//serverwentdown notion2ics//EN"
)

// DefaultDuration is the length given to timed events without an end.
const DefaultDuration = time.Hour

// BuildEvent converts an entry into a VEVENT. The UID is the record id, so
// calendar clients recognise the same event across polls.
func BuildEvent(entry CalendarEntry) *ics.VEvent {
	event := ics.NewEvent(entry.ID)
	event.SetSummary(entry.Summary())
	event.SetDescription(entry.Description())
	if entry.URL != "" {
		event.SetURL(entry.URL)
	}
	if !entry.LastEdited.IsZero() {
		event.SetDtStampTime(entry.LastEdited)
		event.SetLastModifiedAt(entry.LastEdited)
	} else {
		// Exports carry no edit time. The start keeps the output stable.
		event.SetDtStampTime(entry.Date.Start.Time)
	}

	start := entry.Date.Start
	if start.HasTime {
		event.SetStartAt(start.Time)
	} else {
		event.SetAllDayStartAt(start.Time)
	}

	switch end := entry.Date.End; {
	case end != nil && end.HasTime:
		event.SetEndAt(end.Time)
	case end != nil:
		event.SetAllDayEndAt(end.Time)
	case start.HasTime:
		event.SetEndAt(start.Add(DefaultDuration))
	default:
		// Whole day without DTEND: clients treat it as lasting one day.
	}

	return event
}

// CalendarOption customises an assembled calendar.
type CalendarOption func(cal *ics.Calendar)

// WithRefreshInterval advertises how often subscribers should reload.
func WithRefreshInterval(d time.Duration) CalendarOption {
	return func(cal *ics.Calendar) {
		if d > 0 {
			cal.SetRefreshInterval(isoDuration(d))
		}
	}
}

// Assemble collects events into a named calendar. Events keep their order
// and duplicate UIDs are left alone.
func Assemble(events []*ics.VEvent, name string, opts ...CalendarOption) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetName(name)
	cal.SetXWRCalName(name)
	cal.SetProductId(ProductID)
	for _, opt := range opts {
		opt(cal)
	}

	for _, event := range events {
		cal.AddVEvent(event)
	}

	return cal
}

// Convert builds and serializes a calendar from entries.
func Convert(entries []CalendarEntry, ical io.Writer, opts ...CalendarOption) error {
	events := make([]*ics.VEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, BuildEvent(entry))
	}

	cal := Assemble(events, CalendarName, opts...)
	if err := cal.SerializeTo(ical); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}
	return nil
}

// isoDuration formats d as an RFC 5545 duration, e.g. PT1H30M.
func isoDuration(d time.Duration) string {
	d = d.Round(time.Second)

	var b strings.Builder
	b.WriteString("PT")
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 || b.Len() == 2 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}
