package notion2ics

import (
	"strings"
	"time"
)

// CalendarEntry is a record that qualified for the calendar, reduced to what
// an event needs.
type CalendarEntry struct {
	ID     string
	Symbol string
	Title  string
	Date   NormalizedDate
	URL    string

	Pairs      []Pair
	LastEdited time.Time
}

// Pair is one formatted property shown in the event description.
type Pair struct {
	Label string
	Value string
}

func (e CalendarEntry) Summary() string {
	if e.Symbol != "" {
		return e.Symbol + " " + e.Title
	}
	return e.Title
}

// Description lists every pair as "label: value", then a separator and the
// page URL.
func (e CalendarEntry) Description() string {
	var b strings.Builder
	for _, pair := range e.Pairs {
		b.WriteString(pair.Label)
		b.WriteString(": ")
		b.WriteString(pair.Value)
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	b.WriteString(e.URL)
	return b.String()
}
