package notion2ics

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var statusPrefixes = map[StatusID]string{
	StatusDone:       "✅",
	StatusInProgress: "🟧",
	StatusNotStarted: "🔲",
}

// Processor turns records into calendar entries.
type Processor struct {
	// Resolver looks up the titles of related records. Relation properties
	// are skipped when nil.
	Resolver RelationResolver
	// DateProperty is the name of the date property used as the event date.
	// When empty, the first date property with a value is used.
	DateProperty string
	Logger       *zap.Logger
}

// Process builds the calendar entry for a record. It reports false when the
// record has no usable date, which is expected and not an error.
func (p *Processor) Process(ctx context.Context, record Record) (CalendarEntry, bool) {
	logger := p.logger().With(zap.String("record", record.ID))

	var date *DateValue
	var status *Status
	pairs := make([]Pair, 0, len(record.Properties))

	for _, name := range record.PropertyNames() {
		property := record.Properties[name]

		switch property.Kind {
		case KindTitle:
			continue
		case KindDate:
			if date == nil && property.Date != nil && p.qualifies(name) {
				date = property.Date
			}
			continue
		case KindStatus:
			status = property.Status
		}

		if pair, ok := p.FormatProperty(ctx, name, property); ok {
			pairs = append(pairs, pair)
		}
	}

	if date == nil {
		logger.Debug("skipping record", zap.Error(ErrNoDateProperty))
		return CalendarEntry{}, false
	}

	normalized, err := Normalize(date.Start, date.End)
	if err != nil {
		logger.Debug("skipping record", zap.Error(err))
		return CalendarEntry{}, false
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return strings.Compare(pairs[i].Label, pairs[j].Label) < 0
	})

	return CalendarEntry{
		ID:         record.ID,
		Symbol:     record.Icon,
		Title:      statusTitle(status, record.BaseTitle()),
		Date:       normalized,
		URL:        record.URL,
		Pairs:      pairs,
		LastEdited: record.LastEdited,
	}, true
}

func (p *Processor) qualifies(name string) bool {
	return p.DateProperty == "" || p.DateProperty == name
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func statusTitle(status *Status, title string) string {
	if status == nil {
		return title
	}
	if prefix, ok := statusPrefixes[status.ID]; ok {
		return prefix + " " + title
	}
	return title
}
