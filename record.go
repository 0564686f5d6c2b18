package notion2ics

import (
	"sort"
	"time"
)

// PropertyKind identifies which arm of a Property is populated.
type PropertyKind string

const (
	KindDate        PropertyKind = "date"
	KindTitle       PropertyKind = "title"
	KindNumber      PropertyKind = "number"
	KindRichText    PropertyKind = "rich_text"
	KindURL         PropertyKind = "url"
	KindSelect      PropertyKind = "select"
	KindMultiSelect PropertyKind = "multi_select"
	KindRelation    PropertyKind = "relation"
	KindPeople      PropertyKind = "people"
	KindStatus      PropertyKind = "status"
	KindUnknown     PropertyKind = "unknown"
)

// StatusID is one of the fixed status option ids Notion creates for every
// status property. User-created options map to StatusOther.
type StatusID string

const (
	StatusNotStarted StatusID = "not-started"
	StatusInProgress StatusID = "in-progress"
	StatusDone       StatusID = "done"
	StatusOther      StatusID = ""
)

// ParseStatusID maps a raw status option id onto the known vocabulary.
func ParseStatusID(id string) StatusID {
	switch StatusID(id) {
	case StatusNotStarted, StatusInProgress, StatusDone:
		return StatusID(id)
	}
	return StatusOther
}

// Record is one page of a database, as returned by a Datastore.
type Record struct {
	ID         string
	Icon       string
	URL        string
	Properties map[string]Property
	LastEdited time.Time
}

// Property is a tagged variant: Kind selects which of the remaining fields
// carries the value.
type Property struct {
	Kind PropertyKind

	Date        *DateValue
	Text        []string // title and rich_text fragments
	Number      *float64
	URL         *string
	Select      *Option
	MultiSelect []Option
	Relation    []string
	People      []Person
	Status      *Status

	// Raw holds whatever the source had for kinds we don't interpret.
	Raw any
}

// DateValue is the unparsed value of a date property.
type DateValue struct {
	Start    string
	End      *string
	TimeZone *string
}

type Option struct {
	ID   string
	Name string
}

type Person struct {
	ID   string
	Name *string
}

type Status struct {
	ID   StatusID
	Name string
}

// PropertyNames returns the record's property names in sorted order.
func (r Record) PropertyNames() []string {
	names := make([]string, 0, len(r.Properties))
	for name := range r.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseTitle returns the first fragment of the record's title property.
func (r Record) BaseTitle() string {
	for _, name := range r.PropertyNames() {
		property := r.Properties[name]
		if property.Kind == KindTitle && len(property.Text) > 0 {
			return property.Text[0]
		}
	}
	return ""
}

// Title is the display title used when another record refers to this one:
// the page icon, if any, followed by the base title.
func (r Record) Title() string {
	title := r.BaseTitle()
	if r.Icon != "" {
		return r.Icon + " " + title
	}
	return title
}
