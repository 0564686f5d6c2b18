package notion2ics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dstotijn/go-notion"
	"go.uber.org/zap"
)

var ErrPropertyNotFound = errors.New("property not found in database")

// ConfigSourceAPI represents configuration for reading from the Notion API.
type ConfigSourceAPI struct {
	// APIKey is the Notion integration token.
	APIKey string
	// HideProperty is the property name of a checkbox that will cause
	// records to be left out of the query.
	HideProperty string
	// HTTPClient overrides the client used to talk to Notion.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// SourceAPI is a Datastore backed by the Notion API.
type SourceAPI struct {
	config ConfigSourceAPI
	client *notion.Client
	logger *zap.Logger
}

func NewSourceAPI(config ConfigSourceAPI) *SourceAPI {
	var opts []notion.ClientOption
	if config.HTTPClient != nil {
		opts = append(opts, notion.WithHTTPClient(config.HTTPClient))
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SourceAPI{
		config: config,
		client: notion.NewClient(config.APIKey, opts...),
		logger: logger,
	}
}

// CheckDatabase verifies that the database exists and has the configured
// date and hide properties, returning the database title.
func (s *SourceAPI) CheckDatabase(ctx context.Context, databaseID, dateProperty string) (string, error) {
	database, err := s.client.FindDatabaseByID(ctx, databaseID)
	if err != nil {
		return "", fmt.Errorf("%w: database %s: %w", ErrFetch, databaseID, err)
	}

	dateMatches := 0
	hideMatches := 0
	var propertyNames []string

	for name, property := range database.Properties {
		propertyNames = append(propertyNames, name)
		switch property.Type {
		case notion.DBPropTypeDate:
			if dateProperty == "" || name == dateProperty {
				dateMatches++
			}
		case notion.DBPropTypeCheckbox:
			if name == s.config.HideProperty {
				hideMatches++
			}
		}
	}

	if dateMatches == 0 {
		return "", fmt.Errorf("%w: %q not in %v", ErrNoDateProperty, dateProperty, propertyNames)
	}
	if s.config.HideProperty != "" && hideMatches != 1 {
		return "", fmt.Errorf("%w: %q not in %v", ErrPropertyNotFound, s.config.HideProperty, propertyNames)
	}

	return richTextToString(database.Title), nil
}

func (s *SourceAPI) QueryDatabase(ctx context.Context, databaseID string) ([]Record, error) {
	records := make([]Record, 0)
	query := s.initialQuery()

	for {
		response, err := s.client.QueryDatabase(ctx, databaseID, query)
		if err != nil {
			return nil, err
		}

		s.logger.Debug("fetched database page",
			zap.String("database", databaseID),
			zap.Int("results", len(response.Results)),
			zap.Bool("has_more", response.HasMore),
		)

		for _, page := range response.Results {
			records = append(records, recordFromPage(page))
		}

		if !response.HasMore || response.NextCursor == nil {
			break
		}
		query.StartCursor = *response.NextCursor
	}

	return records, nil
}

func (s *SourceAPI) FetchRecord(ctx context.Context, recordID string) (Record, error) {
	s.logger.Debug("fetching record", zap.String("relation", recordID))

	page, err := s.client.FindPageByID(ctx, recordID)
	if err != nil {
		var apiErr *notion.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		return Record{}, err
	}

	return recordFromPage(page), nil
}

func (s *SourceAPI) initialQuery() *notion.DatabaseQuery {
	return &notion.DatabaseQuery{
		Filter:   s.filter(),
		PageSize: 100,
	}
}

var filterTrue = true

func (s *SourceAPI) filter() *notion.DatabaseQueryFilter {
	if s.config.HideProperty == "" {
		return nil
	}
	return &notion.DatabaseQueryFilter{
		Property: s.config.HideProperty,
		DatabaseQueryPropertyFilter: notion.DatabaseQueryPropertyFilter{
			Checkbox: &notion.CheckboxDatabaseQueryFilter{
				DoesNotEqual: &filterTrue,
			},
		},
	}
}

func recordFromPage(page notion.Page) Record {
	record := Record{
		ID:         page.ID,
		URL:        page.URL,
		Properties: make(map[string]Property),
		LastEdited: page.LastEditedTime,
	}

	if page.Icon != nil && page.Icon.Emoji != nil {
		record.Icon = *page.Icon.Emoji
	}

	properties, ok := page.Properties.(notion.DatabasePageProperties)
	if !ok {
		return record
	}

	for name, property := range properties {
		record.Properties[name] = apiProperty(property)
	}

	return record
}

func apiProperty(p notion.DatabasePageProperty) Property {
	switch p.Type {
	case notion.DBPropTypeDate:
		property := Property{Kind: KindDate}
		if p.Date != nil {
			property.Date = &DateValue{
				Start:    dateTimeToString(p.Date.Start),
				TimeZone: p.Date.TimeZone,
			}
			if p.Date.End != nil {
				end := dateTimeToString(*p.Date.End)
				property.Date.End = &end
			}
		}
		return property
	case notion.DBPropTypeTitle:
		return Property{Kind: KindTitle, Text: richTextFragments(p.Title)}
	case notion.DBPropTypeRichText:
		return Property{Kind: KindRichText, Text: richTextFragments(p.RichText)}
	case notion.DBPropTypeNumber:
		return Property{Kind: KindNumber, Number: p.Number}
	case notion.DBPropTypeURL:
		return Property{Kind: KindURL, URL: p.URL}
	case notion.DBPropTypeSelect:
		property := Property{Kind: KindSelect}
		if p.Select != nil {
			property.Select = &Option{ID: p.Select.ID, Name: p.Select.Name}
		}
		return property
	case notion.DBPropTypeMultiSelect:
		property := Property{Kind: KindMultiSelect}
		for _, opt := range p.MultiSelect {
			property.MultiSelect = append(property.MultiSelect, Option{ID: opt.ID, Name: opt.Name})
		}
		return property
	case notion.DBPropTypeRelation:
		property := Property{Kind: KindRelation}
		for _, rel := range p.Relation {
			property.Relation = append(property.Relation, rel.ID)
		}
		return property
	case notion.DBPropTypePeople:
		property := Property{Kind: KindPeople}
		for _, user := range p.People {
			person := Person{ID: user.ID}
			if user.Name != "" {
				name := user.Name
				person.Name = &name
			}
			property.People = append(property.People, person)
		}
		return property
	case notion.DBPropTypeStatus:
		property := Property{Kind: KindStatus}
		if p.Status != nil {
			property.Status = &Status{ID: ParseStatusID(p.Status.ID), Name: p.Status.Name}
		}
		return property
	}

	return Property{Kind: KindUnknown, Raw: string(p.Type)}
}

func dateTimeToString(dt notion.DateTime) string {
	if dt.HasTime() {
		return dt.Time.Format(time.RFC3339)
	}
	return dt.Time.Format(dateLayout)
}

func richTextFragments(rt []notion.RichText) []string {
	var s []string
	for _, rts := range rt {
		s = append(s, rts.PlainText)
	}
	return s
}

func richTextToString(rt []notion.RichText) string {
	var s string
	for _, rts := range rt {
		s += rts.PlainText
	}
	return s
}
