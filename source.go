package notion2ics

import (
	"context"
	"errors"
)

var ErrNoDateProperty = errors.New("no date property")
var ErrRecordNotFound = errors.New("record not found")
var ErrFetch = errors.New("fetch failed")

// Datastore is where records come from: the Notion API or an export archive.
type Datastore interface {
	// QueryDatabase returns every record of the database, following
	// pagination until exhausted.
	QueryDatabase(ctx context.Context, databaseID string) ([]Record, error)
	// FetchRecord returns a single record by id.
	FetchRecord(ctx context.Context, recordID string) (Record, error)
}
