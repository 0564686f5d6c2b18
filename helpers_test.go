package notion2ics

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	databases map[string][]Record
	records   map[string]Record
	queryErrs map[string]error
	fetchErrs map[string]error
	fetched   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		databases: make(map[string][]Record),
		records:   make(map[string]Record),
		queryErrs: make(map[string]error),
		fetchErrs: make(map[string]error),
	}
}

func (s *fakeStore) QueryDatabase(ctx context.Context, databaseID string) ([]Record, error) {
	if err := s.queryErrs[databaseID]; err != nil {
		return nil, err
	}
	return s.databases[databaseID], nil
}

func (s *fakeStore) FetchRecord(ctx context.Context, recordID string) (Record, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, recordID)
	s.mu.Unlock()

	if err := s.fetchErrs[recordID]; err != nil {
		return Record{}, err
	}
	record, ok := s.records[recordID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	return record, nil
}

func ptr[T any](v T) *T {
	return &v
}

func titleProperty(fragments ...string) Property {
	return Property{Kind: KindTitle, Text: fragments}
}

func dateProperty(start string, end *string) Property {
	return Property{Kind: KindDate, Date: &DateValue{Start: start, End: end}}
}

func statusProperty(id StatusID, name string) Property {
	return Property{Kind: KindStatus, Status: &Status{ID: id, Name: name}}
}

var lastEdited = time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
