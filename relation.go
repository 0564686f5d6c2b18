package notion2ics

import (
	"context"
	"fmt"
	"time"
)

// RelationResolver turns the id of a referenced record into its display title.
type RelationResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// StoreResolver resolves relations by fetching the referenced record from a
// Datastore.
type StoreResolver struct {
	Store Datastore
	// Timeout bounds each fetch. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

func (r StoreResolver) Resolve(ctx context.Context, id string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	record, err := r.Store.FetchRecord(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: relation %s: %w", ErrFetch, id, err)
	}

	return record.Title(), nil
}
