package notion2ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrSerialize = errors.New("unable to write calendar")

// CycleReport summarises one database sync.
type CycleReport struct {
	DatabaseID       string
	Started          time.Time
	Finished         time.Time
	Records          int
	Events           int
	Dropped          int
	RelationFailures int
	Path             string
	Err              error
}

// Reporter receives a report after each database sync.
type Reporter interface {
	Report(ctx context.Context, report CycleReport)
}

// Pipeline syncs databases from a Datastore into .ics files.
type Pipeline struct {
	Store           Datastore
	OutputDir       string
	DateProperty    string
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	Reporters       []Reporter
	Logger          *zap.Logger
}

// RunCycle syncs every database in turn. A failing database is logged and
// skipped; the returned error joins all failures.
func (p *Pipeline) RunCycle(ctx context.Context, databaseIDs []string) error {
	var errs []error
	for _, id := range databaseIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report := p.Sync(ctx, id)
		if report.Err != nil {
			errs = append(errs, fmt.Errorf("database %s: %w", id, report.Err))
		}
	}
	return errors.Join(errs...)
}

// Sync queries one database, rebuilds its calendar and replaces the output
// file.
func (p *Pipeline) Sync(ctx context.Context, databaseID string) CycleReport {
	report := CycleReport{
		DatabaseID: databaseID,
		Started:    time.Now(),
		Path:       p.OutputPath(databaseID),
	}
	logger := p.logger().With(zap.String("database", databaseID))

	defer func() {
		report.Finished = time.Now()
		for _, r := range p.Reporters {
			r.Report(ctx, report)
		}
	}()

	logger.Info("querying database")
	records, err := p.Store.QueryDatabase(ctx, databaseID)
	if err != nil {
		report.Err = fmt.Errorf("%w: query: %w", ErrFetch, err)
		logger.Error("unable to query database", zap.Error(err))
		return report
	}
	report.Records = len(records)

	resolver := &countingResolver{inner: StoreResolver{Store: p.Store, Timeout: p.FetchTimeout}}
	processor := &Processor{
		Resolver:     resolver,
		DateProperty: p.DateProperty,
		Logger:       logger,
	}

	entries := make([]CalendarEntry, 0, len(records))
	for _, record := range records {
		entry, ok := processor.Process(ctx, record)
		if !ok {
			report.Dropped++
			continue
		}
		entries = append(entries, entry)
	}
	report.Events = len(entries)
	report.RelationFailures = int(resolver.failures.Load())

	var buf bytes.Buffer
	if err := Convert(entries, &buf, WithRefreshInterval(p.RefreshInterval)); err != nil {
		report.Err = err
		logger.Error("unable to serialize calendar", zap.Error(err))
		return report
	}

	logger.Info("writing calendar", zap.String("path", report.Path))
	if err := writeFileAtomic(report.Path, buf.Bytes()); err != nil {
		report.Err = fmt.Errorf("%w: %w", ErrSerialize, err)
		logger.Error("unable to write calendar", zap.String("path", report.Path), zap.Error(err))
		return report
	}

	logger.Info("processed database",
		zap.Int("records", report.Records),
		zap.Int("events", report.Events),
		zap.Int("dropped", report.Dropped),
		zap.Int("relation_failures", report.RelationFailures),
	)
	return report
}

// OutputPath is the file a database's calendar is written to.
func (p *Pipeline) OutputPath(databaseID string) string {
	return filepath.Join(p.OutputDir, databaseID+".ics")
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

type countingResolver struct {
	inner    RelationResolver
	failures atomic.Int64
}

func (r *countingResolver) Resolve(ctx context.Context, id string) (string, error) {
	title, err := r.inner.Resolve(ctx, id)
	if err != nil {
		r.failures.Add(1)
	}
	return title, err
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory, so subscribers never read a partial calendar.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notion2ics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
