package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/serverwentdown/notion2ics"
)

// Run is one stored database sync.
type Run struct {
	ID               int64
	DatabaseID       string
	StartedAt        time.Time
	FinishedAt       time.Time
	Records          int
	Events           int
	Dropped          int
	RelationFailures int
	Path             string
	Error            string // empty on success
}

// Store keeps a journal of database syncs in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	database_id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	records INTEGER NOT NULL,
	events INTEGER NOT NULL,
	dropped INTEGER NOT NULL,
	relation_failures INTEGER NOT NULL,
	path TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS runs_database_started ON runs (database_id, started_at);
`

// Open opens the SQLite database at dbPath and creates the schema if needed.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create tables: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a run and returns its id.
func (s *Store) Add(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (database_id, started_at, finished_at, records, events, dropped, relation_failures, path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.DatabaseID,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Records,
		run.Events,
		run.Dropped,
		run.RelationFailures,
		run.Path,
		run.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit runs, newest first. An empty databaseID
// matches every database.
func (s *Store) Recent(ctx context.Context, databaseID string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, database_id, started_at, finished_at, records, events, dropped, relation_failures, path, error
		FROM runs
		WHERE ? = '' OR database_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		databaseID, databaseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished int64
		if err := rows.Scan(
			&run.ID, &run.DatabaseID, &started, &finished,
			&run.Records, &run.Events, &run.Dropped, &run.RelationFailures,
			&run.Path, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Report implements notion2ics.Reporter. Storage failures are logged only.
func (s *Store) Report(ctx context.Context, report notion2ics.CycleReport) {
	run := Run{
		DatabaseID:       report.DatabaseID,
		StartedAt:        report.Started,
		FinishedAt:       report.Finished,
		Records:          report.Records,
		Events:           report.Events,
		Dropped:          report.Dropped,
		RelationFailures: report.RelationFailures,
		Path:             report.Path,
	}
	if report.Err != nil {
		run.Error = report.Err.Error()
	}

	// Recorded even when the cycle was cancelled.
	if _, err := s.Add(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("unable to record run", zap.String("database", report.DatabaseID), zap.Error(err))
	}
}
