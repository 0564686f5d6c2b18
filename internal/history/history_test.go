package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/serverwentdown/notion2ics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestAddAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, Run{
			DatabaseID: "a",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Events:     i,
			Path:       "a.ics",
		})
		require.NoError(t, err)
	}
	_, err := s.Add(ctx, Run{DatabaseID: "b", StartedAt: base, FinishedAt: base, Error: "boom"})
	require.NoError(t, err)

	runs, err := s.Recent(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Events)
	assert.Equal(t, 1, runs[1].Events)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, "a.ics", runs[0].Path)

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	b, err := s.Recent(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "boom", b[0].Error)
}

func TestReport(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.Report(context.Background(), notion2ics.CycleReport{
		DatabaseID:       "db",
		Started:          now,
		Finished:         now.Add(time.Second),
		Records:          4,
		Events:           3,
		Dropped:          1,
		RelationFailures: 2,
		Path:             "out/db.ics",
		Err:              errors.New("disk full"),
	})

	runs, err := s.Recent(context.Background(), "db", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].Records)
	assert.Equal(t, 3, runs[0].Events)
	assert.Equal(t, 1, runs[0].Dropped)
	assert.Equal(t, 2, runs[0].RelationFailures)
	assert.Equal(t, "disk full", runs[0].Error)
}

func TestReport_CancelledContextStillRecorded(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	now := time.Now()
	s.Report(ctx, notion2ics.CycleReport{DatabaseID: "db", Started: now, Finished: now, Err: context.Canceled})

	runs, err := s.Recent(context.Background(), "db", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
