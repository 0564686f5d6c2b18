package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverwentdown/notion2ics"
)

func TestReport_Success(t *testing.T) {
	m := New(":0")
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	m.Report(context.Background(), notion2ics.CycleReport{
		DatabaseID:       "db",
		Started:          started,
		Finished:         started.Add(2 * time.Second),
		Records:          5,
		Events:           3,
		Dropped:          2,
		RelationFailures: 1,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("db", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.cycles.WithLabelValues("db", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("db", "event")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("db", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relationFailures.WithLabelValues("db")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.events.WithLabelValues("db")))
	assert.Equal(t, float64(started.Add(2*time.Second).Unix()), testutil.ToFloat64(m.lastSuccessTS.WithLabelValues("db")))
}

func TestReport_Failure(t *testing.T) {
	m := New(":0")
	now := time.Now()

	m.Report(context.Background(), notion2ics.CycleReport{
		DatabaseID: "db",
		Started:    now,
		Finished:   now,
		Err:        errors.New("boom"),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("db", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccessTS.WithLabelValues("db")))
}

func TestHandler(t *testing.T) {
	m := New(":0")
	now := time.Now()
	m.Report(context.Background(), notion2ics.CycleReport{DatabaseID: "db", Started: now, Finished: now, Events: 1})

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	res, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `notion2ics_cycles_total{database="db",status="ok"} 1`)

	res, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
