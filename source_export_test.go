package notion2ics

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func buildExport(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return bytes.NewReader(buf.Bytes())
}

const tasksCSV = "\ufeffName,Date,Tags\n" +
	"Launch,\"May 1, 2024\",release\n" +
	"Standup,\"May 2, 2024 10:00 AM → 10:15 AM\",\n" +
	"Offsite,\"May 6, 2024 → May 8, 2024\",team\n" +
	"Someday,later,\n"

func TestParseExportDateRange(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*60*60)

	tests := []struct {
		in    string
		zone  *time.Location
		start string
		end   *string
	}{
		{"May 1, 2024", time.UTC, "2024-05-01", nil},
		{"2024/05/01", time.UTC, "2024-05-01", nil},
		{"May 1, 2024 10:00 AM", time.UTC, "2024-05-01T10:00:00Z", nil},
		{"May 1, 2024 14:30", sgt, "2024-05-01T14:30:00+08:00", nil},
		{"May 1, 2024 10:00 AM → 11:30 AM", sgt, "2024-05-01T10:00:00+08:00", ptr("2024-05-01T11:30:00+08:00")},
		{"May 1, 2024 → May 3, 2024", time.UTC, "2024-05-01", ptr("2024-05-03")},
		{"May 1, 2024 9:00 PM → May 2, 2024 1:00 AM", time.UTC, "2024-05-01T21:00:00Z", ptr("2024-05-02T01:00:00Z")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			value, err := parseExportDateRange(tt.in, tt.zone)
			require.NoError(t, err)
			assert.Equal(t, tt.start, value.Start)
			assert.Equal(t, tt.end, value.End)

			_, err = Normalize(value.Start, value.End)
			assert.NoError(t, err)
		})
	}
}

func TestParseExportDateRange_Invalid(t *testing.T) {
	for _, in := range []string{"", "later", "May 1, 2024 → soon", "13/13/2024"} {
		_, err := parseExportDateRange(in, time.UTC)
		assert.ErrorIs(t, err, ErrParseDate, "input %q", in)
	}
}

func TestSourceExport(t *testing.T) {
	archive := buildExport(t, map[string]string{
		"Export/Tasks abc123.csv":   tasksCSV,
		"Export/Tasks abc123/a.md":  "# Launch",
		"Export/Reading def456.csv": "Title,When\nDune,\"June 1, 2024\"\n",
	})

	s, err := NewSourceExport(ConfigSourceExport{Archive: archive, Zone: time.UTC})
	require.NoError(t, err)

	assert.Equal(t, []string{"Reading def456", "Tasks abc123"}, s.Databases())

	records, err := s.QueryDatabase(context.Background(), "Tasks abc123")
	require.NoError(t, err)
	require.Len(t, records, 4)

	launch := records[0]
	assert.Equal(t, "Launch", launch.Title())
	assert.Contains(t, launch.ID, "@notion-ical-export")
	assert.Equal(t, KindDate, launch.Properties["Date"].Kind)
	assert.Equal(t, "2024-05-01", launch.Properties["Date"].Date.Start)
	assert.Equal(t, Property{Kind: KindRichText, Text: []string{"release"}}, launch.Properties["Tags"])

	standup := records[1].Properties["Date"].Date
	assert.Equal(t, "2024-05-02T10:00:00Z", standup.Start)
	assert.Equal(t, ptr("2024-05-02T10:15:00Z"), standup.End)

	// ids are stable across reads
	again, err := s.QueryDatabase(context.Background(), "Tasks abc123")
	require.NoError(t, err)
	assert.Equal(t, records[0].ID, again[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)

	reading, err := s.QueryDatabase(context.Background(), "Reading def456")
	require.NoError(t, err)
	require.Len(t, reading, 1)
	assert.Equal(t, "Dune", reading[0].Title())
	assert.Equal(t, "2024-06-01", reading[0].Properties["When"].Date.Start)

	_, err = s.QueryDatabase(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrCSVRead)

	_, err = s.FetchRecord(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSourceExport_DateProperty(t *testing.T) {
	archive := buildExport(t, map[string]string{
		"Tasks.csv": "Name,Created,Due\nLaunch,\"April 1, 2024\",\"May 1, 2024\"\n",
	})

	s, err := NewSourceExport(ConfigSourceExport{Archive: archive, Zone: time.UTC, DateProperty: "Due"})
	require.NoError(t, err)

	records, err := s.QueryDatabase(context.Background(), "Tasks")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, KindDate, records[0].Properties["Due"].Kind)
	assert.Equal(t, KindRichText, records[0].Properties["Created"].Kind)
}

func TestSourceExport_NoCSV(t *testing.T) {
	archive := buildExport(t, map[string]string{"notes.md": "nothing here"})

	_, err := NewSourceExport(ConfigSourceExport{Archive: archive})
	assert.Error(t, err)
}

func TestSourceExport_Pipeline(t *testing.T) {
	archive := buildExport(t, map[string]string{"Tasks.csv": tasksCSV})
	s, err := NewSourceExport(ConfigSourceExport{Archive: archive, Zone: time.UTC})
	require.NoError(t, err)

	p := &Pipeline{
		Store:     s,
		OutputDir: t.TempDir(),
		Logger:    zaptest.NewLogger(t),
	}

	report := p.Sync(context.Background(), "Tasks")
	require.NoError(t, report.Err)
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 3, report.Events)
	assert.Equal(t, 1, report.Dropped)

	events := readEvents(t, report.Path)
	require.Len(t, events, 3)
	assert.Equal(t, "Launch", propText(t, events[0], "SUMMARY"))
	assert.Contains(t, propText(t, events[0], "DESCRIPTION"), "🇹 Tags: release")

	for _, event := range events {
		require.NotNil(t, event.Props.Get("DTSTAMP"), "every event needs DTSTAMP")
	}
	assert.Equal(t, "20240501T000000Z", events[0].Props.Get("DTSTAMP").Value)
	assert.Equal(t, "20240502T100000Z", events[1].Props.Get("DTSTAMP").Value)
}
