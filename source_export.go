package notion2ics

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var ErrCSVRead = errors.New("failed to read CSV")

type ReaderAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

// ConfigSourceExport represents configuration for reading a Notion export.
type ConfigSourceExport struct {
	// Archive is a file handle to a ZIP file of the exported Notion data.
	Archive ReaderAtSeeker
	// Zone is the timezone for parsing dates.
	Zone *time.Location
	// DateProperty is the column used as the event date. When empty, the
	// first column named like a date is used.
	DateProperty string
}

// SourceExport is a Datastore over a Notion export archive. Every CSV file in
// the archive is a database, identified by its file name without extension.
type SourceExport struct {
	config  ConfigSourceExport
	archive fs.FS
	files   map[string]string
}

func NewSourceExport(config ConfigSourceExport) (*SourceExport, error) {
	if config.Zone == nil {
		config.Zone = time.Local
	}

	// Find the length of the archive
	length, err := config.Archive.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("unable to obtain file size: %w", err)
	}

	archive, err := zip.NewReader(config.Archive, length)
	if err != nil {
		return nil, fmt.Errorf("unable to open ZIP file: %w", err)
	}

	files := make(map[string]string)
	for _, file := range archive.File {
		if strings.HasSuffix(file.Name, ".csv") {
			files[strings.TrimSuffix(path.Base(file.Name), ".csv")] = file.Name
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("cannot find CSV file in ZIP file")
	}

	return &SourceExport{
		config:  config,
		archive: archive,
		files:   files,
	}, nil
}

// Databases lists the database ids found in the archive.
func (s *SourceExport) Databases() []string {
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *SourceExport) QueryDatabase(ctx context.Context, databaseID string) ([]Record, error) {
	name, ok := s.files[databaseID]
	if !ok {
		return nil, fmt.Errorf("%w: no CSV named %q", ErrCSVRead, databaseID)
	}

	f, err := s.archive.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed open: %w", ErrCSVRead, err)
	}
	defer f.Close()

	csvReader := csv.NewReader(f)

	// Read the first row as headers
	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: headers: %w", ErrCSVRead, err)
	}
	if len(headers) > 0 {
		// Notion writes a UTF-8 byte order mark
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	records := make([]Record, 0)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCSVRead, err)
		}

		record, err := s.recordFromCSVRow(headers, row)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// FetchRecord always fails: exports render relations as plain text.
func (s *SourceExport) FetchRecord(ctx context.Context, recordID string) (Record, error) {
	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
}

func (s *SourceExport) recordFromCSVRow(headers []string, row []string) (Record, error) {
	m, err := headersAndRecordToMap(headers, row)
	if err != nil {
		return Record{}, err
	}

	var dateKey string
	if s.config.DateProperty == "" {
		dateKey, _ = findFirstColumn([]string{"date", "when", "period"}, m)
	} else if _, ok := m[s.config.DateProperty]; ok {
		dateKey = s.config.DateProperty
	}

	titleKey, title := findFirstColumn([]string{"name", "title"}, m)

	properties := make(map[string]Property, len(headers))
	for i, key := range headers {
		switch key {
		case titleKey:
			properties[key] = Property{Kind: KindTitle, Text: []string{row[i]}}
		case dateKey:
			date, err := parseExportDateRange(row[i], s.config.Zone)
			if err != nil {
				// Left unparsed so the record gets dropped like any other
				// record without a usable date.
				date = &DateValue{Start: row[i]}
			}
			properties[key] = Property{Kind: KindDate, Date: date}
		default:
			properties[key] = Property{Kind: KindRichText, Text: []string{row[i]}}
		}
	}

	// Generate an ID based on the title and date
	var date string
	if dateKey != "" {
		date = m[dateKey]
	}
	hash := sha256.Sum256([]byte(title + date))
	id := hex.EncodeToString(hash[:]) + "@notion-ical-export"

	return Record{
		ID:         id,
		Properties: properties,
	}, nil
}

func headersAndRecordToMap(headers []string, row []string) (map[string]string, error) {
	m := make(map[string]string)

	if len(headers) != len(row) {
		return nil, fmt.Errorf("%w: unmatching header and record length", ErrCSVRead)
	}

	for i, value := range row {
		m[headers[i]] = value
	}

	return m, nil
}

// findFirstColumn returns the first column whose name equals one of names,
// falling back to the first that contains one. Columns are visited in sorted
// order so the choice is stable.
func findFirstColumn(names []string, m map[string]string) (string, string) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		keyLower := strings.ToLower(key)
		for _, q := range names {
			if keyLower == strings.ToLower(q) {
				return key, m[key]
			}
		}
	}

	for _, key := range keys {
		keyLower := strings.ToLower(key)
		for _, q := range names {
			if strings.Contains(keyLower, strings.ToLower(q)) {
				return key, m[key]
			}
		}
	}

	return "", ""
}
