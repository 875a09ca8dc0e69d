package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"accident-forecast/internal/models"
)

// Default CSV column names
const (
	DefaultDateColumn  = "Date"
	DefaultValueColumn = "Value"
)

// dateLayouts are tried in order for every date cell
var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// CSVOptions configures the CSV source
type CSVOptions struct {
	DateColumn  string
	ValueColumn string
	Delimiter   rune
}

// DefaultCSVOptions returns options for a comma separated file with Date and Value columns
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		DateColumn:  DefaultDateColumn,
		ValueColumn: DefaultValueColumn,
		Delimiter:   ',',
	}
}

// CSVLoader reads a series from a CSV file with a header row
type CSVLoader struct {
	path string
	opts CSVOptions
}

// NewCSVLoader creates a loader for the file at path
func NewCSVLoader(path string, opts CSVOptions) *CSVLoader {
	if opts.DateColumn == "" {
		opts.DateColumn = DefaultDateColumn
	}
	if opts.ValueColumn == "" {
		opts.ValueColumn = DefaultValueColumn
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &CSVLoader{path: path, opts: opts}
}

// Source identifies the dataset in logs and status output
func (l *CSVLoader) Source() string {
	return "csv:" + l.path
}

// Load reads and validates the whole file
func (l *CSVLoader) Load(ctx context.Context) (*models.TimeSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapError(models.FailureMissingSource, err, "loading %s cancelled", l.path)
	}

	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.WrapError(models.FailureMissingSource, err, "dataset %s not found", l.path)
		}
		return nil, models.WrapError(models.FailureMissingSource, err, "dataset %s cannot be opened", l.path)
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
	return ReadCSV(file, name, l.opts)
}

// ReadCSV parses a series from r. The header must name the date and value
// columns; matching is case-insensitive. Other columns are ignored.
func ReadCSV(r io.Reader, name string, opts CSVOptions) (*models.TimeSeries, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, models.NewError(models.FailureMalformedData, "dataset %s is empty", name)
	}
	if err != nil {
		return nil, models.WrapError(models.FailureMalformedData, err, "dataset %s: invalid header", name)
	}

	dateIdx, valueIdx := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(h, opts.DateColumn):
			dateIdx = i
		case strings.EqualFold(h, opts.ValueColumn):
			valueIdx = i
		}
	}
	if dateIdx == -1 {
		return nil, models.NewError(models.FailureMalformedData, "dataset %s: missing date column %q", name, opts.DateColumn)
	}
	if valueIdx == -1 {
		return nil, models.NewError(models.FailureMalformedData, "dataset %s: missing value column %q", name, opts.ValueColumn)
	}

	var observations []models.Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.WrapError(models.FailureMalformedData, err, "dataset %s: line %d", name, line)
		}

		date, err := parseDate(record[dateIdx])
		if err != nil {
			return nil, models.WrapError(models.FailureMalformedData, err, "dataset %s: line %d: invalid date %q", name, line, record[dateIdx])
		}

		raw := strings.TrimSpace(record[valueIdx])
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, models.WrapError(models.FailureMalformedData, err, "dataset %s: line %d: non-numeric value %q", name, line, raw)
		}

		observations = append(observations, models.Observation{Date: date, Value: value})
	}

	return normalize(name, name, observations)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
