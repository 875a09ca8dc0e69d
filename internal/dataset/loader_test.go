package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"accident-forecast/internal/models"
	"accident-forecast/internal/repository"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		opts        CSVOptions
		wantKind    models.FailureKind
		checkValues func(*testing.T, *models.TimeSeries)
	}{
		{
			name:  "sorted ascending",
			input: "Date,Value\n2020-03-01,30\n2020-01-01,10\n2020-02-01,20\n",
			opts:  DefaultCSVOptions(),
			checkValues: func(t *testing.T, s *models.TimeSeries) {
				if s.Len() != 3 {
					t.Fatalf("Len() = %d, want 3", s.Len())
				}
				want := []float64{10, 20, 30}
				for i, v := range s.Values() {
					if v != want[i] {
						t.Errorf("value[%d] = %v, want %v", i, v, want[i])
					}
				}
				if !s.Last().Equal(month(2020, time.March)) {
					t.Errorf("Last() = %v", s.Last())
				}
			},
		},
		{
			name:  "case-insensitive header with extra columns",
			input: "region,date,VALUE\nnorth,2020-01,5\nnorth,2020-02,6\n",
			opts:  DefaultCSVOptions(),
			checkValues: func(t *testing.T, s *models.TimeSeries) {
				if s.Len() != 2 || s.Observations[1].Value != 6 {
					t.Errorf("got %+v", s.Observations)
				}
			},
		},
		{
			name:  "dates normalised to month start",
			input: "Date,Value\n2020-01-15,5\n02/20/2020,6\n2020-03-31T12:00:00Z,7\n",
			opts:  DefaultCSVOptions(),
			checkValues: func(t *testing.T, s *models.TimeSeries) {
				for i, m := range []time.Month{time.January, time.February, time.March} {
					if !s.Observations[i].Date.Equal(month(2020, m)) {
						t.Errorf("date[%d] = %v", i, s.Observations[i].Date)
					}
				}
			},
		},
		{
			name:  "custom columns and delimiter",
			input: "month;accidents\n2021-01-01;100\n",
			opts:  CSVOptions{DateColumn: "month", ValueColumn: "accidents", Delimiter: ';'},
			checkValues: func(t *testing.T, s *models.TimeSeries) {
				if s.Len() != 1 || s.Observations[0].Value != 100 {
					t.Errorf("got %+v", s.Observations)
				}
			},
		},
		{name: "empty file", input: "", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "header only", input: "Date,Value\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "missing value column", input: "Date,Count\n2020-01-01,1\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "missing date column", input: "Day,Value\n2020-01-01,1\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "non-numeric value", input: "Date,Value\n2020-01-01,many\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "non-finite value", input: "Date,Value\n2020-01-01,NaN\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "invalid date", input: "Date,Value\nyesterday,1\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "duplicate month", input: "Date,Value\n2020-01-01,1\n2020-01-20,2\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
		{name: "ragged row", input: "Date,Value\n2020-01-01\n", opts: DefaultCSVOptions(), wantKind: models.FailureMalformedData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := ReadCSV(strings.NewReader(tt.input), "accidents", tt.opts)
			if tt.wantKind != "" {
				if !models.IsKind(err, tt.wantKind) {
					t.Fatalf("ReadCSV() error = %v, want kind %v", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			tt.checkValues(t, series)
		})
	}
}

func TestCSVLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accidents.csv")
	if err := os.WriteFile(path, []byte("Date,Value\n2020-01-01,10\n2020-02-01,12\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	series, err := NewCSVLoader(path, CSVOptions{}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if series.Name != "accidents" || series.Len() != 2 {
		t.Errorf("Load() = %+v", series)
	}

	missing := NewCSVLoader(filepath.Join(dir, "nope.csv"), DefaultCSVOptions())
	if _, err := missing.Load(context.Background()); !models.IsKind(err, models.FailureMissingSource) {
		t.Errorf("Load() error = %v, want MissingSource", err)
	}
	if missing.Source() != "csv:"+filepath.Join(dir, "nope.csv") {
		t.Errorf("Source() = %v", missing.Source())
	}
}

type fakeRepository struct {
	repository.ObservationRepository
	observations []models.Observation
	healthErr    error
	listErr      error
}

func (f *fakeRepository) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeRepository) ListObservations(ctx context.Context, filter repository.ObservationFilter) ([]models.Observation, error) {
	return f.observations, f.listErr
}

func TestDBLoader_Load(t *testing.T) {
	tests := []struct {
		name     string
		repo     *fakeRepository
		wantKind models.FailureKind
		wantLen  int
	}{
		{
			name: "loads and sorts",
			repo: &fakeRepository{observations: []models.Observation{
				{Date: month(2020, time.February), Value: 2},
				{Date: month(2020, time.January), Value: 1},
			}},
			wantLen: 2,
		},
		{
			name:     "database unreachable",
			repo:     &fakeRepository{healthErr: errors.New("connection refused")},
			wantKind: models.FailureMissingSource,
		},
		{
			name:     "query fails",
			repo:     &fakeRepository{listErr: errors.New("no such table")},
			wantKind: models.FailureMissingSource,
		},
		{
			name:     "unknown series",
			repo:     &fakeRepository{},
			wantKind: models.FailureMissingSource,
		},
		{
			name: "duplicate months",
			repo: &fakeRepository{observations: []models.Observation{
				{Date: month(2020, time.January), Value: 1},
				{Date: month(2020, time.January), Value: 2},
			}},
			wantKind: models.FailureMalformedData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := NewDBLoader(tt.repo, "accidents").Load(context.Background())
			if tt.wantKind != "" {
				if !models.IsKind(err, tt.wantKind) {
					t.Fatalf("Load() error = %v, want kind %v", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if series.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", series.Len(), tt.wantLen)
			}
			if series.Observations[0].Value != 1 {
				t.Errorf("series not sorted: %+v", series.Observations)
			}
		})
	}
}
