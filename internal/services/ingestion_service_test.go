package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"accident-forecast/internal/dataset"
	"accident-forecast/internal/models"
	"accident-forecast/internal/repository"
)

type recordingRepository struct {
	repository.ObservationRepository
	batches map[string][][]models.Observation
}

func (r *recordingRepository) UpsertObservationsBatch(ctx context.Context, series string, observations []models.Observation) error {
	if r.batches == nil {
		r.batches = make(map[string][][]models.Observation)
	}
	batch := append([]models.Observation(nil), observations...)
	r.batches[series] = append(r.batches[series], batch)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestionService_IngestFile(t *testing.T) {
	logger, collector := testDeps()
	repo := &recordingRepository{}
	svc := NewIngestionService(repo, dataset.DefaultCSVOptions(), logger, collector)

	path := writeFile(t, t.TempDir(), "data.csv",
		"Date,Value\n2020-01-01,1\n2020-02-01,2\n2020-03-01,3\n2020-04-01,4\n2020-05-01,5\n")

	result, err := svc.IngestFile(context.Background(), path, "accidents", 2)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if result.SuccessfulRecords != 5 || result.TotalFiles != 1 {
		t.Errorf("IngestFile() = %+v", result)
	}

	batches := repo.batches["accidents"]
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[2]) != 1 || batches[2][0].Value != 5 {
		t.Errorf("last batch = %+v", batches[2])
	}
}

func TestIngestionService_MalformedFileWritesNothing(t *testing.T) {
	logger, collector := testDeps()
	repo := &recordingRepository{}
	svc := NewIngestionService(repo, dataset.DefaultCSVOptions(), logger, collector)

	path := writeFile(t, t.TempDir(), "bad.csv", "Date,Value\n2020-01-01,1\n2020-02-01,lots\n")

	_, err := svc.IngestFile(context.Background(), path, "accidents", 100)
	if !models.IsKind(err, models.FailureMalformedData) {
		t.Errorf("IngestFile() error = %v, want MalformedData", err)
	}
	if len(repo.batches) != 0 {
		t.Errorf("malformed file wrote %d series", len(repo.batches))
	}
}

func TestIngestionService_IngestDirectory(t *testing.T) {
	logger, collector := testDeps()
	repo := &recordingRepository{}
	svc := NewIngestionService(repo, dataset.DefaultCSVOptions(), logger, collector)

	dir := t.TempDir()
	writeFile(t, dir, "north.csv", "Date,Value\n2020-01-01,1\n2020-02-01,2\n")
	writeFile(t, dir, "south.csv", "Date,Value\n2020-01-01,3\n")
	writeFile(t, dir, "broken.csv", "When,Value\n2020-01-01,3\n")
	writeFile(t, dir, "notes.txt", "ignored")

	result, err := svc.IngestDirectory(context.Background(), dir, 100)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	if result.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", result.TotalFiles)
	}
	if result.SuccessfulRecords != 3 {
		t.Errorf("SuccessfulRecords = %d, want 3", result.SuccessfulRecords)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want one failure", result.Errors)
	}
	if len(repo.batches["north"]) != 1 || len(repo.batches["south"]) != 1 {
		t.Errorf("batches = %+v", repo.batches)
	}

	if _, err := svc.IngestDirectory(context.Background(), t.TempDir(), 100); err == nil {
		t.Error("IngestDirectory() on an empty directory should fail")
	}
}
