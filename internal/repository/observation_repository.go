package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"accident-forecast/internal/models"
	"accident-forecast/pkg/database"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

const dateLayout = "2006-01-02"

// ObservationRepository provides data access for monthly observations
type ObservationRepository interface {
	// Observation operations
	UpsertObservationsBatch(ctx context.Context, series string, observations []models.Observation) error
	ListObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, error)
	CountObservations(ctx context.Context, series string) (int, error)

	// Series operations
	ListSeries(ctx context.Context) ([]SeriesInfo, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ObservationFilter defines filters for querying observations
type ObservationFilter struct {
	Series    string
	StartDate *time.Time
	EndDate   *time.Time
}

// SeriesInfo summarises one stored series
type SeriesInfo struct {
	Series       string    `json:"series" db:"series"`
	Observations int       `json:"observations" db:"observations"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
}

// observationRepository implements ObservationRepository
type observationRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ObservationRepository {
	return &observationRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// UpsertObservationsBatch writes observations for a series in a single transaction.
// An existing observation for the same month is overwritten.
func (r *observationRepository) UpsertObservationsBatch(ctx context.Context, series string, observations []models.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(observations)))
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
			"series":      series,
			"count":       len(observations),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO monthly_observations (series, observed_on, value)
		VALUES (?, ?, ?)
		ON CONFLICT (series, observed_on) DO UPDATE SET
			value = excluded.value
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		if _, err := stmt.ExecContext(ctx, series, models.MonthStart(obs.Date).Format(dateLayout), obs.Value); err != nil {
			r.metrics.RecordDBError("upsert_error")
			return fmt.Errorf("failed to upsert observation %s: %w", obs.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(observations)))

	return nil
}

// observationRow is the scan target shared by both drivers
type observationRow struct {
	ObservedOn dbDate  `db:"observed_on"`
	Value      float64 `db:"value"`
}

// ListObservations returns the observations of a series ordered by date ascending
func (r *observationRepository) ListObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, error) {
	query := `
		SELECT observed_on, value
		FROM monthly_observations
		WHERE series = ?
	`
	args := []interface{}{filter.Series}

	if filter.StartDate != nil {
		query += " AND observed_on >= ?"
		args = append(args, filter.StartDate.Format(dateLayout))
	}

	if filter.EndDate != nil {
		query += " AND observed_on <= ?"
		args = append(args, filter.EndDate.Format(dateLayout))
	}

	query += " ORDER BY observed_on"

	var rows []observationRow
	if err := r.db.SelectContext(ctx, "list_observations", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}

	observations := make([]models.Observation, len(rows))
	for i, row := range rows {
		observations[i] = models.Observation{
			Date:  row.ObservedOn.Time,
			Value: row.Value,
		}
	}

	return observations, nil
}

// CountObservations returns the number of stored observations of a series
func (r *observationRepository) CountObservations(ctx context.Context, series string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, "count_observations", &count,
		`SELECT COUNT(*) FROM monthly_observations WHERE series = ?`, series)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// ListSeries summarises every stored series
func (r *observationRepository) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	query := `
		SELECT series, COUNT(*) AS observations, MIN(observed_on) AS first_on, MAX(observed_on) AS last_on
		FROM monthly_observations
		GROUP BY series
		ORDER BY series
	`

	var rows []struct {
		Series       string `db:"series"`
		Observations int    `db:"observations"`
		FirstOn      dbDate `db:"first_on"`
		LastOn       dbDate `db:"last_on"`
	}
	if err := r.db.SelectContext(ctx, "list_series", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}

	infos := make([]SeriesInfo, len(rows))
	for i, row := range rows {
		infos[i] = SeriesInfo{
			Series:       row.Series,
			Observations: row.Observations,
			First:        row.FirstOn.Time,
			Last:         row.LastOn.Time,
		}
	}
	return infos, nil
}

// HealthCheck performs a repository health check
func (r *observationRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// dbDate scans a calendar date stored as DATE (postgres) or TEXT (sqlite)
type dbDate struct {
	time.Time
}

// Scan implements sql.Scanner
func (d *dbDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = models.MonthStart(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		return fmt.Errorf("observed_on is NULL")
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
}

func (d *dbDate) parse(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	d.Time = models.MonthStart(t)
	return nil
}

// Value implements driver.Valuer
func (d dbDate) Value() (driver.Value, error) {
	return d.Time.Format(dateLayout), nil
}

var (
	_ sql.Scanner   = (*dbDate)(nil)
	_ driver.Valuer = dbDate{}
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
