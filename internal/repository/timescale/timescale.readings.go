// FilePath: internal/repository/timescale/timescale.readings.go
package timescale

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/itsatony/devicehub/internal/database"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

type ReadingRepo struct {
	TimeScaleBaseRepo
}

func NewReadingRepository(db database.DB) (*ReadingRepo, error) {
	repo := &ReadingRepo{TimeScaleBaseRepo: TimeScaleBaseRepo{db: db}}
	err := repo.initializeSchema()
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *ReadingRepo) initializeSchema() error {
	// Create hypertable for device readings
	queries := []string{
		`CREATE TABLE IF NOT EXISTS device_readings (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			temperature DOUBLE PRECISION,
			humidity DOUBLE PRECISION,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`SELECT create_hypertable('device_readings', 'created_at',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE
		)`,
		// Index for latest readings and range scans per device
		`CREATE INDEX IF NOT EXISTS idx_device_readings_device_created
         ON device_readings(device_id, created_at DESC)`,
	}

	for _, query := range queries {
		_, err := r.db.GetDB().Exec(query)
		if err != nil {
			return errors.NewDatabaseError("failed to initialize readings schema", err)
		}
	}

	r.setupRetentionPolicy()
	return nil
}

func (r *ReadingRepo) setupRetentionPolicy() {
	query := `
		SELECT add_retention_policy('device_readings',
			INTERVAL '13 months',
			if_not_exists => TRUE
		)`

	_, err := r.db.GetDB().Exec(query)
	if err != nil {
		nuts.L.Errorf("[ReadingRepo] Failed to set up retention policy: %v", err)
	}
}

func (r *ReadingRepo) Insert(ctx context.Context, reading *models.Reading) error {
	if reading.ID == "" {
		reading.ID = nuts.NID("rd", 12)
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO device_readings (id, device_id, temperature, humidity, latitude, longitude, created_at)
		VALUES (:id, :device_id, :temperature, :humidity, :latitude, :longitude, :created_at)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, reading)
	if err != nil {
		return errors.NewDatabaseError("failed to insert reading", err)
	}
	return nil
}

// ListByDevice returns every reading for a device, newest first. The device
// display name is attached by the caller; devices live in the app database.
func (r *ReadingRepo) ListByDevice(ctx context.Context, deviceID string) ([]models.Reading, error) {
	readings := []models.Reading{}
	query := `
		SELECT id, device_id, '' AS device_name, temperature, humidity, latitude, longitude, created_at
		FROM device_readings
		WHERE device_id = $1
		ORDER BY created_at DESC`

	err := r.db.GetDB().SelectContext(ctx, &readings, query, deviceID)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to get readings", err)
	}
	return readings, nil
}

// ListRecent returns the newest limit readings for a device, newest first.
func (r *ReadingRepo) ListRecent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error) {
	readings := []models.Reading{}
	query := `
		SELECT id, device_id, '' AS device_name, temperature, humidity, latitude, longitude, created_at
		FROM device_readings
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := r.db.GetDB().SelectContext(ctx, &readings, query, deviceID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to get recent readings", err)
	}
	return readings, nil
}

var reducerFuncs = map[models.Reducer]string{
	models.ReducerAvg: "AVG",
	models.ReducerMin: "MIN",
	models.ReducerMax: "MAX",
}

var aggregatableFields = map[string]bool{
	"temperature": true,
	"humidity":    true,
}

// Aggregate executes a GroupSpec against the readings hypertable. The bucket
// expression mirrors models.GroupSpec.BucketFor: floor of the reading's
// millisecond offset from the window start divided by the interval. Groups
// only exist where readings exist, so empty buckets never appear.
func (r *ReadingRepo) Aggregate(ctx context.Context, deviceID string, spec models.GroupSpec) ([]models.AggregateRow, error) {
	selects := []string{
		"MIN(created_at) AS start_time",
		"COUNT(*) AS reading_count",
	}
	for _, agg := range spec.Aggregations {
		fn, ok := reducerFuncs[agg.Reducer]
		if !ok {
			return nil, errors.NewValidationError(fmt.Sprintf("unknown reducer %q", agg.Reducer), nil)
		}
		if !aggregatableFields[agg.Field] {
			return nil, errors.NewValidationError(fmt.Sprintf("field %q is not aggregatable", agg.Field), nil)
		}
		selects = append(selects, fmt.Sprintf(
			"COALESCE(%s(%s), 0) AS %s_%s", fn, agg.Field, agg.Reducer, agg.Field))
	}

	var query string
	args := []interface{}{deviceID, spec.Window.Start, spec.Window.End}
	if spec.IntervalMS > 0 {
		bucketExpr := fmt.Sprintf(
			"FLOOR((EXTRACT(EPOCH FROM created_at) * 1000 - %d) / %d)::bigint",
			spec.Window.Start.UnixMilli(), spec.IntervalMS)
		query = fmt.Sprintf(`
			SELECT %s AS bucket, %s
			FROM device_readings
			WHERE device_id = $1 AND created_at >= $2 AND created_at < $3
			GROUP BY 1
			ORDER BY start_time ASC`, bucketExpr, strings.Join(selects, ", "))
	} else {
		query = fmt.Sprintf(`
			SELECT 0::bigint AS bucket, %s
			FROM device_readings
			WHERE device_id = $1 AND created_at >= $2 AND created_at < $3
			HAVING COUNT(*) > 0`, strings.Join(selects, ", "))
	}

	rows := []models.AggregateRow{}
	err := r.db.GetDB().SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to aggregate readings", err)
	}
	return rows, nil
}

func (r *ReadingRepo) DeleteByDevice(ctx context.Context, deviceID string, tx database.Transaction) error {
	query := `DELETE FROM device_readings WHERE device_id = $1`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, deviceID)
	} else {
		result, err = r.db.GetDB().ExecContext(ctx, query, deviceID)
	}
	if err != nil {
		return errors.NewDatabaseError("failed to delete readings", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	nuts.L.Infof("[ReadingRepo] Deleted %d readings for device %s", rows, deviceID)
	return nil
}

func (r *ReadingRepo) DeleteOldData(ctx context.Context, before time.Time) error {
	query := `DELETE FROM device_readings WHERE created_at < $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return errors.NewDatabaseError("failed to delete old readings", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	nuts.L.Infof("[ReadingRepo] Deleted %d readings before %v", rows, before)
	return nil
}
