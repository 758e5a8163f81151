// FilePath: internal/repository/postgres/postgres.device.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/itsatony/devicehub/internal/database"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

type DeviceRepo struct {
	PostgresBaseRepo
}

func NewDeviceRepository(db database.DB) (*DeviceRepo, error) {
	repo := &DeviceRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	if err := repo.initializeSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *DeviceRepo) initializeSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			secret TEXT NOT NULL,
			user_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id)`,
	}

	for _, query := range queries {
		_, err := r.db.GetDB().Exec(query)
		if err != nil {
			return errors.NewDatabaseError("failed to initialize devices schema", err)
		}
	}
	return nil
}

func (r *DeviceRepo) Create(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, name, secret, user_id, created_at, updated_at)
		VALUES (:id, :name, :secret, :user_id, :created_at, :updated_at)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, device)
	if err != nil {
		return errors.NewDatabaseError("failed to create device", err)
	}
	return nil
}

func (r *DeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	device := &models.Device{}
	query := `SELECT * FROM devices WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, device, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("device not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get device", err)
	}
	return device, nil
}

// Resolve looks a device up by a typed ref. The ref decides the lookup
// column; callers never pass raw identifiers past this point.
func (r *DeviceRepo) Resolve(ctx context.Context, ref models.DeviceRef) (*models.Device, error) {
	device := &models.Device{}
	var query string
	var arg string

	switch ref.Kind {
	case models.DeviceRefByID:
		query = `SELECT * FROM devices WHERE id = $1`
		arg = ref.ID
	case models.DeviceRefByName:
		query = `SELECT * FROM devices WHERE name = $1`
		arg = ref.Name
	default:
		return nil, errors.NewValidationError("unknown device reference kind", nil)
	}

	err := r.db.GetDB().GetContext(ctx, device, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("device not found", err)
		}
		return nil, errors.NewDatabaseError("failed to resolve device", err)
	}
	return device, nil
}

func (r *DeviceRepo) FindByCredentials(ctx context.Context, name, secret string) (*models.Device, error) {
	device := &models.Device{}
	query := `SELECT * FROM devices WHERE name = $1 AND secret = $2`

	err := r.db.GetDB().GetContext(ctx, device, query, name, secret)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("device not found or incorrect credentials", err)
		}
		return nil, errors.NewDatabaseError("failed to find device by credentials", err)
	}
	return device, nil
}

func (r *DeviceRepo) Link(ctx context.Context, id, userID string) error {
	query := `
		UPDATE devices SET
			user_id = $1,
			updated_at = $2
		WHERE id = $3 AND user_id IS NULL`

	result, err := r.db.GetDB().ExecContext(ctx, query, userID, time.Now(), id)
	if err != nil {
		return errors.NewDatabaseError("failed to link device", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewValidationError("device is already registered to another user", nil)
	}

	nuts.L.Infof("[DeviceRepo] Linked device %s to user %s", id, userID)
	return nil
}

func (r *DeviceRepo) ListByUser(ctx context.Context, userID string) ([]*models.DeviceSummary, error) {
	devices := []*models.DeviceSummary{}
	query := `SELECT id, name, created_at FROM devices WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.GetDB().SelectContext(ctx, &devices, query, userID)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list devices", err)
	}
	return devices, nil
}

func (r *DeviceRepo) Delete(ctx context.Context, id string, tx database.Transaction) error {
	query := `DELETE FROM devices WHERE id = $1`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, id)
	} else {
		result, err = r.db.GetDB().ExecContext(ctx, query, id)
	}
	if err != nil {
		return errors.NewDatabaseError("failed to delete device", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("device not found", nil)
	}

	return nil
}
