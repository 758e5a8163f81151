// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/itsatony/devicehub/internal/database"
	"github.com/itsatony/devicehub/internal/models"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates that a resource already exists
	ErrDuplicate = errors.New("resource already exists")
	// ErrInvalidInput indicates that the input data is invalid
	ErrInvalidInput = errors.New("invalid input")
)

// DeviceRepository is the device registry: identity resolution, credential
// matching and ownership bookkeeping.
type DeviceRepository interface {
	database.Repository
	Create(ctx context.Context, device *models.Device) error
	Get(ctx context.Context, id string) (*models.Device, error)
	Resolve(ctx context.Context, ref models.DeviceRef) (*models.Device, error)
	FindByCredentials(ctx context.Context, name, secret string) (*models.Device, error)
	Link(ctx context.Context, id, userID string) error
	ListByUser(ctx context.Context, userID string) ([]*models.DeviceSummary, error)
	Delete(ctx context.Context, id string, tx database.Transaction) error
}

// ReadingRepository is the reading store: an append-only collection of
// timestamped observations with range-filtered, sorted and aggregated
// retrieval. Aggregate executes a GroupSpec constructed by the engine; the
// store stays free of any aggregation policy of its own.
type ReadingRepository interface {
	database.Repository
	Insert(ctx context.Context, reading *models.Reading) error
	ListByDevice(ctx context.Context, deviceID string) ([]models.Reading, error)
	ListRecent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error)
	Aggregate(ctx context.Context, deviceID string, spec models.GroupSpec) ([]models.AggregateRow, error)
	DeleteByDevice(ctx context.Context, deviceID string, tx database.Transaction) error
	DeleteOldData(ctx context.Context, before time.Time) error
}
