package cleanup

import (
	"context"
	"fmt"

	"github.com/itsatony/devicehub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// CleanupService coordinates deletion of a device and its dependent data.
// Readings live in a separate database from the registry, so the reading
// delete runs outside the registry transaction, readings first: a retried
// delete after a crash between the two steps converges to the same end
// state.
type CleanupService struct {
	devices  repository.DeviceRepository
	readings repository.ReadingRepository
	events   *nuts.EventEmitter
}

// New creates a new CleanupService
func New(
	devices repository.DeviceRepository,
	readings repository.ReadingRepository,
) *CleanupService {
	return &CleanupService{
		devices:  devices,
		readings: readings,
		events:   nuts.NewEventEmitter(),
	}
}

// DeleteDevice deletes a device and all its readings
func (s *CleanupService) DeleteDevice(ctx context.Context, deviceID string) error {
	// Delete readings first (separate store, no shared transaction)
	if err := s.readings.DeleteByDevice(ctx, deviceID, nil); err != nil {
		return fmt.Errorf("failed to delete readings: %w", err)
	}
	s.events.Emit("readings.deleted", deviceID)

	// Delete the registry row transactionally
	tx, err := s.devices.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	if err := s.devices.Delete(ctx, deviceID, tx); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Emit event after successful deletion
	s.events.Emit("device.deleted", deviceID)
	return nil
}

// OnCleanup registers a callback for cleanup events
func (s *CleanupService) OnCleanup(event string, handler func(id string)) {
	s.events.On(event, "cleanup_handler", func(args ...interface{}) {
		if len(args) > 0 {
			if id, ok := args[0].(string); ok {
				handler(id)
			}
		}
	})
}
