// FilePath: internal/hubservice/hubservice.device.go
package hubservice

import (
	"context"
	"time"

	"github.com/itsatony/struccy"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// DeviceService handles device-related business logic
type DeviceService interface {
	RegisterDevice(ctx context.Context, device *models.Device) error
	LinkDevice(ctx context.Context, name, secret, userID string) (*models.Device, error)
	ListUserDevices(ctx context.Context, userID string) ([]*models.DeviceSummary, error)
	GetDevice(ctx context.Context, ref models.DeviceRef, userID string, roles []string) (*models.Device, error)
	DeleteDevice(ctx context.Context, ref models.DeviceRef, userID string) error
	AuthorizeDevice(ctx context.Context, ref models.DeviceRef, userID string) (*models.Device, error)
	RecordReading(ctx context.Context, reading *models.Reading) error
}

// RegisterDevice provisions a new unlinked device with its shared secret.
func (s *HubService) RegisterDevice(ctx context.Context, device *models.Device) error {
	if device.Name == "" {
		return errors.NewValidationError("device name is required", nil)
	}
	if device.Secret == "" {
		return errors.NewValidationError("device secret is required", nil)
	}

	if device.ID == "" {
		device.ID = nuts.NID("dev", 12)
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	nuts.L.Infof("[DeviceService] Registering new device: %s (%s)", device.Name, device.ID)
	return s.Devices.Create(ctx, device)
}

// LinkDevice claims a provisioned device for a user by credential match.
// Unknown name/secret pairs surface as not-found; a device already claimed
// by anyone is a validation failure.
func (s *HubService) LinkDevice(ctx context.Context, name, secret, userID string) (*models.Device, error) {
	device, err := s.Devices.FindByCredentials(ctx, name, secret)
	if err != nil {
		return nil, err
	}

	if device.UserID.Valid {
		return nil, errors.NewValidationError("device is already registered to another user", nil)
	}

	if err := s.Devices.Link(ctx, device.ID, userID); err != nil {
		return nil, err
	}

	nuts.L.Infof("[DeviceService] Device %s linked to user %s", device.ID, userID)
	return s.Devices.Get(ctx, device.ID)
}

// ListUserDevices returns the trimmed listing of a user's linked devices.
func (s *HubService) ListUserDevices(ctx context.Context, userID string) ([]*models.DeviceSummary, error) {
	return s.Devices.ListByUser(ctx, userID)
}

// AuthorizeDevice resolves a device ref and verifies ownership. Devices the
// user does not own surface as not-found, never as a distinguishable
// forbidden, so probes cannot enumerate other users' devices.
func (s *HubService) AuthorizeDevice(ctx context.Context, ref models.DeviceRef, userID string) (*models.Device, error) {
	device, err := s.Devices.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !device.OwnedBy(userID) {
		return nil, errors.NewNotFoundError("device not found or unauthorized", nil)
	}
	return device, nil
}

// GetDevice retrieves an owned device with role-based field filtering.
func (s *HubService) GetDevice(ctx context.Context, ref models.DeviceRef, userID string, roles []string) (*models.Device, error) {
	device, err := s.AuthorizeDevice(ctx, ref, userID)
	if err != nil {
		return nil, err
	}

	// Filter fields based on read access, then rebuild the struct with full
	// write access: the merge is internal reconstruction, not a caller write.
	filteredMap, err := struccy.StructToMapFieldsWithReadXS(device, roles)
	if err != nil {
		return nil, errors.NewInternalError("failed to filter device fields", err)
	}
	filtered := &models.Device{}
	_, err = struccy.MergeMapStringFieldsToStruct(filtered, filteredMap, []string{"admin", "system"})
	if err != nil {
		return nil, errors.NewInternalError("failed to map filtered fields to device struct", err)
	}

	return filtered, nil
}

// DeleteDevice removes an owned device and cascades to its readings.
func (s *HubService) DeleteDevice(ctx context.Context, ref models.DeviceRef, userID string) error {
	device, err := s.AuthorizeDevice(ctx, ref, userID)
	if err != nil {
		return err
	}

	nuts.L.Infof("[DeviceService] Deleting device: %s", device.ID)
	return s.Cleanup.DeleteDevice(ctx, device.ID)
}

// RecordReading persists one reading from the edge ingestion path. The
// device must exist; beyond that the write path does not validate payloads.
func (s *HubService) RecordReading(ctx context.Context, reading *models.Reading) error {
	if reading.DeviceID == "" {
		return errors.NewValidationError("device_id is required", nil)
	}
	if _, err := s.Devices.Get(ctx, reading.DeviceID); err != nil {
		return err
	}
	return s.Readings.Insert(ctx, reading)
}
