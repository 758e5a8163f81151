package hubservice

import (
	"github.com/itsatony/devicehub/internal/analytics"
	"github.com/itsatony/devicehub/internal/cleanup"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/repository"
)

// HubService contains all repositories and service-wide dependencies
type HubService struct {
	Devices   repository.DeviceRepository
	Readings  repository.ReadingRepository
	Analytics *analytics.Engine
	Cleanup   *cleanup.CleanupService
}

// New creates a new HubService instance
func New(
	devices repository.DeviceRepository,
	readings repository.ReadingRepository,
	engine *analytics.Engine,
) *HubService {
	svc := &HubService{
		Devices:   devices,
		Readings:  readings,
		Analytics: engine,
	}
	svc.Cleanup = cleanup.New(devices, readings)
	return svc
}

// Validate checks if all required dependencies are initialized
func (s *HubService) Validate() error {
	if s.Devices == nil {
		return ErrMissingDependency("devices")
	}
	if s.Readings == nil {
		return ErrMissingDependency("readings")
	}
	if s.Analytics == nil {
		return ErrMissingDependency("analytics")
	}
	return nil
}

func ErrMissingDependency(name string) error {
	return errors.NewInternalError("missing dependency: "+name, nil)
}
