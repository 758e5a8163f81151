// FilePath: api/resources/api.resource.devices.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/devicehub/api/middleware"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/hubservice"
	"github.com/itsatony/devicehub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// DeviceHandlers encapsulates the device-related HTTP handlers
type DeviceHandlers struct {
	hubservice *hubservice.HubService
}

type linkDeviceRequest struct {
	DeviceName     string `json:"device_name"`
	DevicePassword string `json:"device_password"`
}

type linkDeviceResponse struct {
	Message string                `json:"message"`
	Device  *models.DeviceSummary `json:"device"`
}

// @Summary Register a new device
// @Description Provision an unlinked device with its shared secret (admin only)
// @Tags devices
// @Accept json
// @Produce json
// @Param device body models.Device true "Device details"
// @Success 201 {object} models.Device
// @Failure 400 {object} errors.APIError
// @Failure 401 {object} errors.APIError
// @Router /devices [post]
// @Security BearerAuth
func (h *DeviceHandlers) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var device models.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RegisterDevice(r.Context(), &device); err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusCreated, device)
}

// @Summary Link a device
// @Description Claim a provisioned device for the current user by name and secret
// @Tags devices
// @Accept json
// @Produce json
// @Param credentials body linkDeviceRequest true "Device credentials"
// @Success 200 {object} linkDeviceResponse
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /devices/link [post]
// @Security BearerAuth
func (h *DeviceHandlers) LinkDevice(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	var req linkDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	device, err := h.hubservice.LinkDevice(r.Context(), req.DeviceName, req.DevicePassword, user.ID)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, linkDeviceResponse{
		Message: "device linked successfully",
		Device: &models.DeviceSummary{
			ID:        device.ID,
			Name:      device.Name,
			CreatedAt: device.CreatedAt,
		},
	})
}

// @Summary List my devices
// @Description List the devices linked to the current user
// @Tags devices
// @Produce json
// @Success 200 {array} models.DeviceSummary
// @Router /devices [get]
// @Security BearerAuth
func (h *DeviceHandlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	devices, err := h.hubservice.ListUserDevices(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// @Summary Get a device
// @Description Get one of the current user's devices, fields filtered by role
// @Tags devices
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Success 200 {object} models.Device
// @Failure 404 {object} errors.APIError
// @Router /devices/{deviceId} [get]
// @Security BearerAuth
func (h *DeviceHandlers) GetDevice(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	ref := models.ParseDeviceRef(mux.Vars(r)["deviceId"])
	device, err := h.hubservice.GetDevice(r.Context(), ref, user.ID, user.Roles)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, device)
}

// @Summary Delete a device
// @Description Delete one of the current user's devices and all its readings
// @Tags devices
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} errors.APIError
// @Router /devices/{deviceId} [delete]
// @Security BearerAuth
func (h *DeviceHandlers) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	ref := models.ParseDeviceRef(mux.Vars(r)["deviceId"])
	if err := h.hubservice.DeleteDevice(r.Context(), ref, user.ID); err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "device deleted successfully"})
}
