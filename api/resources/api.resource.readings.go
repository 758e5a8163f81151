// FilePath: api/resources/api.resource.readings.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/itsatony/devicehub/api/middleware"
	"github.com/itsatony/devicehub/internal/analytics"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/hubservice"
	"github.com/itsatony/devicehub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// ReadingHandlers encapsulates the reading and analytics HTTP handlers
type ReadingHandlers struct {
	hubservice *hubservice.HubService
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

type analyticsQuery struct {
	Duration string `schema:"duration"`
}

type seriesQuery struct {
	Limit int `schema:"limit"`
}

type graphQuery struct {
	Duration string `schema:"duration"`
	Points   int    `schema:"points"`
}

type timeSeriesQuery struct {
	Limit  int    `schema:"limit"`
	Format string `schema:"format"`
}

// @Summary Get device readings
// @Description Get all readings for a device, newest first
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Success 200 {array} models.Reading
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId} [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetDeviceData(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	readings, err := h.hubservice.Analytics.DeviceReadings(r.Context(), device)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, readings)
}

// @Summary Get summary statistics
// @Description Average, minimum and maximum of temperature and humidity over a duration window
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Param duration query string false "Window duration (1h, 24h, 7d); unrecognized values fall back to 24h"
// @Success 200 {object} analytics.Summary
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId}/analytics [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	var q analyticsQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	summary, err := h.hubservice.Analytics.Summarize(r.Context(), device, q.Duration)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// @Summary Get trend series
// @Description The most recent N readings in chronological order
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Param limit query int false "Sample count (default 24)"
// @Success 200 {array} models.TrendPoint
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId}/trends [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetTrends(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	var q seriesQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	points, err := h.hubservice.Analytics.Trend(r.Context(), device, q.Limit)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, points)
}

// @Summary Get batch series
// @Description The most recent N readings in store order, newest first
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Param limit query int false "Sample count (default 24)"
// @Success 200 {array} models.TrendPoint
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId}/batch [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	var q seriesQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	points, err := h.hubservice.Analytics.Batch(r.Context(), device, q.Limit)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, points)
}

// @Summary Get graph series
// @Description Bucketed averages across a duration window; duration is validated strictly
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Param duration query string false "Window duration (1h, 24h, 7d, 30d)"
// @Param points query int false "Target bucket count (default 24)"
// @Success 200 {array} models.GraphPoint
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId}/graph [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetGraph(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	var q graphQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}
	if q.Duration == "" {
		q.Duration = analytics.DefaultDurationToken
	}

	graph, err := h.hubservice.Analytics.Graph(r.Context(), device, q.Duration, q.Points)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, graph)
}

// @Summary Get shaped time-series
// @Description The most recent N readings shaped for display, simple or chart encoding
// @Tags data
// @Produce json
// @Param deviceId path string true "Device ID or name"
// @Param limit query int false "Sample count (default 24)"
// @Param format query string false "Output encoding (simple or chart)"
// @Success 200 {object} analytics.TabularSeries
// @Failure 404 {object} errors.APIError
// @Router /data/{deviceId}/timeseries [get]
// @Security BearerAuth
func (h *ReadingHandlers) GetTimeSeries(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	device, ok := h.authorizeDevice(w, r, requestID)
	if !ok {
		return
	}

	var q timeSeriesQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	series, err := h.hubservice.Analytics.TimeSeries(r.Context(), device, q.Limit, analytics.ParseFormat(q.Format))
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, series)
}

// @Summary Record readings
// @Description Record new readings from edge devices
// @Tags edge
// @Accept json
// @Produce json
// @Param readings body []models.Reading true "Array of readings"
// @Success 201 {object} map[string]string
// @Failure 400 {object} errors.APIError
// @Router /edge/readings [post]
// @Security BearerAuth
func (h *ReadingHandlers) RecordReadings(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var readings []models.Reading
	if err := json.NewDecoder(r.Body).Decode(&readings); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	for i := range readings {
		if err := h.hubservice.RecordReading(r.Context(), &readings[i]); err != nil {
			nuts.L.Warnf("[ReadingHandler] Failed to record reading for device %s: %v", readings[i].DeviceID, err)
			// Continue with other readings even if one fails
			continue
		}
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// authorizeDevice resolves the path identifier and checks ownership against
// the authenticated user. On failure the response has already been written.
func (h *ReadingHandlers) authorizeDevice(w http.ResponseWriter, r *http.Request, requestID string) (*models.Device, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return nil, false
	}

	ref := models.ParseDeviceRef(mux.Vars(r)["deviceId"])
	device, err := h.hubservice.AuthorizeDevice(r.Context(), ref, user.ID)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return nil, false
	}
	return device, true
}
