package resources

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/itsatony/devicehub/api/middleware"
	"github.com/itsatony/devicehub/internal/analytics"
	"github.com/itsatony/devicehub/internal/database"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/hubservice"
	"github.com/itsatony/devicehub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }
func (fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

type fakeDeviceRepo struct {
	devices map[string]*models.Device
}

func (f *fakeDeviceRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return fakeTx{}, nil
}

func (f *fakeDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	f.devices[device.ID] = device
	return nil
}

func (f *fakeDeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	if d, ok := f.devices[id]; ok {
		clone := *d
		return &clone, nil
	}
	return nil, errors.NewNotFoundError("device not found", nil)
}

func (f *fakeDeviceRepo) Resolve(ctx context.Context, ref models.DeviceRef) (*models.Device, error) {
	if ref.Kind == models.DeviceRefByID {
		return f.Get(ctx, ref.ID)
	}
	for _, d := range f.devices {
		if d.Name == ref.Name {
			clone := *d
			return &clone, nil
		}
	}
	return nil, errors.NewNotFoundError("device not found", nil)
}

func (f *fakeDeviceRepo) FindByCredentials(ctx context.Context, name, secret string) (*models.Device, error) {
	for _, d := range f.devices {
		if d.Name == name && d.Secret == secret {
			clone := *d
			return &clone, nil
		}
	}
	return nil, errors.NewNotFoundError("device not found or incorrect credentials", nil)
}

func (f *fakeDeviceRepo) Link(ctx context.Context, id, userID string) error {
	d, ok := f.devices[id]
	if !ok || d.UserID.Valid {
		return errors.NewValidationError("device is already registered to another user", nil)
	}
	d.UserID = sql.NullString{String: userID, Valid: true}
	return nil
}

func (f *fakeDeviceRepo) ListByUser(ctx context.Context, userID string) ([]*models.DeviceSummary, error) {
	var out []*models.DeviceSummary
	for _, d := range f.devices {
		if d.OwnedBy(userID) {
			out = append(out, &models.DeviceSummary{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDeviceRepo) Delete(ctx context.Context, id string, tx database.Transaction) error {
	delete(f.devices, id)
	return nil
}

type fakeReadingRepo struct {
	readings       []models.Reading
	aggregateCalls int
}

func (f *fakeReadingRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return fakeTx{}, nil
}

func (f *fakeReadingRepo) Insert(ctx context.Context, reading *models.Reading) error {
	f.readings = append(f.readings, *reading)
	return nil
}

func (f *fakeReadingRepo) ListByDevice(ctx context.Context, deviceID string) ([]models.Reading, error) {
	var out []models.Reading
	for _, r := range f.readings {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeReadingRepo) ListRecent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error) {
	out, _ := f.ListByDevice(ctx, deviceID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReadingRepo) Aggregate(ctx context.Context, deviceID string, spec models.GroupSpec) ([]models.AggregateRow, error) {
	f.aggregateCalls++

	type group struct {
		row     models.AggregateRow
		sumTemp float64
		cntTemp int
		sumHum  float64
		cntHum  int
	}
	groups := make(map[int64]*group)
	for _, r := range f.readings {
		if r.DeviceID != deviceID || !spec.Window.Contains(r.CreatedAt) {
			continue
		}
		bucket := spec.BucketFor(r.CreatedAt)
		g, ok := groups[bucket]
		if !ok {
			g = &group{row: models.AggregateRow{Bucket: bucket, StartTime: r.CreatedAt}}
			groups[bucket] = g
		}
		if r.CreatedAt.Before(g.row.StartTime) {
			g.row.StartTime = r.CreatedAt
		}
		g.row.Count++
		if r.Temperature != nil {
			v := *r.Temperature
			if g.cntTemp == 0 || v < g.row.MinTemperature {
				g.row.MinTemperature = v
			}
			if g.cntTemp == 0 || v > g.row.MaxTemperature {
				g.row.MaxTemperature = v
			}
			g.sumTemp += v
			g.cntTemp++
		}
		if r.Humidity != nil {
			v := *r.Humidity
			if g.cntHum == 0 || v < g.row.MinHumidity {
				g.row.MinHumidity = v
			}
			if g.cntHum == 0 || v > g.row.MaxHumidity {
				g.row.MaxHumidity = v
			}
			g.sumHum += v
			g.cntHum++
		}
	}

	rows := make([]models.AggregateRow, 0, len(groups))
	for _, g := range groups {
		if g.cntTemp > 0 {
			g.row.AvgTemperature = g.sumTemp / float64(g.cntTemp)
		}
		if g.cntHum > 0 {
			g.row.AvgHumidity = g.sumHum / float64(g.cntHum)
		}
		rows = append(rows, g.row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })
	return rows, nil
}

func (f *fakeReadingRepo) DeleteByDevice(ctx context.Context, deviceID string, tx database.Transaction) error {
	kept := f.readings[:0]
	for _, r := range f.readings {
		if r.DeviceID != deviceID {
			kept = append(kept, r)
		}
	}
	f.readings = kept
	return nil
}

func (f *fakeReadingRepo) DeleteOldData(ctx context.Context, before time.Time) error {
	return nil
}

// testEnv wires fakes into the real router wiring minus keycloak: a stub
// middleware injects the user context that Authenticate would.
type testEnv struct {
	devices  *fakeDeviceRepo
	readings *fakeReadingRepo
	router   *mux.Router
}

func newTestEnv(user *middleware.UserContext) *testEnv {
	devices := &fakeDeviceRepo{devices: make(map[string]*models.Device)}
	readings := &fakeReadingRepo{}
	engine := analytics.NewEngine(readings, nil, time.UTC)
	svc := hubservice.New(devices, readings, engine)
	res := NewResources(svc)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", res.HealthCheck).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(middleware.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	})

	protected.HandleFunc("/devices", res.Devices.ListDevices).Methods(http.MethodGet)
	protected.HandleFunc("/devices", res.Devices.RegisterDevice).Methods(http.MethodPost)
	protected.HandleFunc("/devices/link", res.Devices.LinkDevice).Methods(http.MethodPost)
	protected.HandleFunc("/devices/{deviceId}", res.Devices.GetDevice).Methods(http.MethodGet)
	protected.HandleFunc("/devices/{deviceId}", res.Devices.DeleteDevice).Methods(http.MethodDelete)
	protected.HandleFunc("/data/{deviceId}", res.Readings.GetDeviceData).Methods(http.MethodGet)
	protected.HandleFunc("/data/{deviceId}/analytics", res.Readings.GetAnalytics).Methods(http.MethodGet)
	protected.HandleFunc("/data/{deviceId}/trends", res.Readings.GetTrends).Methods(http.MethodGet)
	protected.HandleFunc("/data/{deviceId}/batch", res.Readings.GetBatch).Methods(http.MethodGet)
	protected.HandleFunc("/data/{deviceId}/graph", res.Readings.GetGraph).Methods(http.MethodGet)
	protected.HandleFunc("/data/{deviceId}/timeseries", res.Readings.GetTimeSeries).Methods(http.MethodGet)
	protected.HandleFunc("/edge/readings", res.Readings.RecordReadings).Methods(http.MethodPost)

	return &testEnv{devices: devices, readings: readings, router: router}
}

func (e *testEnv) seedDevice(id, name, secret, userID string) {
	e.devices.devices[id] = &models.Device{
		ID:     id,
		Name:   name,
		Secret: secret,
		UserID: sql.NullString{String: userID, Valid: userID != ""},
	}
}

func (e *testEnv) seedReading(deviceID string, age time.Duration, temp, hum float64) {
	e.readings.readings = append(e.readings.readings, models.Reading{
		ID:          "r" + time.Now().Add(-age).Format("150405.000000000"),
		DeviceID:    deviceID,
		Temperature: &temp,
		Humidity:    &hum,
		CreatedAt:   time.Now().Add(-age),
	})
}

func (e *testEnv) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func testUser() *middleware.UserContext {
	return &middleware.UserContext{ID: "user-1", Username: "tester", Roles: []string{"user"}}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetDeviceDataRequiresUserContext(t *testing.T) {
	env := newTestEnv(nil)
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetDeviceDataUnknownDeviceReturns404(t *testing.T) {
	env := newTestEnv(testUser())

	rec := env.do(http.MethodGet, "/api/v1/data/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeviceDataForeignDeviceReturns404(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "someone-else")
	env.seedReading("dev1", time.Hour, 20, 50)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr errors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, errors.ErrorTypeNotFound, apiErr.Type)
	assert.Contains(t, apiErr.Message, "device not found or unauthorized")
}

func TestGetDeviceDataEmptyDeviceReturns404(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr errors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Message, "no data found for this device")
}

func TestGetDeviceDataStampsDeviceName(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", time.Hour, 21.5, 55)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var readings []models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, "greenhouse-1", readings[0].DeviceName)
}

func TestGetAnalyticsSummary(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", 3*time.Hour, 20, 40)
	env.seedReading("dev1", 2*time.Hour, 22, 50)
	env.seedReading("dev1", 1*time.Hour, 24, 60)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/analytics?duration=24h", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "24h", summary.Duration)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 22.0, summary.AvgTemperature, 1e-9)
	assert.Equal(t, 20.0, summary.MinTemperature)
	assert.Equal(t, 24.0, summary.MaxTemperature)
}

func TestGetAnalyticsFallsBackOnUnknownDuration(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", time.Hour, 21, 50)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/analytics?duration=banana", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "24h", summary.Duration)
}

func TestGetTrendsIsChronological(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", 3*time.Hour, 20, 50)
	env.seedReading("dev1", 2*time.Hour, 21, 51)
	env.seedReading("dev1", 1*time.Hour, 22, 52)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/trends?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var points []models.TrendPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 3)
	assert.True(t, points[0].CreatedAt.Before(points[1].CreatedAt))
	assert.True(t, points[1].CreatedAt.Before(points[2].CreatedAt))

	rec = env.do(http.MethodGet, "/api/v1/data/greenhouse-1/batch?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.True(t, points[0].CreatedAt.After(points[1].CreatedAt))
}

func TestGetGraphInvalidDurationReturns400(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", time.Hour, 21, 50)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/graph?duration=12h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr errors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, errors.ErrorTypeValidation, apiErr.Type)
	assert.Contains(t, apiErr.Message, "invalid duration")
	assert.Zero(t, env.readings.aggregateCalls)
}

func TestGetGraphDefaultsDurationAndBuckets(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", 2*time.Hour, 20.04, 50)
	env.seedReading("dev1", 2*time.Hour+5*time.Minute, 21.16, 52)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var graph []models.GraphPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	require.NotEmpty(t, graph)
	for i := 1; i < len(graph); i++ {
		assert.True(t, graph[i-1].Timestamp.Before(graph[i].Timestamp))
	}
	var total int
	for _, p := range graph {
		assert.Equal(t, p.Temperature, analytics.Round1(p.Temperature))
		total += p.Count
	}
	assert.Equal(t, 2, total)
}

func TestGetTimeSeriesChartEncoding(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", 3*time.Hour, 17.0, 40)
	env.seedReading("dev1", 2*time.Hour, 18.46, 50)
	env.seedReading("dev1", 1*time.Hour, 19.06, 60)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/timeseries?limit=2&format=chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var chart analytics.ChartSeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	require.Len(t, chart.Labels, 2)
	require.Len(t, chart.Datasets.Temperature, 2)
	assert.Equal(t, 18.5, *chart.Datasets.Temperature[0])
	assert.Equal(t, 19.1, *chart.Datasets.Temperature[1])
}

func TestGetTimeSeriesDefaultsToTabular(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", time.Hour, 21.0, 55.0)

	rec := env.do(http.MethodGet, "/api/v1/data/greenhouse-1/timeseries", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var series analytics.TabularSeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series.Data, 1)
	assert.Equal(t, 21.0, *series.Data[0].Temperature)
	assert.Equal(t, 21.0, series.Statistics.AvgTemperature)
}

func TestLinkDeviceEndpoint(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "")

	body, _ := json.Marshal(map[string]string{
		"device_name":     "greenhouse-1",
		"device_password": "s3cret",
	})
	rec := env.do(http.MethodPost, "/api/v1/devices/link", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp linkDeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "device linked successfully", resp.Message)
	require.NotNil(t, resp.Device)
	assert.Equal(t, "dev1", resp.Device.ID)

	// A second claim by anyone fails validation.
	rec = env.do(http.MethodPost, "/api/v1/devices/link", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkDeviceWrongCredentialsReturns404(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "")

	body, _ := json.Marshal(map[string]string{
		"device_name":     "greenhouse-1",
		"device_password": "wrong",
	})
	rec := env.do(http.MethodPost, "/api/v1/devices/link", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDevicesWrapsResponse(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedDevice("dev2", "greenhouse-2", "s3cret", "user-1")
	env.seedDevice("dev3", "other", "s3cret", "someone-else")

	rec := env.do(http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Devices []models.DeviceSummary `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "dev1", body.Devices[0].ID)
	assert.Equal(t, "dev2", body.Devices[1].ID)
}

func TestDeleteDeviceEndpointCascades(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")
	env.seedReading("dev1", time.Hour, 21, 50)

	rec := env.do(http.MethodDelete, "/api/v1/devices/greenhouse-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, env.devices.devices, "dev1")
	assert.Empty(t, env.readings.readings)
}

func TestRecordReadingsEndpoint(t *testing.T) {
	env := newTestEnv(testUser())
	env.seedDevice("dev1", "greenhouse-1", "s3cret", "user-1")

	temp := 21.5
	body, _ := json.Marshal([]models.Reading{
		{ID: "r1", DeviceID: "dev1", Temperature: &temp, CreatedAt: time.Now()},
		{ID: "r2", DeviceID: "ghost", Temperature: &temp, CreatedAt: time.Now()},
	})
	rec := env.do(http.MethodPost, "/api/v1/edge/readings", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The unknown-device reading is skipped, the valid one persisted.
	require.Len(t, env.readings.readings, 1)
	assert.Equal(t, "dev1", env.readings.readings[0].DeviceID)
}

func TestRegisterDeviceEndpoint(t *testing.T) {
	env := newTestEnv(testUser())

	body, _ := json.Marshal(map[string]string{"name": "greenhouse-9", "secret": "s3cret"})
	rec := env.do(http.MethodPost, "/api/v1/devices", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var device models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &device))
	assert.NotEmpty(t, device.ID)
	assert.Contains(t, env.devices.devices, device.ID)
}
