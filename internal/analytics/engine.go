// FilePath: internal/analytics/engine.go
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/itsatony/devicehub/internal/cache"
	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/models"
	"github.com/itsatony/devicehub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

const (
	// DefaultSeriesLimit is the sample count for trend/batch/timeseries
	// queries when the caller does not supply one.
	DefaultSeriesLimit = 24
	// DefaultGraphPoints is the target bucket count for graph queries.
	DefaultGraphPoints = 24
)

// Engine answers the read-side queries over the reading store: raw fetch,
// windowed summary, trend/batch series, graph bucketing and shaped
// time-series. It never writes; every query is a bounded view over the
// append-only store.
type Engine struct {
	readings repository.ReadingRepository
	cache    *cache.Cache
	shaper   *Shaper
	now      func() time.Time
}

// NewEngine creates an engine. cache may be nil; graph queries then skip the
// cache layer entirely.
func NewEngine(readings repository.ReadingRepository, c *cache.Cache, loc *time.Location) *Engine {
	return &Engine{
		readings: readings,
		cache:    c,
		shaper:   NewShaper(loc),
		now:      time.Now,
	}
}

// Summary is the analytics response: one aggregate scalar row over the
// resolved window.
type Summary struct {
	Duration string `json:"duration"`
	models.ReadingStats
}

// DeviceReadings returns every reading of a device, newest first, with the
// device display name attached. Zero readings is a not-found condition, not
// an empty success.
func (e *Engine) DeviceReadings(ctx context.Context, device *models.Device) ([]models.Reading, error) {
	readings, err := e.readings.ListByDevice(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, errors.NewNotFoundError("no data found for this device", nil)
	}
	for i := range readings {
		readings[i].DeviceName = device.Name
	}
	return readings, nil
}

// Summarize computes avg/min/max of temperature and humidity over the
// window named by the duration token. Unrecognized tokens fall back to 24h.
func (e *Engine) Summarize(ctx context.Context, device *models.Device, durationToken string) (*Summary, error) {
	window := ResolveWindow(durationToken, e.now())
	spec := models.GroupSpec{
		Window: window,
		Aggregations: []models.Aggregation{
			{Field: "temperature", Reducer: models.ReducerAvg},
			{Field: "temperature", Reducer: models.ReducerMin},
			{Field: "temperature", Reducer: models.ReducerMax},
			{Field: "humidity", Reducer: models.ReducerAvg},
			{Field: "humidity", Reducer: models.ReducerMin},
			{Field: "humidity", Reducer: models.ReducerMax},
		},
	}

	rows, err := e.readings.Aggregate(ctx, device.ID, spec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewNotFoundError("no data found for this device in the selected time range", nil)
	}

	row := rows[0]
	return &Summary{
		Duration: window.Token,
		ReadingStats: models.ReadingStats{
			AvgTemperature: row.AvgTemperature,
			MinTemperature: row.MinTemperature,
			MaxTemperature: row.MaxTemperature,
			AvgHumidity:    row.AvgHumidity,
			MinHumidity:    row.MinHumidity,
			MaxHumidity:    row.MaxHumidity,
			Count:          row.Count,
		},
	}, nil
}

// Trend returns the most recent limit readings reduced to trend points in
// chronological order. The store hands them back newest first; consumers
// expect oldest first, so the engine reverses before emitting.
func (e *Engine) Trend(ctx context.Context, device *models.Device, limit int) ([]models.TrendPoint, error) {
	points, err := e.recentPoints(ctx, device, limit)
	if err != nil {
		return nil, err
	}
	reverse(points)
	return points, nil
}

// Batch returns the same rows as Trend in store order, newest first.
func (e *Engine) Batch(ctx context.Context, device *models.Device, limit int) ([]models.TrendPoint, error) {
	return e.recentPoints(ctx, device, limit)
}

func (e *Engine) recentPoints(ctx context.Context, device *models.Device, limit int) ([]models.TrendPoint, error) {
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	readings, err := e.readings.ListRecent(ctx, device.ID, limit)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, errors.NewNotFoundError("no data found for this device", nil)
	}

	points := make([]models.TrendPoint, len(readings))
	for i, r := range readings {
		points[i] = models.TrendPoint{
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			CreatedAt:   r.CreatedAt,
		}
	}
	return points, nil
}

// Graph buckets the window into points slices of floor(width/points)
// milliseconds, averages temperature and humidity per nonempty bucket and
// returns the buckets oldest first. The duration token is validated strictly
// before the store is touched.
func (e *Engine) Graph(ctx context.Context, device *models.Device, durationToken string, points int) ([]models.GraphPoint, error) {
	window, err := ResolveWindowStrict(durationToken, e.now())
	if err != nil {
		return nil, err
	}
	if points <= 0 {
		points = DefaultGraphPoints
	}

	cacheKey := fmt.Sprintf("graph:%s:%s:%d", device.ID, window.Token, points)
	if e.cache != nil {
		var cached []models.GraphPoint
		hit, err := e.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			nuts.L.Warnf("[AnalyticsEngine] Graph cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	intervalMS := window.Width().Milliseconds() / int64(points)
	if intervalMS < 1 {
		intervalMS = 1
	}

	spec := models.GroupSpec{
		Window:     window,
		IntervalMS: intervalMS,
		Aggregations: []models.Aggregation{
			{Field: "temperature", Reducer: models.ReducerAvg},
			{Field: "humidity", Reducer: models.ReducerAvg},
		},
	}

	rows, err := e.readings.Aggregate(ctx, device.ID, spec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewNotFoundError("no data found for this device in the selected time range", nil)
	}

	graph := make([]models.GraphPoint, len(rows))
	for i, row := range rows {
		graph[i] = models.GraphPoint{
			Timestamp:   row.StartTime,
			Temperature: Round1(row.AvgTemperature),
			Humidity:    Round1(row.AvgHumidity),
			Count:       row.Count,
		}
	}
	// The store already orders by start_time; the engine still owns the
	// ordering guarantee.
	sort.Slice(graph, func(i, j int) bool { return graph[i].Timestamp.Before(graph[j].Timestamp) })

	if e.cache != nil {
		if err := e.cache.Set(ctx, cacheKey, graph); err != nil {
			nuts.L.Warnf("[AnalyticsEngine] Graph cache write failed: %v", err)
		}
	}
	return graph, nil
}

// TimeSeries returns the most recent limit readings shaped into the
// requested encoding, oldest first.
func (e *Engine) TimeSeries(ctx context.Context, device *models.Device, limit int, format Format) (interface{}, error) {
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	readings, err := e.readings.ListRecent(ctx, device.ID, limit)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, errors.NewNotFoundError("no data found for this device", nil)
	}

	// Store order is newest first; both encodings are chronological.
	reverse(readings)

	if format == FormatChart {
		return e.shaper.Chart(readings), nil
	}
	return e.shaper.Tabular(readings), nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
