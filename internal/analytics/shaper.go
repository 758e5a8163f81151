// FilePath: internal/analytics/shaper.go
package analytics

import (
	"math"
	"time"

	"github.com/itsatony/devicehub/internal/models"
)

// Format selects the output encoding of the shaped time-series.
type Format string

const (
	FormatSimple Format = "simple"
	FormatChart  Format = "chart"
)

// ParseFormat maps the format query parameter to a Format. Anything that is
// not explicitly "chart" renders the tabular default.
func ParseFormat(s string) Format {
	if s == string(FormatChart) {
		return FormatChart
	}
	return FormatSimple
}

// SeriesPoint is one row of the tabular encoding. Time is the short
// time-of-day label; values are rounded to one decimal. Missing sensor
// values stay null.
type SeriesPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Time        string    `json:"time"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
}

// SeriesStats is the descriptive statistics block attached to both
// encodings. It is derived from the already-rounded series, not from a
// separate store aggregation.
type SeriesStats struct {
	AvgTemperature float64 `json:"avg_temperature"`
	AvgHumidity    float64 `json:"avg_humidity"`
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	MinHumidity    float64 `json:"min_humidity"`
	MaxHumidity    float64 `json:"max_humidity"`
}

// TabularSeries is the format=simple response body.
type TabularSeries struct {
	Data       []SeriesPoint `json:"data"`
	Statistics SeriesStats   `json:"statistics"`
}

// ChartDatasets holds the parallel value arrays of the chart encoding, index
// aligned with the labels array.
type ChartDatasets struct {
	Temperature []*float64 `json:"temperature"`
	Humidity    []*float64 `json:"humidity"`
}

// ChartSeries is the format=chart response body.
type ChartSeries struct {
	Labels     []string      `json:"labels"`
	Datasets   ChartDatasets `json:"datasets"`
	Statistics SeriesStats   `json:"statistics"`
}

// Shaper turns chronological reading slices into client encodings. It is a
// pure transformation; the display timezone is fixed at construction so the
// labels never depend on the host locale.
type Shaper struct {
	loc *time.Location
}

func NewShaper(loc *time.Location) *Shaper {
	if loc == nil {
		loc = time.UTC
	}
	return &Shaper{loc: loc}
}

// Tabular shapes readings (oldest first) into the simple encoding.
func (s *Shaper) Tabular(readings []models.Reading) *TabularSeries {
	points := s.points(readings)
	return &TabularSeries{
		Data:       points,
		Statistics: statsOf(points),
	}
}

// Chart shapes readings (oldest first) into the parallel-array encoding.
func (s *Shaper) Chart(readings []models.Reading) *ChartSeries {
	points := s.points(readings)
	out := &ChartSeries{
		Labels: make([]string, len(points)),
		Datasets: ChartDatasets{
			Temperature: make([]*float64, len(points)),
			Humidity:    make([]*float64, len(points)),
		},
		Statistics: statsOf(points),
	}
	for i, p := range points {
		out.Labels[i] = p.Time
		out.Datasets.Temperature[i] = p.Temperature
		out.Datasets.Humidity[i] = p.Humidity
	}
	return out
}

func (s *Shaper) points(readings []models.Reading) []SeriesPoint {
	points := make([]SeriesPoint, len(readings))
	for i, r := range readings {
		points[i] = SeriesPoint{
			Timestamp:   r.CreatedAt,
			Time:        s.timeLabel(r.CreatedAt),
			Temperature: roundPtr(r.Temperature),
			Humidity:    roundPtr(r.Humidity),
		}
	}
	return points
}

// timeLabel renders the zero-padded 24-hour HH:MM label in the configured
// display timezone.
func (s *Shaper) timeLabel(t time.Time) string {
	return t.In(s.loc).Format("15:04")
}

// statsOf computes the statistics block over the rounded series. Averages
// are rounded to one decimal; min/max are the extrema of the rounded values.
func statsOf(points []SeriesPoint) SeriesStats {
	var stats SeriesStats
	stats.AvgTemperature, stats.MinTemperature, stats.MaxTemperature = reduce(points, func(p SeriesPoint) *float64 { return p.Temperature })
	stats.AvgHumidity, stats.MinHumidity, stats.MaxHumidity = reduce(points, func(p SeriesPoint) *float64 { return p.Humidity })
	return stats
}

func reduce(points []SeriesPoint, pick func(SeriesPoint) *float64) (avg, min, max float64) {
	var sum float64
	var count int
	for _, p := range points {
		v := pick(p)
		if v == nil {
			continue
		}
		if count == 0 || *v < min {
			min = *v
		}
		if count == 0 || *v > max {
			max = *v
		}
		sum += *v
		count++
	}
	if count == 0 {
		return 0, 0, 0
	}
	return Round1(sum / float64(count)), min, max
}

// Round1 rounds to one decimal place, the precision every shaped value and
// averaged bucket carries.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round1(*v)
	return &r
}
