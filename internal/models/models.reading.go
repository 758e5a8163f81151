// FilePath: internal/models/models.reading.go
package models

import "time"

// Reading is one sensor observation. Temperature, humidity and location are
// all optional; whatever the device reported is stored as-is. CreatedAt is
// assigned at insertion and never changes.
type Reading struct {
	ID          string    `json:"id" db:"id"`
	DeviceID    string    `json:"device_id" db:"device_id"`
	DeviceName  string    `json:"device_name,omitempty" db:"device_name"`
	Temperature *float64  `json:"temperature,omitempty" db:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty" db:"humidity"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TrendPoint is a reading reduced to the fields the trend/batch series carry.
type TrendPoint struct {
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReadingStats is the single-row summary over a time window.
type ReadingStats struct {
	AvgTemperature float64 `json:"avg_temperature" db:"avg_temperature"`
	MinTemperature float64 `json:"min_temperature" db:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature" db:"max_temperature"`
	AvgHumidity    float64 `json:"avg_humidity" db:"avg_humidity"`
	MinHumidity    float64 `json:"min_humidity" db:"min_humidity"`
	MaxHumidity    float64 `json:"max_humidity" db:"max_humidity"`
	Count          int     `json:"count" db:"reading_count"`
}

// GraphPoint is one averaged bucket of the graph series.
type GraphPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Count       int       `json:"count"`
}
