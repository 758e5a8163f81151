// FilePath: internal/models/models.query.go
package models

import "time"

// TimeWindow bounds a query to the half-open instant range [Start, End).
// Token keeps the duration token the window was resolved from.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Token string    `json:"token,omitempty"`
}

// Width returns End - Start.
func (w TimeWindow) Width() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window. Start is inclusive,
// End exclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Reducer names an aggregation function applied to one reading field.
type Reducer string

const (
	ReducerAvg Reducer = "avg"
	ReducerMin Reducer = "min"
	ReducerMax Reducer = "max"
)

// Aggregation pairs a reading field with the reducer applied to it.
type Aggregation struct {
	Field   string
	Reducer Reducer
}

// GroupSpec describes one aggregation run against the reading store: the
// match range, the grouping interval and the reduced fields. The engine
// constructs it; the store executes it. IntervalMS == 0 collapses the whole
// window into a single aggregate row, otherwise readings group by
// floor((created_at_ms - start_ms) / IntervalMS).
type GroupSpec struct {
	Window       TimeWindow
	IntervalMS   int64
	Aggregations []Aggregation
}

// BucketFor returns the bucket index a reading timestamp maps to. This is
// the contract the store's grouping must implement; the SQL in the timescale
// repository mirrors it exactly.
func (s GroupSpec) BucketFor(t time.Time) int64 {
	if s.IntervalMS <= 0 {
		return 0
	}
	return (t.UnixMilli() - s.Window.Start.UnixMilli()) / s.IntervalMS
}

// AggregateRow is one group produced by a GroupSpec run. StartTime is the
// timestamp of the first (earliest) reading in the group. Reduced values not
// requested by the spec stay zero.
type AggregateRow struct {
	Bucket         int64     `json:"bucket" db:"bucket"`
	StartTime      time.Time `json:"start_time" db:"start_time"`
	Count          int       `json:"count" db:"reading_count"`
	AvgTemperature float64   `json:"avg_temperature" db:"avg_temperature"`
	MinTemperature float64   `json:"min_temperature" db:"min_temperature"`
	MaxTemperature float64   `json:"max_temperature" db:"max_temperature"`
	AvgHumidity    float64   `json:"avg_humidity" db:"avg_humidity"`
	MinHumidity    float64   `json:"min_humidity" db:"min_humidity"`
	MaxHumidity    float64   `json:"max_humidity" db:"max_humidity"`
}
