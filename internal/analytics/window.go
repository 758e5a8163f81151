// FilePath: internal/analytics/window.go
package analytics

import (
	"time"

	"github.com/itsatony/devicehub/internal/errors"
	"github.com/itsatony/devicehub/internal/models"
)

// DefaultDurationToken is the window applied when a caller omits the
// duration or, on the lenient path, supplies one we do not recognize.
const DefaultDurationToken = "24h"

// durationSpans maps the symbolic duration tokens to their canonical widths.
var durationSpans = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ResolveWindow translates a duration token into a concrete [start, end)
// window ending at now. Unrecognized tokens silently fall back to 24h; the
// summary endpoints tolerate sloppy callers.
func ResolveWindow(token string, now time.Time) models.TimeWindow {
	span, ok := durationSpans[token]
	if !ok {
		token = DefaultDurationToken
		span = durationSpans[token]
	}
	return models.TimeWindow{Start: now.Add(-span), End: now, Token: token}
}

// ResolveWindowStrict is the graph endpoint's resolver: an unrecognized token
// is a validation failure and nothing is queried. The asymmetry with
// ResolveWindow is inherited behavior and is kept on purpose.
func ResolveWindowStrict(token string, now time.Time) (models.TimeWindow, error) {
	span, ok := durationSpans[token]
	if !ok {
		return models.TimeWindow{}, errors.NewValidationError(
			"invalid duration: must be one of 1h, 24h, 7d, 30d", nil)
	}
	return models.TimeWindow{Start: now.Add(-span), End: now, Token: token}, nil
}
