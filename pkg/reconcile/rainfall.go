package reconcile

import (
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
)

// RainWindow is the trailing window summed into RainLastHour
const RainWindow = time.Hour

// AnnotateRainLastHour sets RainLastHour on every record of an ascending
// series that carries a Rain value, summing Rain over the records less
// than one hour older than it, the record itself included. The window
// reaches back to and includes the first record's Rain, even when the
// series starts less than an hour earlier. The first record itself is
// never annotated. Records without Rain contribute nothing to a window.
//
// The series is modified in place. Running it twice gives the same
// result.
func AnnotateRainLastHour(series []models.Measurement) {
	window := RainWindow.Milliseconds()

	for i := len(series) - 1; i > 0; i-- {
		latest := &series[i]
		if latest.Rain == nil {
			continue
		}

		total := 0.0
		for j := i; j >= 0; j-- {
			current := series[j]
			if latest.Timestamp-current.Timestamp >= window {
				break
			}
			if current.Rain != nil {
				total += *current.Rain
			}
		}

		latest.RainLastHour = models.Float(total)
	}
}
