package recorder

import (
	"log/slog"
	"sync"
	"time"

	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

// DefaultPositionInterval is the minimum spacing of recorded samples for a
// position-like field of one vehicle.
const DefaultPositionInterval = 500 * time.Millisecond

var rateLimited = map[vehicle.Field]bool{
	vehicle.FieldLatitude:         true,
	vehicle.FieldLongitude:        true,
	vehicle.FieldAltitude:         true,
	vehicle.FieldAbsoluteAltitude: true,
	vehicle.FieldHeading:          true,
}

// onChange fields are recorded only when the value differs from the last
// recorded one.
var onChange = map[vehicle.Field]bool{
	vehicle.FieldIsArmed:    true,
	vehicle.FieldFlightMode: true,
}

type fieldKey struct {
	index int
	field vehicle.Field
}

// Recorder turns vehicle events into rows. Position and heading samples are
// thinned to one per interval, armed state and flight mode are recorded on
// change, and status text is recorded as it arrives.
type Recorder struct {
	w         VehicleEventWriter
	sessionID string
	interval  time.Duration
	log       *slog.Logger

	mu        sync.Mutex
	last      map[fieldKey]time.Time
	lastValue map[fieldKey]any
}

// NewRecorder creates a recorder. interval <= 0 disables thinning.
func NewRecorder(w VehicleEventWriter, sessionID string, interval time.Duration, log *slog.Logger) *Recorder {
	return &Recorder{
		w:         w,
		sessionID: sessionID,
		interval:  interval,
		log:       log,
		last:      make(map[fieldKey]time.Time),
		lastValue: make(map[fieldKey]any),
	}
}

// Observe is a vehicle.Observer.
func (r *Recorder) Observe(e vehicle.Event) {
	if r.interval > 0 && rateLimited[e.Field] {
		k := fieldKey{e.Index, e.Field}
		r.mu.Lock()
		prev, seen := r.last[k]
		if seen && e.At.Sub(prev) < r.interval {
			r.mu.Unlock()
			return
		}
		r.last[k] = e.At
		r.mu.Unlock()
	}
	if onChange[e.Field] {
		k := fieldKey{e.Index, e.Field}
		r.mu.Lock()
		prev, seen := r.lastValue[k]
		if seen && prev == e.Value {
			r.mu.Unlock()
			return
		}
		r.lastValue[k] = e.Value
		r.mu.Unlock()
	}
	row := telemetry.VehicleEventRow{
		SessionID: r.sessionID,
		Index:     e.Index,
		Field:     string(e.Field),
		Value:     e.Value,
		Timestamp: e.At,
	}
	if err := r.w.WriteVehicleEvent(row); err != nil {
		r.log.Error("vehicle event write failed", "index", e.Index, "field", e.Field, "err", err)
	}
}
