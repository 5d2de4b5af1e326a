// Row types recorded by the swarm, with greptime tags
package telemetry

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// VehicleEventRow is one observed change of a vehicle field.
type VehicleEventRow struct {
	SessionID string    `json:"session_id"` // TAG
	Index     int       `json:"index"`      // TAG
	Field     string    `json:"field"`      // TAG
	Value     any       `json:"value"`      // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// NumericValue returns the value as a float when it is numeric or boolean.
func (r VehicleEventRow) NumericValue() (float64, bool) {
	switch v := r.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// TextValue renders the value as text.
func (r VehicleEventRow) TextValue() string {
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	if f, ok := r.NumericValue(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// VehicleEventTableName holds the table name used when writing vehicle events
// to GreptimeDB. It defaults to "vehicle_events" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var VehicleEventTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "vehicle_events"
}()

func (VehicleEventRow) TableName() string {
	return VehicleEventTableName
}

// CommandRow records one command accepted by the dispatcher. Command holds
// the wire form so a log can be replayed.
type CommandRow struct {
	SessionID string    `json:"session_id"` // TAG
	Source    string    `json:"source"`     // TAG
	Command   string    `json:"command"`    // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

func (CommandRow) TableName() string { return "command_log" }

// NewSessionID returns a fresh identifier for one run of the swarm.
func NewSessionID() string {
	return uuid.NewString()
}
