// Package recorder persists vehicle events, swarm events and the command log
// to stdout, JSONL files, SQLite and GreptimeDB.
package recorder

import "droneswarm/internal/telemetry"

// VehicleEventWriter handles vehicle field changes.
type VehicleEventWriter interface {
	WriteVehicleEvent(telemetry.VehicleEventRow) error
}

// Optional: writers may support batch mode for vehicle events.
type batchVehicleEventWriter interface {
	WriteVehicleEvents([]telemetry.VehicleEventRow) error
}

// SwarmEventWriter handles swarm coordination events.
type SwarmEventWriter interface {
	WriteSwarmEvent(telemetry.SwarmEventRow) error
}

// CommandWriter handles the command log.
type CommandWriter interface {
	WriteCommand(telemetry.CommandRow) error
}

// Writer handles every row kind.
type Writer interface {
	VehicleEventWriter
	SwarmEventWriter
	CommandWriter
}
