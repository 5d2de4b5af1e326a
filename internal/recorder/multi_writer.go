package recorder

import (
	"errors"

	"droneswarm/internal/telemetry"
)

// MultiWriter fans rows out to multiple writers. Every writer is attempted;
// errors are joined.
type MultiWriter struct {
	eventWriters []VehicleEventWriter
	swarmWriters []SwarmEventWriter
	cmdWriters   []CommandWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(evs []VehicleEventWriter, sws []SwarmEventWriter, cws []CommandWriter) *MultiWriter {
	return &MultiWriter{eventWriters: evs, swarmWriters: sws, cmdWriters: cws}
}

// NewMultiWriterAll registers each writer for every row kind.
func NewMultiWriterAll(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		mw.eventWriters = append(mw.eventWriters, w)
		mw.swarmWriters = append(mw.swarmWriters, w)
		mw.cmdWriters = append(mw.cmdWriters, w)
	}
	return mw
}

// WriteVehicleEvent sends a vehicle event to all writers.
func (mw *MultiWriter) WriteVehicleEvent(row telemetry.VehicleEventRow) error {
	var errs []error
	for _, w := range mw.eventWriters {
		errs = append(errs, w.WriteVehicleEvent(row))
	}
	return errors.Join(errs...)
}

// WriteVehicleEvents sends multiple vehicle events to all writers, using batch if supported.
func (mw *MultiWriter) WriteVehicleEvents(rows []telemetry.VehicleEventRow) error {
	var errs []error
	for _, w := range mw.eventWriters {
		if bw, ok := w.(batchVehicleEventWriter); ok {
			errs = append(errs, bw.WriteVehicleEvents(rows))
			continue
		}
		for _, r := range rows {
			errs = append(errs, w.WriteVehicleEvent(r))
		}
	}
	return errors.Join(errs...)
}

// WriteSwarmEvent sends a swarm event to all swarm writers.
func (mw *MultiWriter) WriteSwarmEvent(row telemetry.SwarmEventRow) error {
	var errs []error
	for _, w := range mw.swarmWriters {
		errs = append(errs, w.WriteSwarmEvent(row))
	}
	return errors.Join(errs...)
}

// WriteCommand sends a command row to all command writers.
func (mw *MultiWriter) WriteCommand(row telemetry.CommandRow) error {
	var errs []error
	for _, w := range mw.cmdWriters {
		errs = append(errs, w.WriteCommand(row))
	}
	return errors.Join(errs...)
}
