package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"droneswarm/internal/telemetry"
)

// JSONStdoutWriter prints rows as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter creates a JSON line writer on out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

func (w *JSONStdoutWriter) emit(kind string, row any) error {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		Row  any    `json:"row"`
	}{kind, row})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteVehicleEvent outputs a vehicle event in JSON format.
func (w *JSONStdoutWriter) WriteVehicleEvent(r telemetry.VehicleEventRow) error {
	return w.emit("vehicle", r)
}

// WriteVehicleEvents outputs multiple vehicle events in JSON format.
func (w *JSONStdoutWriter) WriteVehicleEvents(rows []telemetry.VehicleEventRow) error {
	for _, r := range rows {
		if err := w.WriteVehicleEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSwarmEvent outputs a swarm event in JSON format.
func (w *JSONStdoutWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	return w.emit("swarm", e)
}

// WriteCommand outputs a command log row in JSON format.
func (w *JSONStdoutWriter) WriteCommand(c telemetry.CommandRow) error {
	return w.emit("command", c)
}
