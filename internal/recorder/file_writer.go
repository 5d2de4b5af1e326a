package recorder

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"droneswarm/internal/telemetry"
)

// FileWriter writes each row kind to its own JSONL file.
type FileWriter struct {
	mu       sync.Mutex
	files    []*os.File
	eventEnc *json.Encoder
	swarmEnc *json.Encoder
	cmdEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. swarmPath or commandPath may be empty
// to skip those logs.
func NewFileWriter(eventPath, swarmPath, commandPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	open := func(path string) (*json.Encoder, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		fw.files = append(fw.files, f)
		return json.NewEncoder(f), nil
	}
	var err error
	if fw.eventEnc, err = open(eventPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.swarmEnc, err = open(swarmPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.cmdEnc, err = open(commandPath); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func (f *FileWriter) encode(enc *json.Encoder, v any) error {
	if enc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return enc.Encode(v)
}

// WriteVehicleEvent logs a single vehicle event row, if enabled.
func (f *FileWriter) WriteVehicleEvent(r telemetry.VehicleEventRow) error {
	return f.encode(f.eventEnc, r)
}

// WriteVehicleEvents logs multiple vehicle event rows.
func (f *FileWriter) WriteVehicleEvents(rows []telemetry.VehicleEventRow) error {
	for _, r := range rows {
		if err := f.WriteVehicleEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSwarmEvent logs a single swarm event row, if enabled.
func (f *FileWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	return f.encode(f.swarmEnc, e)
}

// WriteCommand logs a command row, if enabled. The file is the input of
// ReplayCommands.
func (f *FileWriter) WriteCommand(c telemetry.CommandRow) error {
	return f.encode(f.cmdEnc, c)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, file := range f.files {
		errs = append(errs, file.Close())
	}
	f.files = nil
	return errors.Join(errs...)
}
