package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"droneswarm/internal/config"
	"droneswarm/internal/logging"
	"droneswarm/internal/recorder"
)

// isTerminal reports whether stdout is attached to a terminal.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// newWriters sets up the row sinks selected by cfg. The returned cleanup
// closes files and databases.
func newWriters(ctx context.Context, cfg config.Recorder) (recorder.Writer, func(), error) {
	log := logging.FromContext(ctx)
	var (
		ws      []recorder.Writer
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("closing writer failed", "err", err)
			}
		}
	}
	fail := func(err error) (recorder.Writer, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	if w := stdoutWriter(cfg.Stdout); w != nil {
		ws = append(ws, w)
	}
	if cfg.EventLog != "" || cfg.SwarmLog != "" || cfg.CommandLog != "" {
		fw, err := recorder.NewFileWriter(cfg.EventLog, cfg.SwarmLog, cfg.CommandLog)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, fw)
		closers = append(closers, fw.Close)
	}
	if cfg.SQLitePath != "" {
		sw, err := recorder.NewSQLiteWriter(cfg.SQLitePath)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, sw)
		closers = append(closers, sw.Close)
	}
	if cfg.Greptime.Endpoint != "" {
		gw, err := recorder.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database)
		if err != nil {
			return fail(fmt.Errorf("init GreptimeDB writer: %w", err))
		}
		ws = append(ws, gw)
		log.Info("recording to GreptimeDB", "endpoint", cfg.Greptime.Endpoint, "database", cfg.Greptime.Database)
	}
	if len(ws) == 1 {
		return ws[0], cleanup, nil
	}
	return recorder.NewMultiWriterAll(ws...), cleanup, nil
}

// stdoutWriter picks the stdout sink: colored lines on a terminal, JSON
// otherwise, or nothing.
func stdoutWriter(mode string) recorder.Writer {
	switch mode {
	case "off":
		return nil
	case "json":
		return recorder.NewJSONStdoutWriter()
	case "color":
		return recorder.NewColorStdoutWriter()
	default:
		if isTerminal() {
			return recorder.NewColorStdoutWriter()
		}
		return recorder.NewJSONStdoutWriter()
	}
}
