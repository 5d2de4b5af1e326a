package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"droneswarm/internal/config"
	"droneswarm/internal/recorder"
	"droneswarm/internal/telemetry"
)

func forceTerminal(t *testing.T, tty bool) {
	t.Helper()
	prev := isTerminal
	isTerminal = func() bool { return tty }
	t.Cleanup(func() { isTerminal = prev })
}

func TestNewWritersStdoutAuto(t *testing.T) {
	forceTerminal(t, false)
	w, cleanup, err := newWriters(context.Background(), config.Recorder{Stdout: "auto"})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*recorder.JSONStdoutWriter); !ok {
		t.Fatalf("expected *recorder.JSONStdoutWriter, got %T", w)
	}

	forceTerminal(t, true)
	w, cleanup, err = newWriters(context.Background(), config.Recorder{Stdout: "auto"})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*recorder.ColorStdoutWriter); !ok {
		t.Fatalf("expected *recorder.ColorStdoutWriter on a terminal, got %T", w)
	}
}

func TestNewWritersStdoutOff(t *testing.T) {
	w, cleanup, err := newWriters(context.Background(), config.Recorder{Stdout: "off"})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	mw, ok := w.(*recorder.MultiWriter)
	if !ok {
		t.Fatalf("expected empty *recorder.MultiWriter, got %T", w)
	}
	if err := mw.WriteCommand(telemetry.CommandRow{}); err != nil {
		t.Fatalf("empty multi writer failed: %v", err)
	}
}

func TestNewWritersLogFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Recorder{
		Stdout:     "json",
		EventLog:   filepath.Join(dir, "events.jsonl"),
		CommandLog: filepath.Join(dir, "commands.jsonl"),
		SQLitePath: filepath.Join(dir, "swarm.db"),
	}
	w, cleanup, err := newWriters(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*recorder.MultiWriter); !ok {
		cleanup()
		t.Fatalf("expected *recorder.MultiWriter, got %T", w)
	}
	row := telemetry.CommandRow{SessionID: "s1", Source: "test", Command: `{"func":"arm","args":[0]}`, Timestamp: time.Now()}
	if err := w.WriteCommand(row); err != nil {
		cleanup()
		t.Fatalf("write failed: %v", err)
	}
	cleanup()
	info, err := os.Stat(cfg.CommandLog)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected command log to be non-empty")
	}
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		t.Fatalf("sqlite database not created: %v", err)
	}
}

func TestNewWritersBadPath(t *testing.T) {
	cfg := config.Recorder{Stdout: "off", EventLog: filepath.Join(t.TempDir(), "missing", "events.jsonl")}
	if _, _, err := newWriters(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unwritable log path")
	}
}
