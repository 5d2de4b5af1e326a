package recorder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"droneswarm/internal/command"
	"droneswarm/internal/logging"
	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

type memWriter struct {
	mu     sync.Mutex
	events []telemetry.VehicleEventRow
	swarm  []telemetry.SwarmEventRow
	cmds   []telemetry.CommandRow
	err    error
}

func (m *memWriter) WriteVehicleEvent(r telemetry.VehicleEventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, r)
	return m.err
}

func (m *memWriter) WriteSwarmEvent(r telemetry.SwarmEventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swarm = append(m.swarm, r)
	return m.err
}

func (m *memWriter) WriteCommand(r telemetry.CommandRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, r)
	return m.err
}

func TestRecorderThinsPositionFields(t *testing.T) {
	m := &memWriter{}
	r := NewRecorder(m, "s1", time.Second, logging.Discard())
	t0 := time.Unix(100, 0)
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldLatitude, Value: 1.0, At: t0})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldLatitude, Value: 1.1, At: t0.Add(100 * time.Millisecond)})
	r.Observe(vehicle.Event{Index: 1, Field: vehicle.FieldLatitude, Value: 2.0, At: t0.Add(100 * time.Millisecond)})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldLatitude, Value: 1.2, At: t0.Add(time.Second)})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldIsArmed, Value: true, At: t0.Add(10 * time.Millisecond)})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldIsArmed, Value: false, At: t0.Add(20 * time.Millisecond)})
	if len(m.events) != 5 {
		t.Fatalf("expected 5 rows, got %d: %+v", len(m.events), m.events)
	}
	if m.events[0].SessionID != "s1" {
		t.Fatalf("session not set")
	}
}

func TestRecorderKeepsStateChangesOnly(t *testing.T) {
	m := &memWriter{}
	r := NewRecorder(m, "s1", time.Second, logging.Discard())
	t0 := time.Unix(100, 0)
	for i, armed := range []bool{false, false, true, true, false} {
		r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldIsArmed, Value: armed, At: t0.Add(time.Duration(i) * time.Millisecond)})
	}
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldFlightMode, Value: "HOLD", At: t0})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldFlightMode, Value: "HOLD", At: t0})
	r.Observe(vehicle.Event{Index: 1, Field: vehicle.FieldFlightMode, Value: "HOLD", At: t0})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldStatusText, Value: "ready", At: t0})
	r.Observe(vehicle.Event{Index: 0, Field: vehicle.FieldStatusText, Value: "ready", At: t0})
	var got []string
	for _, e := range m.events {
		got = append(got, e.Field)
	}
	// armed: false, true, false; flight mode once per vehicle; both status texts.
	if len(m.events) != 7 {
		t.Fatalf("expected 7 rows, got %d: %v", len(m.events), got)
	}
}

func TestMultiWriterAttemptsEveryWriter(t *testing.T) {
	bad := &memWriter{err: errors.New("down")}
	good := &memWriter{}
	mw := NewMultiWriterAll(bad, good)
	err := mw.WriteSwarmEvent(telemetry.SwarmEventRow{EventType: telemetry.SwarmEventLeaderSet})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(good.swarm) != 1 {
		t.Fatalf("healthy writer skipped")
	}
	if err := mw.WriteVehicleEvents([]telemetry.VehicleEventRow{{Field: "heading"}, {Field: "latitude"}}); err == nil {
		t.Fatalf("expected joined error from batch")
	}
	if len(good.events) != 2 {
		t.Fatalf("expected 2 events on healthy writer, got %d", len(good.events))
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	_ = w.WriteVehicleEvent(telemetry.VehicleEventRow{Index: 1, Field: "heading", Value: 90.0})
	_ = w.WriteCommand(telemetry.CommandRow{Source: "tcp", Command: `{"func":"arm","args":[1]}`})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"kind":"vehicle"`) || !strings.Contains(lines[1], `"kind":"command"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestColorWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &ColorStdoutWriter{out: &buf}
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = w.WriteVehicleEvent(telemetry.VehicleEventRow{Index: 3, Field: "latitude", Value: 47.3977421, Timestamp: ts})
	_ = w.WriteSwarmEvent(telemetry.SwarmEventRow{EventType: telemetry.SwarmEventFollowStarted, Leader: telemetry.NoLeader, Timestamp: ts})
	out := buf.String()
	for _, want := range []string{"drone#3", "47.397742", "follow_started", "12:00:00.000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "leader=") {
		t.Fatalf("leader printed for leaderless event: %q", out)
	}
}

type replayDispatcher struct {
	cmds []command.Command
}

func (d *replayDispatcher) Dispatch(_ context.Context, source string, c command.Command) error {
	if source != "replay" {
		return errors.New("wrong source")
	}
	if _, ok := c.(command.Close); ok {
		return errors.New("closed")
	}
	d.cmds = append(d.cmds, c)
	return nil
}

func TestFileWriterAndReplay(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.jsonl")
	fw, err := NewFileWriter(filepath.Join(dir, "events.jsonl"), "", cmdPath)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	t0 := time.Unix(0, 0).UTC()
	for i, c := range []command.Command{command.SetLeader{Index: 0}, command.Close{}, command.AddFollower{Index: 1, Distance: 5, Angle: 90}} {
		b, err := command.Encode(c)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := fw.WriteCommand(telemetry.CommandRow{SessionID: "s", Source: "tcp", Command: string(b), Timestamp: t0.Add(time.Duration(i) * time.Millisecond)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = fw.WriteCommand(telemetry.CommandRow{Command: `{"func":"bogus"}`, Timestamp: t0.Add(3 * time.Millisecond)})
	// Disabled stream is a no-op.
	if err := fw.WriteSwarmEvent(telemetry.SwarmEventRow{}); err != nil {
		t.Fatalf("swarm write on disabled stream: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(cmdPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	f.Close()
	if lines != 4 {
		t.Fatalf("expected 4 logged commands, got %d", lines)
	}

	d := &replayDispatcher{}
	n, err := ReplayCommandsFile(context.Background(), cmdPath, d, 1000)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 2 || len(d.cmds) != 2 {
		t.Fatalf("expected 2 dispatched commands, got %d", n)
	}
	if d.cmds[1] != (command.AddFollower{Index: 1, Distance: 5, Angle: 90}) {
		t.Fatalf("unexpected replayed command %#v", d.cmds[1])
	}
}

func TestReplayHonorsCancel(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"command":"{\"func\":\"stopFollow\",\"args\":[]}","ts":"2024-01-01T00:00:00Z"}` + "\n")
	buf.WriteString(`{"command":"{\"func\":\"stopFollow\",\"args\":[]}","ts":"2024-01-01T01:00:00Z"}` + "\n")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := ReplayCommands(ctx, &buf, &replayDispatcher{}, 1)
	if !errors.Is(err, context.DeadlineExceeded) || n != 1 {
		t.Fatalf("expected cancellation after one command, got n=%d err=%v", n, err)
	}
}

func TestSQLiteWriter(t *testing.T) {
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "swarm.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()
	ts := time.Unix(5, 0).UTC()
	if err := w.WriteVehicleEvents([]telemetry.VehicleEventRow{
		{SessionID: "s1", Index: 0, Field: "heading", Value: 90.0, Timestamp: ts},
		{SessionID: "s1", Index: 0, Field: "flightMode", Value: "HOLD", Timestamp: ts},
	}); err != nil {
		t.Fatalf("WriteVehicleEvents: %v", err)
	}
	if err := w.WriteSwarmEvent(telemetry.SwarmEventRow{SessionID: "s1", EventType: telemetry.SwarmEventLeaderSet, Followers: []int{1}, Timestamp: ts}); err != nil {
		t.Fatalf("WriteSwarmEvent: %v", err)
	}
	for _, c := range []string{`{"func":"arm","args":[0]}`, `{"func":"stopFollow","args":[]}`} {
		if err := w.WriteCommand(telemetry.CommandRow{SessionID: "s1", Source: "tcp", Command: c, Timestamp: ts}); err != nil {
			t.Fatalf("WriteCommand: %v", err)
		}
	}
	_ = w.WriteCommand(telemetry.CommandRow{SessionID: "other", Command: "{}", Timestamp: ts})

	got, err := w.Commands(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 2 || got[0].Command != `{"func":"arm","args":[0]}` || !got[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected command log %+v", got)
	}
	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM vehicle_events WHERE value_num IS NULL`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one non-numeric event, got %d", count)
	}
}
