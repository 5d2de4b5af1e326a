package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"droneswarm/internal/command"
	"droneswarm/internal/config"
	"droneswarm/internal/logging"
	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

type memWriter struct {
	mu       sync.Mutex
	events   int
	swarm    []string
	commands []string
}

func (m *memWriter) WriteVehicleEvent(telemetry.VehicleEventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
	return nil
}

func (m *memWriter) WriteSwarmEvent(r telemetry.SwarmEventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swarm = append(m.swarm, r.EventType)
	return nil
}

func (m *memWriter) WriteCommand(r telemetry.CommandRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, r.Command)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Link.Sim.Tick = 5 * time.Millisecond
	cfg.Link.Sim.MaxSpeedMS = 1000
	cfg.Swarm.FollowHz = 50
	cfg.Swarm.ArmDelay = time.Millisecond
	cfg.Executor.Backoff = 5 * time.Millisecond
	return cfg
}

func TestAppRunsUntilClose(t *testing.T) {
	ctx := logging.NewContext(context.Background(), logging.Discard())
	w := &memWriter{}
	a, err := newApp(ctx, testConfig(), w)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- a.run(ctx, func(ctx context.Context) error {
			for _, c := range []command.Command{
				command.Connect{Index: 0, Port: "14540"},
				command.Connect{Index: 1, Port: "14541"},
				command.SetLeader{Index: 0},
				command.AddFollower{Index: 1, Distance: 5, Angle: 90},
				command.ReadyToFollow{},
				command.StartFollow{},
				command.Close{},
			} {
				if err := a.fleet.Dispatch(ctx, "test", c); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("app did not stop after close")
	}

	for _, v := range a.fleet.Vehicles() {
		if v.State() != vehicle.Disconnected {
			t.Fatalf("vehicle %d still %s", v.Index(), v.State())
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.commands) != 7 {
		t.Fatalf("expected 7 recorded commands, got %v", w.commands)
	}
	if w.events == 0 {
		t.Fatalf("no vehicle events recorded")
	}
	if len(w.swarm) == 0 || w.swarm[0] != telemetry.SwarmEventLeaderSet {
		t.Fatalf("unexpected swarm events %v", w.swarm)
	}
}

func TestAppSignalStops(t *testing.T) {
	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logging.Discard()))
	a, err := newApp(ctx, testConfig(), nil)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("app ignored cancellation")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Link.Driver = "mavlink"
	if _, err := newApp(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestResolveScenario(t *testing.T) {
	sc, err := resolveScenario("trail")
	if err != nil {
		t.Fatalf("resolve builtin: %v", err)
	}
	if _, err := sc.Commands(); err != nil {
		t.Fatalf("builtin scenario does not decode: %v", err)
	}
	if _, err := resolveScenario(""); err == nil {
		t.Fatalf("expected error for empty scenario")
	}
	if _, err := resolveScenario("no-such-file.yaml"); err == nil {
		t.Fatalf("expected error for missing scenario file")
	}
}
