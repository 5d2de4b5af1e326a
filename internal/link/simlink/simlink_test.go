package simlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"droneswarm/internal/geo"
	"droneswarm/internal/link"
)

func fastOptions() Options {
	o := DefaultOptions()
	o.Tick = 5 * time.Millisecond
	o.MaxSpeedMS = 1000
	return o
}

func connected(t *testing.T, opts Options) *Vehicle {
	t.Helper()
	v := New(0, opts)
	if err := v.Connect(context.Background(), "udp://:14540"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestRequestsBeforeConnect(t *testing.T) {
	v := New(0, fastOptions())
	if err := v.Arm(context.Background()); !errors.Is(err, link.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := v.Position(context.Background()); !errors.Is(err, link.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected for stream, got %v", err)
	}
}

func TestUnreachableBlocksUntilDeadline(t *testing.T) {
	opts := fastOptions()
	opts.Unreachable = true
	v := New(0, opts)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := v.Connect(ctx, "udp://:14540"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOffboardRequiresSetpoint(t *testing.T) {
	v := connected(t, fastOptions())
	ctx := context.Background()
	if err := v.StartOffboard(ctx); !errors.Is(err, link.ErrOffboardRejected) {
		t.Fatalf("expected rejection without setpoint, got %v", err)
	}
	if err := v.SetPositionNED(ctx, link.PositionNEDYaw{}); err != nil {
		t.Fatalf("setpoint: %v", err)
	}
	if err := v.StartOffboard(ctx); err != nil {
		t.Fatalf("start offboard: %v", err)
	}
	if err := v.StopOffboard(ctx); err != nil {
		t.Fatalf("stop offboard: %v", err)
	}
	if err := v.StopOffboard(ctx); !errors.Is(err, link.ErrOffboardRejected) {
		t.Fatalf("expected rejection when inactive, got %v", err)
	}
}

func TestGlobalSetpointMovesVehicle(t *testing.T) {
	v := connected(t, fastOptions())
	ctx := context.Background()
	target := link.PositionGlobalYaw{AltM: 498, YawDeg: 90, AltitudeType: link.AltitudeAMSL}
	target.LatDeg, target.LonDeg = geo.Project(v.homeLat, v.homeLon, 0, 50, 0)
	if err := v.Arm(ctx); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := v.SetPositionGlobal(ctx, target); err != nil {
		t.Fatalf("setpoint: %v", err)
	}
	if err := v.StartOffboard(ctx); err != nil {
		t.Fatalf("offboard: %v", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	positions, err := v.Position(pctx)
	if err != nil {
		t.Fatalf("position stream: %v", err)
	}
	for p := range positions {
		if geo.Distance(p.LatitudeDeg, p.LongitudeDeg, target.LatDeg, target.LonDeg) < 0.5 && p.AbsoluteAltitudeM == 498 {
			if c := v.Counters(); c.GlobalSetpoints != 1 || c.LastGlobal != target {
				t.Fatalf("unexpected counters: %+v", c)
			}
			return
		}
	}
	t.Fatalf("vehicle never reached target")
}

func TestStatusTextOnArm(t *testing.T) {
	v := connected(t, fastOptions())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	texts, err := v.StatusText(ctx)
	if err != nil {
		t.Fatalf("status stream: %v", err)
	}
	if err := v.Arm(ctx); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case st := <-texts:
		if st.Text == "" {
			t.Fatalf("empty status text")
		}
	case <-ctx.Done():
		t.Fatalf("no status text received")
	}
}

func TestCloseEndsStreams(t *testing.T) {
	v := New(0, fastOptions())
	if err := v.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	armed, err := v.Armed(context.Background())
	if err != nil {
		t.Fatalf("armed stream: %v", err)
	}
	v.Close()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-armed:
			if !ok {
				if err := v.Arm(context.Background()); !errors.Is(err, link.ErrTransport) {
					t.Fatalf("expected ErrTransport after close, got %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("stream not closed")
		}
	}
}

func TestArmDeniedBeforeReady(t *testing.T) {
	opts := fastOptions()
	opts.ReadyAfter = time.Hour
	v := connected(t, opts)
	if err := v.Arm(context.Background()); !errors.Is(err, link.ErrCommandDenied) {
		t.Fatalf("expected ErrCommandDenied, got %v", err)
	}
}
