package vehicle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"droneswarm/internal/link"
	"droneswarm/internal/link/simlink"
)

// fakeLink records requests and serves telemetry from test-controlled channels.
type fakeLink struct {
	mu         sync.Mutex
	calls      []string
	connectErr error
	offboard   error
	sendErr    error
	global     []link.PositionGlobalYaw
	closed     int

	position chan link.Position
	heading  chan link.Heading
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		position: make(chan link.Position),
		heading:  make(chan link.Heading),
	}
}

func (f *fakeLink) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeLink) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLink) count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeLink) Connect(ctx context.Context, address string) error {
	f.record("connect")
	if f.connectErr != nil {
		return f.connectErr
	}
	return nil
}

func (f *fakeLink) Health(ctx context.Context) (<-chan link.Health, error) {
	ch := make(chan link.Health, 2)
	ch <- link.Health{}
	ch <- link.Health{GlobalPositionOK: true, HomePositionOK: true}
	close(ch)
	return ch, nil
}

// forward relays src into a fresh channel that closes when ctx ends.
func forward[T any](ctx context.Context, src chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-src:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func idle[T any](ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}

func (f *fakeLink) StatusText(ctx context.Context) (<-chan link.StatusText, error) {
	return idle[link.StatusText](ctx), nil
}
func (f *fakeLink) Armed(ctx context.Context) (<-chan bool, error) { return idle[bool](ctx), nil }
func (f *fakeLink) FlightMode(ctx context.Context) (<-chan link.FlightMode, error) {
	return idle[link.FlightMode](ctx), nil
}
func (f *fakeLink) Position(ctx context.Context) (<-chan link.Position, error) {
	return forward(ctx, f.position), nil
}
func (f *fakeLink) Heading(ctx context.Context) (<-chan link.Heading, error) {
	return forward(ctx, f.heading), nil
}

func (f *fakeLink) Arm(ctx context.Context) error    { f.record("arm"); return nil }
func (f *fakeLink) Disarm(ctx context.Context) error { f.record("disarm"); return nil }
func (f *fakeLink) StartOffboard(ctx context.Context) error {
	f.record("start_offboard")
	return f.offboard
}
func (f *fakeLink) StopOffboard(ctx context.Context) error {
	f.record("stop_offboard")
	return f.offboard
}
func (f *fakeLink) SetVelocityBody(ctx context.Context, sp link.VelocityBodyYawspeed) error {
	f.record("velocity_body")
	return f.sendErr
}
func (f *fakeLink) SetVelocityNED(ctx context.Context, sp link.VelocityNEDYaw) error {
	f.record("velocity_ned")
	return f.sendErr
}
func (f *fakeLink) SetAttitude(ctx context.Context, sp link.Attitude) error {
	f.record("attitude")
	return f.sendErr
}
func (f *fakeLink) SetPositionNED(ctx context.Context, sp link.PositionNEDYaw) error {
	f.record("position_ned")
	return f.sendErr
}
func (f *fakeLink) SetPositionGlobal(ctx context.Context, sp link.PositionGlobalYaw) error {
	f.mu.Lock()
	f.global = append(f.global, sp)
	f.mu.Unlock()
	f.record("position_global")
	return f.sendErr
}
func (f *fakeLink) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func dialFake(f *fakeLink) link.Dialer {
	return func(int, string) (link.Link, error) { return f, nil }
}

func connectedFake(t *testing.T, f *fakeLink) *Connection {
	t.Helper()
	c := New(1, "udp://:14541", dialFake(f))
	if err := c.Connect(context.Background(), "udp://:14541"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Cleanup)
	return c
}

func TestConnectTransitionsAndEvents(t *testing.T) {
	f := newFakeLink()
	c := New(1, "udp://:14541", dialFake(f))
	var mu sync.Mutex
	var states []any
	c.Subscribe(func(e Event) {
		if e.Field == FieldConnectionState {
			mu.Lock()
			states = append(states, e.Value)
			mu.Unlock()
		}
	})
	if err := c.Connect(context.Background(), "udp://:14541"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Cleanup()
	if c.State() != Connected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if err := c.Connect(context.Background(), "udp://:14541"); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if n := f.count("connect"); n != 1 {
		t.Fatalf("expected one link connect, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != "connecting" || states[1] != "connected" {
		t.Fatalf("unexpected state events %v", states)
	}
}

func TestConnectTimeoutLeavesDisconnected(t *testing.T) {
	opts := simlink.DefaultOptions()
	opts.Unreachable = true
	c := New(0, "udp://:14540", simlink.Dialer(opts), WithConnectTimeout(20*time.Millisecond))
	err := c.Connect(context.Background(), "udp://:14540")
	if !errors.Is(err, link.ErrConnectionTimeout) {
		t.Fatalf("expected ErrConnectionTimeout, got %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected disconnected after timeout, got %s", c.State())
	}
	c.Cleanup()
}

func TestTelemetryUpdatesSnapshot(t *testing.T) {
	f := newFakeLink()
	c := connectedFake(t, f)
	got := make(chan Event, 16)
	c.Subscribe(func(e Event) { got <- e })

	f.position <- link.Position{LatitudeDeg: 47.1, LongitudeDeg: 8.2, AbsoluteAltitudeM: 500, RelativeAltitudeM: 12}
	f.heading <- link.Heading{HeadingDeg: 90}

	want := map[Field]bool{FieldLatitude: true, FieldLongitude: true, FieldAltitude: true, FieldAbsoluteAltitude: true, FieldHeading: true}
	deadline := time.After(time.Second)
	for len(want) > 0 {
		select {
		case e := <-got:
			delete(want, e.Field)
		case <-deadline:
			t.Fatalf("missing events %v", want)
		}
	}
	s := c.Snapshot()
	if s.Latitude != 47.1 || s.Longitude != 8.2 || s.AbsoluteAltitude != 500 || s.Heading != 90 {
		t.Fatalf("unexpected snapshot %+v", s)
	}

	// Every write notifies, repeated values included.
	for i := 0; i < 3; i++ {
		f.heading <- link.Heading{HeadingDeg: 90}
	}
	for i := 0; i < 3; i++ {
		select {
		case e := <-got:
			if e.Field != FieldHeading || e.Value != 90.0 {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("heading write %d produced no event", i+1)
		}
	}
	select {
	case e := <-got:
		t.Fatalf("unexpected extra event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestOffboardRejectedDisarmsOnce(t *testing.T) {
	f := newFakeLink()
	f.offboard = link.ErrOffboardRejected
	c := connectedFake(t, f)
	if err := c.StartOffboardMode(context.Background()); err != nil {
		t.Fatalf("expected nil on rejection, got %v", err)
	}
	if n := f.count("disarm"); n != 1 {
		t.Fatalf("expected exactly one disarm, got %d", n)
	}
}

func TestStartOffboardReplaysSetpointsInOrder(t *testing.T) {
	f := newFakeLink()
	c := connectedFake(t, f)
	if err := c.StartOffboardMode(context.Background()); err != nil {
		t.Fatalf("start offboard: %v", err)
	}
	calls := f.Calls()
	want := []string{"velocity_body", "velocity_ned", "attitude", "position_ned", "start_offboard"}
	tail := calls[len(calls)-len(want):]
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("unexpected call order %v", calls)
		}
	}
}

func TestStopOffboardSwallowsFailure(t *testing.T) {
	f := newFakeLink()
	f.offboard = link.ErrOffboardRejected
	c := connectedFake(t, f)
	if err := c.StopOffboardMode(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestSettersCacheBeforeTransmit(t *testing.T) {
	f := newFakeLink()
	f.sendErr = link.ErrTransport
	c := connectedFake(t, f)
	sp := link.VelocityNEDYaw{NorthMS: 1, EastMS: 2, YawDeg: 45}
	if err := c.SetVelocityNED(context.Background(), sp); !errors.Is(err, link.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := c.Setpoints().VelocityNED; got != sp {
		t.Fatalf("setpoint not cached: %+v", got)
	}
}

func TestSetPositionGlobalUsesAMSL(t *testing.T) {
	f := newFakeLink()
	c := connectedFake(t, f)
	if err := c.SetPositionGlobal(context.Background(), 47, 8, 510, 30); err != nil {
		t.Fatalf("set position global: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.global) != 1 || f.global[0].AltitudeType != link.AltitudeAMSL || f.global[0].AltM != 510 {
		t.Fatalf("unexpected global setpoints %+v", f.global)
	}
}

func TestCleanupIdempotent(t *testing.T) {
	f := newFakeLink()
	c := New(1, "udp://:14541", dialFake(f))
	if err := c.Connect(context.Background(), "udp://:14541"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Cleanup()
	c.Cleanup()
	if c.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
	if f.closed != 1 {
		t.Fatalf("expected link closed once, got %d", f.closed)
	}
	if err := c.Arm(context.Background()); !errors.Is(err, link.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after cleanup, got %v", err)
	}
}

func TestSimlinkRoundTrip(t *testing.T) {
	opts := simlink.DefaultOptions()
	opts.Tick = 5 * time.Millisecond
	c := New(2, "udp://:14542", simlink.Dialer(opts))
	if err := c.Connect(context.Background(), "udp://:14542"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Cleanup()
	deadline := time.Now().Add(time.Second)
	for c.Snapshot().Latitude == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no position telemetry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Arm(context.Background()); err != nil {
		t.Fatalf("arm: %v", err)
	}
}
