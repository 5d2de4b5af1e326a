// Package simlink implements link.Link with an in-process kinematic vehicle.
// It stands in for a real autopilot when running the swarm without hardware
// and in tests.
package simlink

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"droneswarm/internal/geo"
	"droneswarm/internal/link"
)

// Options tune the simulated vehicle.
type Options struct {
	OriginLat     float64
	OriginLon     float64
	OriginAltAMSL float64
	// SpacingM offsets vehicle i by i*SpacingM meters east of the origin.
	SpacingM float64
	// Tick is the physics and telemetry interval.
	Tick       time.Duration
	MaxSpeedMS float64
	// ReadyAfter delays the health report that unblocks connect.
	ReadyAfter   time.Duration
	ConnectDelay time.Duration
	// Unreachable makes Connect block until its context ends.
	Unreachable    bool
	RejectOffboard bool
}

// DefaultOptions mirror a PX4 SITL vehicle parked at the Zurich test field.
func DefaultOptions() Options {
	return Options{
		OriginLat:     47.397742,
		OriginLon:     8.545594,
		OriginAltAMSL: 488,
		SpacingM:      5,
		Tick:          100 * time.Millisecond,
		MaxSpeedMS:    10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tick <= 0 {
		o.Tick = d.Tick
	}
	if o.MaxSpeedMS <= 0 {
		o.MaxSpeedMS = d.MaxSpeedMS
	}
	return o
}

type setpointKind int

const (
	spNone setpointKind = iota
	spVelocityBody
	spVelocityNED
	spAttitude
	spPositionNED
	spPositionGlobal
)

// Counters tallies requests received by the vehicle.
type Counters struct {
	Arm             int
	Disarm          int
	StartOffboard   int
	StopOffboard    int
	SetpointsSent   int
	GlobalSetpoints int
	LastGlobal      link.PositionGlobalYaw
}

// Vehicle is a simulated vehicle implementing link.Link.
type Vehicle struct {
	opts  Options
	index int

	mu          sync.Mutex
	connected   bool
	closed      bool
	connectedAt time.Time
	stop        chan struct{}
	wg          sync.WaitGroup

	homeLat, homeLon, homeAlt float64
	lat, lon, alt, heading    float64
	armed                     bool
	offboard                  bool
	mode                      link.FlightMode

	kind       setpointKind
	velBody    link.VelocityBodyYawspeed
	velNED     link.VelocityNEDYaw
	attitude   link.Attitude
	posNED     link.PositionNEDYaw
	posGlobal  link.PositionGlobalYaw
	counters   Counters
	statusSubs map[chan link.StatusText]struct{}
}

// New creates the simulated vehicle for a swarm index.
func New(index int, opts Options) *Vehicle {
	opts = opts.withDefaults()
	lat, lon := geo.Project(opts.OriginLat, opts.OriginLon, 90, float64(index)*opts.SpacingM, 0)
	return &Vehicle{
		opts:       opts,
		index:      index,
		homeLat:    lat,
		homeLon:    lon,
		homeAlt:    opts.OriginAltAMSL,
		lat:        lat,
		lon:        lon,
		alt:        opts.OriginAltAMSL,
		mode:       link.FlightModeHold,
		statusSubs: make(map[chan link.StatusText]struct{}),
	}
}

// Dialer returns a link.Dialer producing simulated vehicles.
func Dialer(opts Options) link.Dialer {
	return func(index int, endpoint string) (link.Link, error) {
		return New(index, opts), nil
	}
}

var _ link.Link = (*Vehicle)(nil)

// Connect brings the simulated link up and starts the physics loop.
func (v *Vehicle) Connect(ctx context.Context, address string) error {
	if v.opts.Unreachable {
		<-ctx.Done()
		return ctx.Err()
	}
	if v.opts.ConnectDelay > 0 {
		select {
		case <-time.After(v.opts.ConnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("connect %s: %w", address, link.ErrTransport)
	}
	if v.connected {
		return nil
	}
	v.connected = true
	v.connectedAt = time.Now()
	v.stop = make(chan struct{})
	v.wg.Add(1)
	go v.run(v.stop)
	return nil
}

// Close stops the physics loop and ends all streams.
func (v *Vehicle) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.connected = false
	if v.stop != nil {
		close(v.stop)
	}
	v.mu.Unlock()
	v.wg.Wait()
	return nil
}

// Counters returns a copy of the request tallies.
func (v *Vehicle) Counters() Counters {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counters
}

// Teleport moves the vehicle without physics.
func (v *Vehicle) Teleport(lat, lon, altAMSL, heading float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lat, v.lon, v.alt, v.heading = lat, lon, altAMSL, geo.NormalizeHeading(heading)
}

func (v *Vehicle) run(stop <-chan struct{}) {
	defer v.wg.Done()
	ticker := time.NewTicker(v.opts.Tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			v.step(dt)
		}
	}
}

// step integrates the active setpoint over dt seconds.
func (v *Vehicle) step(dt float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed || !v.offboard {
		return
	}
	switch v.kind {
	case spPositionGlobal:
		v.moveToward(v.posGlobal.LatDeg, v.posGlobal.LonDeg, v.globalTargetAlt(), dt)
		v.heading = geo.NormalizeHeading(v.posGlobal.YawDeg)
	case spPositionNED:
		dist := math.Hypot(v.posNED.NorthM, v.posNED.EastM)
		bearing := math.Atan2(v.posNED.EastM, v.posNED.NorthM)
		lat, lon := geo.Destination(v.homeLat, v.homeLon, bearing, dist)
		v.moveToward(lat, lon, v.homeAlt-v.posNED.DownM, dt)
		v.heading = geo.NormalizeHeading(v.posNED.YawDeg)
	case spVelocityNED:
		v.moveBy(v.velNED.NorthMS, v.velNED.EastMS, v.velNED.DownMS, dt)
		v.heading = geo.NormalizeHeading(v.velNED.YawDeg)
	case spVelocityBody:
		h := v.heading * math.Pi / 180
		north := v.velBody.ForwardMS*math.Cos(h) - v.velBody.RightMS*math.Sin(h)
		east := v.velBody.ForwardMS*math.Sin(h) + v.velBody.RightMS*math.Cos(h)
		v.moveBy(north, east, v.velBody.DownMS, dt)
		v.heading = geo.NormalizeHeading(v.heading + v.velBody.YawspeedDegS*dt)
	case spAttitude:
		v.heading = geo.NormalizeHeading(v.attitude.YawDeg)
	}
}

func (v *Vehicle) globalTargetAlt() float64 {
	if v.posGlobal.AltitudeType == link.AltitudeRelativeToHome {
		return v.homeAlt + v.posGlobal.AltM
	}
	return v.posGlobal.AltM
}

func (v *Vehicle) moveToward(lat, lon, alt, dt float64) {
	maxStep := v.opts.MaxSpeedMS * dt
	dist := geo.Distance(v.lat, v.lon, lat, lon)
	if dist <= maxStep {
		v.lat, v.lon = lat, lon
	} else {
		bearing := geo.Bearing(v.lat, v.lon, lat, lon) * math.Pi / 180
		v.lat, v.lon = geo.Destination(v.lat, v.lon, bearing, maxStep)
	}
	dAlt := alt - v.alt
	if math.Abs(dAlt) <= maxStep {
		v.alt = alt
	} else {
		v.alt += math.Copysign(maxStep, dAlt)
	}
}

func (v *Vehicle) moveBy(north, east, down, dt float64) {
	speed := math.Min(math.Hypot(north, east), v.opts.MaxSpeedMS)
	if speed > 0 {
		v.lat, v.lon = geo.Destination(v.lat, v.lon, math.Atan2(east, north), speed*dt)
	}
	v.alt -= down * dt
}

func (v *Vehicle) statusLocked(text string) {
	st := link.StatusText{Severity: "INFO", Text: text}
	for ch := range v.statusSubs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (v *Vehicle) ready() error {
	if v.closed {
		return link.ErrTransport
	}
	if !v.connected {
		return link.ErrNotConnected
	}
	return nil
}

// Arm arms the motors once health is good.
func (v *Vehicle) Arm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters.Arm++
	if err := v.ready(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if time.Since(v.connectedAt) < v.opts.ReadyAfter {
		return fmt.Errorf("arm: no position estimate: %w", link.ErrCommandDenied)
	}
	v.armed = true
	v.statusLocked("Armed by external command")
	return nil
}

// Disarm disarms the motors and leaves offboard.
func (v *Vehicle) Disarm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters.Disarm++
	if err := v.ready(); err != nil {
		return fmt.Errorf("disarm: %w", err)
	}
	v.armed = false
	v.offboard = false
	v.mode = link.FlightModeHold
	v.statusLocked("Disarmed by external command")
	return nil
}

// StartOffboard switches to offboard. A setpoint must already have been sent.
func (v *Vehicle) StartOffboard(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters.StartOffboard++
	if err := v.ready(); err != nil {
		return fmt.Errorf("start offboard: %w", err)
	}
	if v.opts.RejectOffboard || v.kind == spNone {
		return fmt.Errorf("start offboard: no setpoint set: %w", link.ErrOffboardRejected)
	}
	v.offboard = true
	v.mode = link.FlightModeOffboard
	v.statusLocked("Offboard started")
	return nil
}

// StopOffboard returns to hold.
func (v *Vehicle) StopOffboard(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters.StopOffboard++
	if err := v.ready(); err != nil {
		return fmt.Errorf("stop offboard: %w", err)
	}
	if !v.offboard {
		return fmt.Errorf("stop offboard: not active: %w", link.ErrOffboardRejected)
	}
	v.offboard = false
	v.mode = link.FlightModeHold
	v.statusLocked("Offboard stopped")
	return nil
}

func (v *Vehicle) setpoint(name string, apply func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ready(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	v.counters.SetpointsSent++
	apply()
	return nil
}

func (v *Vehicle) SetVelocityBody(ctx context.Context, sp link.VelocityBodyYawspeed) error {
	return v.setpoint("set velocity body", func() { v.kind, v.velBody = spVelocityBody, sp })
}

func (v *Vehicle) SetVelocityNED(ctx context.Context, sp link.VelocityNEDYaw) error {
	return v.setpoint("set velocity ned", func() { v.kind, v.velNED = spVelocityNED, sp })
}

func (v *Vehicle) SetAttitude(ctx context.Context, sp link.Attitude) error {
	return v.setpoint("set attitude", func() { v.kind, v.attitude = spAttitude, sp })
}

func (v *Vehicle) SetPositionNED(ctx context.Context, sp link.PositionNEDYaw) error {
	return v.setpoint("set position ned", func() { v.kind, v.posNED = spPositionNED, sp })
}

func (v *Vehicle) SetPositionGlobal(ctx context.Context, sp link.PositionGlobalYaw) error {
	return v.setpoint("set position global", func() {
		v.kind, v.posGlobal = spPositionGlobal, sp
		v.counters.GlobalSetpoints++
		v.counters.LastGlobal = sp
	})
}
