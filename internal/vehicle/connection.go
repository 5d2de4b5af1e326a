// Package vehicle manages one vehicle's link: connection lifecycle,
// telemetry subscriptions, cached offboard setpoints and change events.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"droneswarm/internal/link"
	"droneswarm/internal/logging"
)

// DefaultConnectTimeout bounds the link handshake.
const DefaultConnectTimeout = 3 * time.Second

// State is the connection state of a vehicle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Snapshot is the last known telemetry of a vehicle. Each field is written
// independently by its own subscription.
type Snapshot struct {
	Index            int     `json:"index"`
	Endpoint         string  `json:"endpoint"`
	State            string  `json:"state"`
	StatusText       string  `json:"status_text"`
	Armed            bool    `json:"armed"`
	FlightMode       string  `json:"flight_mode"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	RelativeAltitude float64 `json:"relative_altitude"`
	AbsoluteAltitude float64 `json:"absolute_altitude"`
	Heading          float64 `json:"heading"`
}

// Setpoints holds the last setpoint issued per offboard kind. They are
// replayed before offboard is enabled.
type Setpoints struct {
	VelocityBody link.VelocityBodyYawspeed
	VelocityNED  link.VelocityNEDYaw
	Attitude     link.Attitude
	PositionNED  link.PositionNEDYaw
}

// Option configures a Connection.
type Option func(*Connection)

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// Connection is the proxy for one vehicle.
type Connection struct {
	index          int
	endpoint       string
	dial           link.Dialer
	connectTimeout time.Duration
	now            func() time.Time

	mu        sync.RWMutex
	link      link.Link
	state     State
	snap      Snapshot
	setpoints Setpoints
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	bus Bus
}

// New creates a disconnected vehicle. dial is used lazily on first connect.
func New(index int, endpoint string, dial link.Dialer, opts ...Option) *Connection {
	c := &Connection{
		index:          index,
		endpoint:       endpoint,
		dial:           dial,
		connectTimeout: DefaultConnectTimeout,
		now:            time.Now,
		snap:           Snapshot{Index: index, Endpoint: endpoint, State: Disconnected.String()},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Connection) Index() int       { return c.index }
func (c *Connection) Endpoint() string { return c.endpoint }

// State returns the connection state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns a copy of the current telemetry.
func (c *Connection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Setpoints returns the cached offboard setpoints.
func (c *Connection) Setpoints() Setpoints {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.setpoints
}

// Subscribe registers an observer for this vehicle's events.
func (c *Connection) Subscribe(o Observer) (cancel func()) {
	return c.bus.Subscribe(o)
}

func (c *Connection) logger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx).With("index", c.index)
}

func (c *Connection) event(f Field, v any) Event {
	return Event{Index: c.index, Field: f, Value: v, At: c.now().UTC()}
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.snap.State = s.String()
	c.mu.Unlock()
	c.bus.Publish(
		c.event(FieldConnectionState, s.String()),
		c.event(FieldIsConnected, s == Connected),
	)
}

// Connect establishes the link, waits for a usable position estimate and
// starts the telemetry subscriptions. It is a no-op when already connected.
// The handshake is bounded by the connect timeout; on expiry the vehicle stays
// disconnected and the returned error wraps link.ErrConnectionTimeout.
//
// Subscriptions outlive ctx's cancellation and end only on Cleanup.
func (c *Connection) Connect(ctx context.Context, address string) error {
	log := c.logger(ctx)

	c.mu.Lock()
	if c.state != Disconnected {
		state := c.state
		c.mu.Unlock()
		log.Debug("connect ignored", "state", state.String())
		return nil
	}
	if c.link == nil {
		l, err := c.dial(c.index, c.endpoint)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("dial vehicle %d at %s: %w", c.index, c.endpoint, err)
		}
		c.link = l
	}
	lk := c.link
	c.mu.Unlock()
	c.setState(Connecting)

	log.Debug("connecting", "address", address)
	cctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	err := lk.Connect(cctx, address)
	cancel()
	if err != nil {
		c.setState(Disconnected)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = link.ErrConnectionTimeout
		}
		log.Warn("connect failed", "address", address, "err", err)
		return fmt.Errorf("connect vehicle %d to %s: %w", c.index, address, err)
	}

	log.Debug("waiting for global position estimate")
	if err := c.waitHealthy(ctx, lk); err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("vehicle %d health: %w", c.index, err)
	}
	log.Info("vehicle connected", "address", address)
	c.setState(Connected)
	c.startSubscriptions(context.WithoutCancel(ctx), lk)
	return nil
}

func (c *Connection) waitHealthy(ctx context.Context, lk link.Link) error {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	health, err := lk.Health(hctx)
	if err != nil {
		return err
	}
	for h := range health {
		if h.Ready() {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("health stream ended: %w", link.ErrTransport)
}

func (c *Connection) startSubscriptions(ctx context.Context, lk link.Link) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	subscribe(c, ctx, "status_text", lk.StatusText, func(st link.StatusText) []Event {
		c.snap.StatusText = st.Text
		return []Event{c.event(FieldStatusText, st.Text)}
	})
	subscribe(c, ctx, "armed", lk.Armed, func(armed bool) []Event {
		c.snap.Armed = armed
		return []Event{c.event(FieldIsArmed, armed)}
	})
	subscribe(c, ctx, "flight_mode", lk.FlightMode, func(m link.FlightMode) []Event {
		c.snap.FlightMode = string(m)
		return []Event{c.event(FieldFlightMode, string(m))}
	})
	subscribe(c, ctx, "position", lk.Position, func(p link.Position) []Event {
		c.snap.Latitude = p.LatitudeDeg
		c.snap.Longitude = p.LongitudeDeg
		c.snap.RelativeAltitude = p.RelativeAltitudeM
		c.snap.AbsoluteAltitude = p.AbsoluteAltitudeM
		return []Event{
			c.event(FieldLatitude, p.LatitudeDeg),
			c.event(FieldLongitude, p.LongitudeDeg),
			c.event(FieldAltitude, p.RelativeAltitudeM),
			c.event(FieldAbsoluteAltitude, p.AbsoluteAltitudeM),
		}
	})
	subscribe(c, ctx, "heading", lk.Heading, func(h link.Heading) []Event {
		c.snap.Heading = h.HeadingDeg
		return []Event{c.event(FieldHeading, h.HeadingDeg)}
	})
}

// subscribe runs one telemetry stream until ctx is cancelled. apply is called
// with the connection lock held and returns the events to publish.
func subscribe[T any](c *Connection, ctx context.Context, name string, open func(context.Context) (<-chan T, error), apply func(T) []Event) {
	log := c.logger(ctx).With("stream", name)
	ch, err := open(ctx)
	if err != nil {
		log.Warn("telemetry subscription failed", "err", err)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for v := range ch {
			c.mu.Lock()
			ev := apply(v)
			c.mu.Unlock()
			c.bus.Publish(ev...)
		}
		log.Debug("telemetry subscription ended")
	}()
}

// Cleanup cancels all telemetry subscriptions, waits for them to finish and
// releases the link. It is safe to call repeatedly.
func (c *Connection) Cleanup() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	lk := c.link
	c.link = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if lk != nil {
		_ = lk.Close()
	}
	c.setState(Disconnected)
}

func (c *Connection) currentLink() (link.Link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.link == nil {
		return nil, link.ErrNotConnected
	}
	return c.link, nil
}

// Arm arms the vehicle. Failure leaves local state untouched.
func (c *Connection) Arm(ctx context.Context) error {
	lk, err := c.currentLink()
	if err == nil {
		err = lk.Arm(ctx)
	}
	if err != nil {
		return fmt.Errorf("arm vehicle %d: %w", c.index, err)
	}
	c.logger(ctx).Info("armed")
	return nil
}

// Disarm disarms the vehicle.
func (c *Connection) Disarm(ctx context.Context) error {
	lk, err := c.currentLink()
	if err == nil {
		err = lk.Disarm(ctx)
	}
	if err != nil {
		return fmt.Errorf("disarm vehicle %d: %w", c.index, err)
	}
	c.logger(ctx).Info("disarmed")
	return nil
}

// StartOffboardMode replays every cached setpoint and enables offboard. If
// the vehicle rejects offboard it is disarmed and nil is returned.
func (c *Connection) StartOffboardMode(ctx context.Context) error {
	log := c.logger(ctx)
	lk, err := c.currentLink()
	if err != nil {
		return fmt.Errorf("start offboard vehicle %d: %w", c.index, err)
	}
	sp := c.Setpoints()
	sends := []func() error{
		func() error { return lk.SetVelocityBody(ctx, sp.VelocityBody) },
		func() error { return lk.SetVelocityNED(ctx, sp.VelocityNED) },
		func() error { return lk.SetAttitude(ctx, sp.Attitude) },
		func() error { return lk.SetPositionNED(ctx, sp.PositionNED) },
	}
	for _, send := range sends {
		if err := send(); err != nil {
			return fmt.Errorf("start offboard vehicle %d: initial setpoint: %w", c.index, err)
		}
	}

	log.Info("starting offboard")
	err = lk.StartOffboard(ctx)
	if errors.Is(err, link.ErrOffboardRejected) {
		log.Warn("offboard rejected, disarming", "err", err)
		if derr := lk.Disarm(ctx); derr != nil {
			log.Error("disarm after offboard rejection failed", "err", derr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("start offboard vehicle %d: %w", c.index, err)
	}
	return nil
}

// StopOffboardMode leaves offboard. Failures are logged only.
func (c *Connection) StopOffboardMode(ctx context.Context) error {
	log := c.logger(ctx)
	lk, err := c.currentLink()
	if err == nil {
		err = lk.StopOffboard(ctx)
	}
	if err != nil {
		log.Warn("stop offboard failed", "err", err)
		return nil
	}
	log.Info("offboard stopped")
	return nil
}

// send caches a setpoint via store and then transmits it.
func (c *Connection) send(name string, store func(*Setpoints), transmit func(link.Link) error) error {
	c.mu.Lock()
	store(&c.setpoints)
	lk := c.link
	c.mu.Unlock()
	if lk == nil {
		return fmt.Errorf("%s vehicle %d: %w", name, c.index, link.ErrNotConnected)
	}
	if err := transmit(lk); err != nil {
		return fmt.Errorf("%s vehicle %d: %w", name, c.index, err)
	}
	return nil
}

// SetVelocityBody sets and transmits a body-frame velocity setpoint.
func (c *Connection) SetVelocityBody(ctx context.Context, sp link.VelocityBodyYawspeed) error {
	return c.send("set velocity body",
		func(s *Setpoints) { s.VelocityBody = sp },
		func(l link.Link) error { return l.SetVelocityBody(ctx, sp) })
}

// SetVelocityNED sets and transmits a NED velocity setpoint.
func (c *Connection) SetVelocityNED(ctx context.Context, sp link.VelocityNEDYaw) error {
	return c.send("set velocity ned",
		func(s *Setpoints) { s.VelocityNED = sp },
		func(l link.Link) error { return l.SetVelocityNED(ctx, sp) })
}

// SetAttitude sets and transmits an attitude setpoint.
func (c *Connection) SetAttitude(ctx context.Context, sp link.Attitude) error {
	return c.send("set attitude",
		func(s *Setpoints) { s.Attitude = sp },
		func(l link.Link) error { return l.SetAttitude(ctx, sp) })
}

// SetPositionNED sets and transmits a NED position setpoint.
func (c *Connection) SetPositionNED(ctx context.Context, sp link.PositionNEDYaw) error {
	return c.send("set position ned",
		func(s *Setpoints) { s.PositionNED = sp },
		func(l link.Link) error { return l.SetPositionNED(ctx, sp) })
}

// SetPositionGlobal transmits a global position setpoint with an AMSL
// altitude. It is not cached: global targets are recomputed every cycle.
func (c *Connection) SetPositionGlobal(ctx context.Context, lat, lon, alt, yaw float64) error {
	lk, err := c.currentLink()
	if err == nil {
		err = lk.SetPositionGlobal(ctx, link.PositionGlobalYaw{
			LatDeg:       lat,
			LonDeg:       lon,
			AltM:         alt,
			YawDeg:       yaw,
			AltitudeType: link.AltitudeAMSL,
		})
	}
	if err != nil {
		return fmt.Errorf("set position global vehicle %d: %w", c.index, err)
	}
	return nil
}
