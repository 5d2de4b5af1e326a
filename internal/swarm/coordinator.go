// Package swarm keeps the leader/follower roster and drives the follow loop
// that places every follower at its offset from the leader.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"droneswarm/internal/geo"
	"droneswarm/internal/logging"
	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

const (
	DefaultFrequency = 1.0
	DefaultArmDelay  = 100 * time.Millisecond
	// MinFollowPeriod bounds the follow cadence at very high frequencies.
	MinFollowPeriod = time.Millisecond
)

// ErrInvalidSwarm reports a swarm without a leader or without followers.
var ErrInvalidSwarm = errors.New("swarm: no leader or no followers")

// Vehicle is what the coordinator needs from a vehicle connection.
type Vehicle interface {
	Index() int
	Snapshot() vehicle.Snapshot
	Arm(ctx context.Context) error
	StartOffboardMode(ctx context.Context) error
	SetPositionGlobal(ctx context.Context, lat, lon, alt, yaw float64) error
}

// EventWriter handles swarm coordination events.
type EventWriter interface {
	WriteSwarmEvent(telemetry.SwarmEventRow) error
}

// Follower is a roster entry: the vehicle keeps Distance meters from the
// leader at Angle degrees relative to the leader's heading.
type Follower struct {
	Vehicle  Vehicle
	Distance float64
	Angle    float64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFrequency sets the initial follow frequency in Hz.
func WithFrequency(hz float64) Option {
	return func(c *Coordinator) {
		if hz > 0 {
			c.frequency = hz
		}
	}
}

// WithArmDelay sets the pause between arming a follower and starting offboard.
func WithArmDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.armDelay = d
		}
	}
}

// WithEventWriter records swarm events to w under sessionID.
func WithEventWriter(w EventWriter, sessionID string) Option {
	return func(c *Coordinator) {
		c.writer = w
		c.sessionID = sessionID
	}
}

// Coordinator owns the roster and the follow loop.
type Coordinator struct {
	armDelay  time.Duration
	writer    EventWriter
	sessionID string
	now       func() time.Time

	mu        sync.Mutex
	leader    Vehicle
	followers []Follower
	frequency float64
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// New creates an empty coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		armDelay:  DefaultArmDelay,
		frequency: DefaultFrequency,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetLeader replaces the leader reference.
func (c *Coordinator) SetLeader(ctx context.Context, v Vehicle) {
	c.mu.Lock()
	c.leader = v
	c.mu.Unlock()
	logging.FromContext(ctx).Info("leader set", "index", v.Index())
	c.emit(ctx, telemetry.SwarmEventLeaderSet, "")
}

// Leader returns the current leader, or nil.
func (c *Coordinator) Leader() Vehicle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

// Followers returns a copy of the roster in registration order.
func (c *Coordinator) Followers() []Follower {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Follower(nil), c.followers...)
}

func (c *Coordinator) find(v Vehicle) int {
	for i, f := range c.followers {
		if f.Vehicle == v {
			return i
		}
	}
	return -1
}

// AddFollower registers v. A vehicle already in the roster keeps its first
// offset; use UpdateFollower to change it.
func (c *Coordinator) AddFollower(ctx context.Context, v Vehicle, distance, angle float64) {
	log := logging.FromContext(ctx).With("index", v.Index())
	c.mu.Lock()
	if c.find(v) >= 0 {
		c.mu.Unlock()
		log.Debug("follower already registered")
		return
	}
	c.followers = append(c.followers, Follower{Vehicle: v, Distance: distance, Angle: angle})
	c.mu.Unlock()
	log.Info("follower added", "distance", distance, "angle", angle)
	c.emit(ctx, telemetry.SwarmEventFollowerAdded, offsetDetail(v, distance, angle))
}

// UpdateFollower changes the offset of a registered follower. Unknown
// vehicles are ignored. It reports whether v was found.
func (c *Coordinator) UpdateFollower(ctx context.Context, v Vehicle, distance, angle float64) bool {
	log := logging.FromContext(ctx).With("index", v.Index())
	c.mu.Lock()
	i := c.find(v)
	if i < 0 {
		c.mu.Unlock()
		log.Warn("update of unregistered follower ignored")
		return false
	}
	c.followers[i].Distance = distance
	c.followers[i].Angle = angle
	c.mu.Unlock()
	log.Info("follower updated", "distance", distance, "angle", angle)
	c.emit(ctx, telemetry.SwarmEventFollowerUpdated, offsetDetail(v, distance, angle))
	return true
}

// RemoveFollower drops v from the roster if present.
func (c *Coordinator) RemoveFollower(ctx context.Context, v Vehicle) {
	log := logging.FromContext(ctx).With("index", v.Index())
	c.mu.Lock()
	i := c.find(v)
	if i < 0 {
		c.mu.Unlock()
		log.Debug("remove of unregistered follower ignored")
		return
	}
	c.followers = append(c.followers[:i], c.followers[i+1:]...)
	c.mu.Unlock()
	log.Info("follower removed")
	c.emit(ctx, telemetry.SwarmEventFollowerRemoved, strconv.Itoa(v.Index()))
}

// Validate reports ErrInvalidSwarm when there is no leader or no follower.
func (c *Coordinator) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Coordinator) validateLocked() error {
	if c.leader == nil || len(c.followers) == 0 {
		return ErrInvalidSwarm
	}
	return nil
}

// ReadyToFollow arms every follower and puts it in offboard mode, one after
// the other. A follower that fails is logged and skipped.
func (c *Coordinator) ReadyToFollow(ctx context.Context) error {
	log := logging.FromContext(ctx)
	if err := c.Validate(); err != nil {
		log.Warn("ready to follow skipped", "err", err)
		return nil
	}
	for _, f := range c.Followers() {
		flog := log.With("index", f.Vehicle.Index())
		if err := f.Vehicle.Arm(ctx); err != nil {
			flog.Error("arm follower failed", "err", err)
			continue
		}
		select {
		case <-time.After(c.armDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := f.Vehicle.StartOffboardMode(ctx); err != nil {
			flog.Error("start offboard on follower failed", "err", err)
		}
	}
	c.emit(ctx, telemetry.SwarmEventReadyToFollow, "")
	return nil
}

// SetFollowFrequency changes the follow cadence. It takes effect after the
// current wait. Non-positive values are rejected.
func (c *Coordinator) SetFollowFrequency(ctx context.Context, hz float64) error {
	if !(hz > 0) {
		return fmt.Errorf("follow frequency %v: must be positive", hz)
	}
	c.mu.Lock()
	c.frequency = hz
	c.mu.Unlock()
	logging.FromContext(ctx).Info("follow frequency set", "hz", hz)
	c.emit(ctx, telemetry.SwarmEventFrequencyChanged, strconv.FormatFloat(hz, 'f', -1, 64))
	return nil
}

// FollowFrequency returns the current cadence in Hz.
func (c *Coordinator) FollowFrequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency
}

// Following reports whether the follow loop is active.
func (c *Coordinator) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// RunTaskFollow starts the follow loop in the background. It does nothing
// when the loop already runs or the swarm is invalid. The loop ends on
// StopFollow or when ctx is cancelled.
func (c *Coordinator) RunTaskFollow(ctx context.Context) {
	log := logging.FromContext(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		log.Debug("follow loop already running")
		return
	}
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		log.Warn("follow not started", "err", err)
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.loopDone = done
	c.mu.Unlock()

	log.Info("follow loop started")
	c.emit(ctx, telemetry.SwarmEventFollowStarted, "")
	go c.followLoop(loopCtx, done)
}

// StopFollow cancels the follow loop and waits for it to exit. It is a no-op
// when no loop runs.
func (c *Coordinator) StopFollow(ctx context.Context) {
	c.mu.Lock()
	cancel, done := c.cancel, c.loopDone
	c.cancel, c.loopDone = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.FromContext(ctx).Info("follow loop stopped")
	c.emit(ctx, telemetry.SwarmEventFollowStopped, "")
}

// GoToLeader runs a single follow cycle.
func (c *Coordinator) GoToLeader(ctx context.Context) error {
	if err := c.Validate(); err != nil {
		logging.FromContext(ctx).Warn("go to leader skipped", "err", err)
		return nil
	}
	c.followCycle(ctx)
	return nil
}

func (c *Coordinator) followLoop(ctx context.Context, done chan struct{}) {
	log := logging.FromContext(ctx)
	defer func() {
		c.mu.Lock()
		// Cancelled by the parent rather than StopFollow: release the handle.
		if c.loopDone == done {
			c.cancel, c.loopDone = nil, nil
		}
		c.mu.Unlock()
		close(done)
	}()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for {
		c.followCycle(ctx)
		timer.Reset(period(c.FollowFrequency()))
		select {
		case <-ctx.Done():
			log.Debug("follow loop cancelled")
			return
		case <-timer.C:
		}
	}
}

// period converts hz to the wait between cycles, never shorter than
// MinFollowPeriod.
func period(hz float64) time.Duration {
	p := float64(time.Second) / hz
	if p < float64(MinFollowPeriod) {
		return MinFollowPeriod
	}
	return time.Duration(p)
}

// followCycle sends each follower its target derived from the leader's last
// known position and heading.
func (c *Coordinator) followCycle(ctx context.Context) {
	log := logging.FromContext(ctx)
	c.mu.Lock()
	leader := c.leader
	followers := append([]Follower(nil), c.followers...)
	c.mu.Unlock()
	if leader == nil {
		return
	}
	snap := leader.Snapshot()
	for _, f := range followers {
		if ctx.Err() != nil {
			return
		}
		lat, lon := geo.Project(snap.Latitude, snap.Longitude, snap.Heading, f.Distance, f.Angle)
		if err := f.Vehicle.SetPositionGlobal(ctx, lat, lon, snap.AbsoluteAltitude, snap.Heading); err != nil {
			log.Warn("follower setpoint failed", "index", f.Vehicle.Index(), "err", err)
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, eventType, detail string) {
	if c.writer == nil {
		return
	}
	c.mu.Lock()
	leader := telemetry.NoLeader
	if c.leader != nil {
		leader = c.leader.Index()
	}
	ids := make([]int, len(c.followers))
	for i, f := range c.followers {
		ids[i] = f.Vehicle.Index()
	}
	c.mu.Unlock()
	row := telemetry.SwarmEventRow{
		SessionID: c.sessionID,
		EventType: eventType,
		Leader:    leader,
		Followers: ids,
		Detail:    detail,
		Timestamp: c.now().UTC(),
	}
	if err := c.writer.WriteSwarmEvent(row); err != nil {
		logging.FromContext(ctx).Error("swarm event write failed", "err", err)
	}
}

func offsetDetail(v Vehicle, distance, angle float64) string {
	return fmt.Sprintf("index=%d distance=%g angle=%g", v.Index(), distance, angle)
}
