// Package fleet turns decoded commands into work items on the command
// executor, bound to the vehicle table and the swarm coordinator.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"droneswarm/internal/command"
	"droneswarm/internal/executor"
	"droneswarm/internal/logging"
	"droneswarm/internal/swarm"
	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

// ErrUnknownVehicle reports a command addressed to an index not in the table.
var ErrUnknownVehicle = errors.New("fleet: unknown vehicle")

// CommandWriter records accepted commands.
type CommandWriter interface {
	WriteCommand(telemetry.CommandRow) error
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithCommandWriter logs every accepted command to w under sessionID.
func WithCommandWriter(w CommandWriter, sessionID string) Option {
	return func(f *Fleet) {
		f.writer = w
		f.sessionID = sessionID
	}
}

// Fleet owns the vehicle table and routes commands.
type Fleet struct {
	vehicles  map[int]*vehicle.Connection
	order     []int
	exec      *executor.Executor
	coord     *swarm.Coordinator
	writer    CommandWriter
	sessionID string
	now       func() time.Time

	closeOnce sync.Once
}

// New builds a fleet. Vehicle indices must be unique.
func New(vehicles []*vehicle.Connection, exec *executor.Executor, coord *swarm.Coordinator, opts ...Option) (*Fleet, error) {
	f := &Fleet{
		vehicles: make(map[int]*vehicle.Connection, len(vehicles)),
		exec:     exec,
		coord:    coord,
		now:      time.Now,
	}
	for _, v := range vehicles {
		if _, dup := f.vehicles[v.Index()]; dup {
			return nil, fmt.Errorf("duplicate vehicle index %d", v.Index())
		}
		f.vehicles[v.Index()] = v
		f.order = append(f.order, v.Index())
	}
	sort.Ints(f.order)
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Vehicle returns the vehicle at index.
func (f *Fleet) Vehicle(index int) (*vehicle.Connection, error) {
	v, ok := f.vehicles[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVehicle, index)
	}
	return v, nil
}

// Vehicles returns the table ordered by index.
func (f *Fleet) Vehicles() []*vehicle.Connection {
	out := make([]*vehicle.Connection, 0, len(f.order))
	for _, i := range f.order {
		out = append(out, f.vehicles[i])
	}
	return out
}

func (f *Fleet) Coordinator() *swarm.Coordinator { return f.coord }
func (f *Fleet) Executor() *executor.Executor    { return f.exec }

// Subscribe registers o on every vehicle.
func (f *Fleet) Subscribe(o vehicle.Observer) (cancel func()) {
	cancels := make([]func(), 0, len(f.vehicles))
	for _, v := range f.Vehicles() {
		cancels = append(cancels, v.Subscribe(o))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Address builds the link address for ip and port.
func Address(ip, port string) string {
	return "udp://" + net.JoinHostPort(ip, port)
}

// Dispatch validates c and submits it as one work item. Source names the
// channel the command arrived on and is only recorded.
func (f *Fleet) Dispatch(ctx context.Context, source string, c command.Command) error {
	log := logging.FromContext(ctx).With("op", c.Name(), "source", source)
	var v *vehicle.Connection
	if i, ok := command.VehicleIndex(c); ok {
		var err error
		if v, err = f.Vehicle(i); err != nil {
			log.Warn("command rejected", "err", err)
			return err
		}
	}

	var err error
	switch c := c.(type) {
	case command.Connect:
		addr := Address(c.IP, c.Port)
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return v.Connect(ctx, addr)
		})
	case command.SetLeader:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.SetLeader(ctx, v)
			return nil
		})
	case command.AddFollower:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.AddFollower(ctx, v, c.Distance, c.Angle)
			return nil
		})
	case command.UpdateFollower:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.UpdateFollower(ctx, v, c.Distance, c.Angle)
			return nil
		})
	case command.RemoveFollower:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.RemoveFollower(ctx, v)
			return nil
		})
	case command.ReadyToFollow:
		err = f.exec.Submit(c.Name(), f.coord.ReadyToFollow)
	case command.StartFollow:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.RunTaskFollow(ctx)
			return nil
		})
	case command.StopFollow:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.StopFollow(ctx)
			return nil
		})
	case command.GoToLeader:
		err = f.exec.Submit(c.Name(), f.coord.GoToLeader)
	case command.SetFollowFrequency:
		if !(c.Hz > 0) {
			return fmt.Errorf("%w: follow frequency must be positive", command.ErrBadArgs)
		}
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return f.coord.SetFollowFrequency(ctx, c.Hz)
		})
	case command.Arm:
		err = f.exec.Submit(c.Name(), v.Arm)
	case command.StartOffboard:
		err = f.exec.Submit(c.Name(), v.StartOffboardMode)
	case command.StopOffboard:
		err = f.exec.Submit(c.Name(), v.StopOffboardMode)
	case command.SetVelocityBody:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return v.SetVelocityBody(ctx, c.Setpoint)
		})
	case command.SetVelocityNED:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return v.SetVelocityNED(ctx, c.Setpoint)
		})
	case command.SetAttitude:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return v.SetAttitude(ctx, c.Setpoint)
		})
	case command.SetPositionNED:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			return v.SetPositionNED(ctx, c.Setpoint)
		})
	case command.Close:
		err = f.exec.Submit(c.Name(), func(ctx context.Context) error {
			f.coord.StopFollow(ctx)
			f.Cleanup()
			return nil
		})
		if err == nil {
			f.exec.SubmitFinish()
		}
	default:
		return fmt.Errorf("%w: %T", command.ErrUnknownCommand, c)
	}
	if err != nil {
		log.Warn("command rejected", "err", err)
		return err
	}
	log.Debug("command queued")
	f.record(ctx, source, c)
	return nil
}

func (f *Fleet) record(ctx context.Context, source string, c command.Command) {
	if f.writer == nil {
		return
	}
	b, err := command.Encode(c)
	if err != nil {
		logging.FromContext(ctx).Error("encode command for log failed", "err", err)
		return
	}
	row := telemetry.CommandRow{
		SessionID: f.sessionID,
		Source:    source,
		Command:   string(b),
		Timestamp: f.now().UTC(),
	}
	if err := f.writer.WriteCommand(row); err != nil {
		logging.FromContext(ctx).Error("command log write failed", "err", err)
	}
}

// Cleanup tears down every vehicle connection. It is safe to call more than
// once.
func (f *Fleet) Cleanup() {
	var wg sync.WaitGroup
	for _, v := range f.vehicles {
		wg.Add(1)
		go func(v *vehicle.Connection) {
			defer wg.Done()
			v.Cleanup()
		}(v)
	}
	wg.Wait()
}

// Shutdown stops the follow loop and releases every vehicle once.
func (f *Fleet) Shutdown(ctx context.Context) {
	f.closeOnce.Do(func() {
		f.coord.StopFollow(ctx)
		f.Cleanup()
	})
}

// FollowerState is a roster entry as exposed to clients.
type FollowerState struct {
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
	Angle    float64 `json:"angle"`
}

// State is a point-in-time view of the fleet and swarm.
type State struct {
	Vehicles   []vehicle.Snapshot `json:"vehicles"`
	Leader     int                `json:"leader"`
	Followers  []FollowerState    `json:"followers"`
	Following  bool               `json:"following"`
	FollowHz   float64            `json:"follow_hz"`
	Executor   string             `json:"executor"`
	PendingOps int                `json:"pending_ops"`
}

// State returns a snapshot of every vehicle and the swarm roster.
func (f *Fleet) State() State {
	s := State{
		Leader:     telemetry.NoLeader,
		Following:  f.coord.Following(),
		FollowHz:   f.coord.FollowFrequency(),
		Executor:   f.exec.State().String(),
		PendingOps: f.exec.Pending(),
	}
	for _, v := range f.Vehicles() {
		s.Vehicles = append(s.Vehicles, v.Snapshot())
	}
	if l := f.coord.Leader(); l != nil {
		s.Leader = l.Index()
	}
	for _, fl := range f.coord.Followers() {
		s.Followers = append(s.Followers, FollowerState{Index: fl.Vehicle.Index(), Distance: fl.Distance, Angle: fl.Angle})
	}
	return s
}
