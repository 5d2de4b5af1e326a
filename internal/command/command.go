// Package command defines the closed set of operator commands and their wire
// form: one JSON object {"func": name, "args": [...]} per message.
package command

import "droneswarm/internal/link"

// Wire names.
const (
	NameConnect            = "connect"
	NameSetLeader          = "setLeader"
	NameAddFollower        = "addFollower"
	NameUpdateFollower     = "updateFollower"
	NameRemoveFollower     = "removeFollower"
	NameReadyToFollow      = "readyToFollow"
	NameStartFollow        = "followLeader"
	NameStopFollow         = "stopFollow"
	NameGoToLeader         = "goToLeader"
	NameSetFollowFrequency = "setFollowFrequency"
	NameArm                = "arm"
	NameStartOffboard      = "startOffboardMode"
	NameStopOffboard       = "stopOffboardMode"
	NameSetVelocityBody    = "setVelocityBody"
	NameSetVelocityNED     = "setVelocityNED"
	NameSetAttitude        = "setAttitude"
	NameSetPositionNED     = "setPositionNED"
	NameClose              = "closeServer"
)

// Command is one operator request. The set of implementations is closed.
type Command interface {
	Name() string
	args() []any
}

// Connect attaches vehicle Index to udp://IP:Port.
type Connect struct {
	Index int
	IP    string
	Port  string
}

type SetLeader struct{ Index int }

// AddFollower registers a follower at Distance meters and Angle degrees
// relative to the leader's heading.
type AddFollower struct {
	Index    int
	Distance float64
	Angle    float64
}

// UpdateFollower changes the offset of a registered follower.
type UpdateFollower struct {
	Index    int
	Distance float64
	Angle    float64
}

type RemoveFollower struct{ Index int }

type ReadyToFollow struct{}

// StartFollow starts the follow loop.
type StartFollow struct{}

type StopFollow struct{}

// GoToLeader runs one follow cycle.
type GoToLeader struct{}

type SetFollowFrequency struct{ Hz float64 }

type Arm struct{ Index int }

type StartOffboard struct{ Index int }

type StopOffboard struct{ Index int }

type SetVelocityBody struct {
	Index    int
	Setpoint link.VelocityBodyYawspeed
}

type SetVelocityNED struct {
	Index    int
	Setpoint link.VelocityNEDYaw
}

type SetAttitude struct {
	Index    int
	Setpoint link.Attitude
}

type SetPositionNED struct {
	Index    int
	Setpoint link.PositionNEDYaw
}

// Close cleans up every vehicle and stops the command worker.
type Close struct{}

func (Connect) Name() string            { return NameConnect }
func (SetLeader) Name() string          { return NameSetLeader }
func (AddFollower) Name() string        { return NameAddFollower }
func (UpdateFollower) Name() string     { return NameUpdateFollower }
func (RemoveFollower) Name() string     { return NameRemoveFollower }
func (ReadyToFollow) Name() string      { return NameReadyToFollow }
func (StartFollow) Name() string        { return NameStartFollow }
func (StopFollow) Name() string         { return NameStopFollow }
func (GoToLeader) Name() string         { return NameGoToLeader }
func (SetFollowFrequency) Name() string { return NameSetFollowFrequency }
func (Arm) Name() string                { return NameArm }
func (StartOffboard) Name() string      { return NameStartOffboard }
func (StopOffboard) Name() string       { return NameStopOffboard }
func (SetVelocityBody) Name() string    { return NameSetVelocityBody }
func (SetVelocityNED) Name() string     { return NameSetVelocityNED }
func (SetAttitude) Name() string        { return NameSetAttitude }
func (SetPositionNED) Name() string     { return NameSetPositionNED }
func (Close) Name() string              { return NameClose }

func (c Connect) args() []any        { return []any{c.Index, c.IP, c.Port} }
func (c SetLeader) args() []any      { return []any{c.Index} }
func (c AddFollower) args() []any    { return []any{c.Index, c.Distance, c.Angle} }
func (c UpdateFollower) args() []any { return []any{c.Index, c.Distance, c.Angle} }
func (c RemoveFollower) args() []any { return []any{c.Index} }
func (ReadyToFollow) args() []any    { return []any{} }
func (StartFollow) args() []any      { return []any{} }
func (StopFollow) args() []any       { return []any{} }
func (GoToLeader) args() []any       { return []any{} }
func (c SetFollowFrequency) args() []any {
	return []any{c.Hz}
}
func (c Arm) args() []any           { return []any{c.Index} }
func (c StartOffboard) args() []any { return []any{c.Index} }
func (c StopOffboard) args() []any  { return []any{c.Index} }
func (c SetVelocityBody) args() []any {
	s := c.Setpoint
	return []any{c.Index, s.ForwardMS, s.RightMS, s.DownMS, s.YawspeedDegS}
}
func (c SetVelocityNED) args() []any {
	s := c.Setpoint
	return []any{c.Index, s.NorthMS, s.EastMS, s.DownMS, s.YawDeg}
}
func (c SetAttitude) args() []any {
	s := c.Setpoint
	return []any{c.Index, s.RollDeg, s.PitchDeg, s.YawDeg, s.Thrust}
}
func (c SetPositionNED) args() []any {
	s := c.Setpoint
	return []any{c.Index, s.NorthM, s.EastM, s.DownM, s.YawDeg}
}
func (Close) args() []any { return []any{} }

// VehicleIndex returns the vehicle a command targets, if any.
func VehicleIndex(c Command) (int, bool) {
	switch c := c.(type) {
	case Connect:
		return c.Index, true
	case SetLeader:
		return c.Index, true
	case AddFollower:
		return c.Index, true
	case UpdateFollower:
		return c.Index, true
	case RemoveFollower:
		return c.Index, true
	case Arm:
		return c.Index, true
	case StartOffboard:
		return c.Index, true
	case StopOffboard:
		return c.Index, true
	case SetVelocityBody:
		return c.Index, true
	case SetVelocityNED:
		return c.Index, true
	case SetAttitude:
		return c.Index, true
	case SetPositionNED:
		return c.Index, true
	}
	return 0, false
}
