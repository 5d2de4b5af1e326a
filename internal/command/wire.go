package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"droneswarm/internal/link"
)

var (
	// ErrUnknownCommand reports a message whose func names no command.
	ErrUnknownCommand = errors.New("command: unknown command")
	// ErrBadArgs reports a message with the wrong number or type of args.
	ErrBadArgs = errors.New("command: bad arguments")
)

// Message is the wire envelope.
type Message struct {
	Func string            `json:"func"`
	Args []json.RawMessage `json:"args"`
}

type decoder func(*args) Command

type entry struct {
	arity  int
	decode decoder
}

func vehicleOnly(build func(int) Command) entry {
	return entry{1, func(a *args) Command { return build(a.int(0)) }}
}

func noArgs(c Command) entry {
	return entry{0, func(*args) Command { return c }}
}

var registry = map[string]entry{
	NameConnect: {3, func(a *args) Command {
		return Connect{Index: a.int(0), IP: a.str(1), Port: a.str(2)}
	}},
	NameSetLeader: vehicleOnly(func(i int) Command { return SetLeader{Index: i} }),
	NameAddFollower: {3, func(a *args) Command {
		return AddFollower{Index: a.int(0), Distance: a.float(1), Angle: a.float(2)}
	}},
	NameUpdateFollower: {3, func(a *args) Command {
		return UpdateFollower{Index: a.int(0), Distance: a.float(1), Angle: a.float(2)}
	}},
	NameRemoveFollower: vehicleOnly(func(i int) Command { return RemoveFollower{Index: i} }),
	NameReadyToFollow:  noArgs(ReadyToFollow{}),
	NameStartFollow:    noArgs(StartFollow{}),
	NameStopFollow:     noArgs(StopFollow{}),
	NameGoToLeader:     noArgs(GoToLeader{}),
	NameSetFollowFrequency: {1, func(a *args) Command {
		return SetFollowFrequency{Hz: a.float(0)}
	}},
	NameArm:           vehicleOnly(func(i int) Command { return Arm{Index: i} }),
	NameStartOffboard: vehicleOnly(func(i int) Command { return StartOffboard{Index: i} }),
	NameStopOffboard:  vehicleOnly(func(i int) Command { return StopOffboard{Index: i} }),
	NameSetVelocityBody: {5, func(a *args) Command {
		return SetVelocityBody{Index: a.int(0), Setpoint: link.VelocityBodyYawspeed{
			ForwardMS: a.float(1), RightMS: a.float(2), DownMS: a.float(3), YawspeedDegS: a.float(4),
		}}
	}},
	NameSetVelocityNED: {5, func(a *args) Command {
		return SetVelocityNED{Index: a.int(0), Setpoint: link.VelocityNEDYaw{
			NorthMS: a.float(1), EastMS: a.float(2), DownMS: a.float(3), YawDeg: a.float(4),
		}}
	}},
	NameSetAttitude: {5, func(a *args) Command {
		return SetAttitude{Index: a.int(0), Setpoint: link.Attitude{
			RollDeg: a.float(1), PitchDeg: a.float(2), YawDeg: a.float(3), Thrust: a.float(4),
		}}
	}},
	NameSetPositionNED: {5, func(a *args) Command {
		return SetPositionNED{Index: a.int(0), Setpoint: link.PositionNEDYaw{
			NorthM: a.float(1), EastM: a.float(2), DownM: a.float(3), YawDeg: a.float(4),
		}}
	}},
	NameClose: noArgs(Close{}),
}

// aliases maps normalized alternative spellings to wire names.
var aliases = map[string]string{
	"startfollow":          NameStartFollow,
	"runtaskfollow":        NameStartFollow,
	"follow":               NameStartFollow,
	"gotopositionofleader": NameGoToLeader,
	"startoffboard":        NameStartOffboard,
	"stopoffboard":         NameStopOffboard,
	"close":                NameClose,
}

var normalized = func() map[string]string {
	m := make(map[string]string, len(registry)+len(aliases))
	for name := range registry {
		m[normalize(name)] = name
	}
	for alias, name := range aliases {
		m[alias] = name
	}
	return m
}()

func normalize(name string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(name))
}

// Lookup resolves a wire name or alias to its canonical wire name.
func Lookup(name string) (string, bool) {
	n, ok := normalized[normalize(name)]
	return n, ok
}

// Decode parses one wire message into a typed command.
func Decode(data []byte) (Command, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return FromMessage(m)
}

// FromMessage converts an already unmarshalled envelope.
func FromMessage(m Message) (Command, error) {
	name, ok := Lookup(m.Func)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Func)
	}
	s := registry[name]
	if len(m.Args) != s.arity {
		return nil, fmt.Errorf("%w: %s takes %d args, got %d", ErrBadArgs, name, s.arity, len(m.Args))
	}
	a := &args{name: name, raw: m.Args}
	c := s.decode(a)
	if a.err != nil {
		return nil, a.err
	}
	return c, nil
}

// Encode renders c in wire form.
func Encode(c Command) ([]byte, error) {
	vals := c.args()
	raw := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg %d: %w", c.Name(), i, err)
		}
		raw[i] = b
	}
	return json.Marshal(Message{Func: c.Name(), Args: raw})
}

// args reads positional arguments, keeping the first error.
type args struct {
	name string
	raw  []json.RawMessage
	err  error
}

func (a *args) fail(i int, want string, raw json.RawMessage) {
	if a.err == nil {
		a.err = fmt.Errorf("%w: %s arg %d: want %s, got %s", ErrBadArgs, a.name, i, want, string(raw))
	}
}

// isNull reports a JSON null, which json.Unmarshal would silently accept as a
// zero value.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (a *args) float(i int) float64 {
	if isNull(a.raw[i]) {
		a.fail(i, "number", a.raw[i])
		return 0
	}
	var f float64
	if err := json.Unmarshal(a.raw[i], &f); err != nil {
		a.fail(i, "number", a.raw[i])
	}
	return f
}

func (a *args) int(i int) int {
	if isNull(a.raw[i]) {
		a.fail(i, "integer", a.raw[i])
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(a.raw[i], &n); err != nil {
		a.fail(i, "integer", a.raw[i])
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		a.fail(i, "integer", a.raw[i])
		return 0
	}
	return int(v)
}

// str accepts a JSON string or number, since ports arrive as either.
func (a *args) str(i int) string {
	if isNull(a.raw[i]) {
		a.fail(i, "string", a.raw[i])
		return ""
	}
	var s string
	if err := json.Unmarshal(a.raw[i], &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(a.raw[i], &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	a.fail(i, "string", a.raw[i])
	return ""
}
