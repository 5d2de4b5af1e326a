// Package link defines the vehicle link the swarm core talks through. The
// link owns the wire protocol; the core only consumes telemetry streams and
// issues action and offboard requests.
package link

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnectionTimeout reports that the link did not come up in time.
	ErrConnectionTimeout = errors.New("link: connection timed out")
	// ErrOffboardRejected reports that the vehicle refused to enter or leave offboard mode.
	ErrOffboardRejected = errors.New("link: offboard request rejected")
	// ErrTransport reports a failed send or a broken link.
	ErrTransport = errors.New("link: transport failure")
	// ErrNotConnected is returned by requests issued before Connect succeeded.
	// It is a transport failure.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrTransport)
	// ErrCommandDenied reports that the vehicle refused an action such as arming.
	ErrCommandDenied = errors.New("link: command denied")
)

// Link is a single vehicle's connection. Stream methods return channels that
// deliver values until ctx is cancelled and are then closed.
type Link interface {
	Connect(ctx context.Context, address string) error

	Health(ctx context.Context) (<-chan Health, error)
	StatusText(ctx context.Context) (<-chan StatusText, error)
	Armed(ctx context.Context) (<-chan bool, error)
	FlightMode(ctx context.Context) (<-chan FlightMode, error)
	Position(ctx context.Context) (<-chan Position, error)
	Heading(ctx context.Context) (<-chan Heading, error)

	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	StartOffboard(ctx context.Context) error
	StopOffboard(ctx context.Context) error

	SetVelocityBody(ctx context.Context, sp VelocityBodyYawspeed) error
	SetVelocityNED(ctx context.Context, sp VelocityNEDYaw) error
	SetAttitude(ctx context.Context, sp Attitude) error
	SetPositionNED(ctx context.Context, sp PositionNEDYaw) error
	SetPositionGlobal(ctx context.Context, sp PositionGlobalYaw) error

	Close() error
}

// Dialer creates the link for the vehicle at index served by endpoint.
type Dialer func(index int, endpoint string) (Link, error)
