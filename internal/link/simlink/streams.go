package simlink

import (
	"context"
	"fmt"
	"time"

	"droneswarm/internal/link"
)

// poll emits sample() every tick until ctx ends or the vehicle closes.
func poll[T any](ctx context.Context, v *Vehicle, name string, sample func() T) (<-chan T, error) {
	v.mu.Lock()
	if err := v.ready(); err != nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("%s stream: %w", name, err)
	}
	stop := v.stop
	v.mu.Unlock()

	out := make(chan T)
	go func() {
		defer close(out)
		ticker := time.NewTicker(v.opts.Tick)
		defer ticker.Stop()
		for {
			v.mu.Lock()
			val := sample()
			v.mu.Unlock()
			select {
			case out <- val:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	return out, nil
}

func (v *Vehicle) Health(ctx context.Context) (<-chan link.Health, error) {
	return poll(ctx, v, "health", func() link.Health {
		ok := time.Since(v.connectedAt) >= v.opts.ReadyAfter
		return link.Health{GlobalPositionOK: ok, HomePositionOK: ok}
	})
}

func (v *Vehicle) Armed(ctx context.Context) (<-chan bool, error) {
	return poll(ctx, v, "armed", func() bool { return v.armed })
}

func (v *Vehicle) FlightMode(ctx context.Context) (<-chan link.FlightMode, error) {
	return poll(ctx, v, "flight mode", func() link.FlightMode { return v.mode })
}

func (v *Vehicle) Position(ctx context.Context) (<-chan link.Position, error) {
	return poll(ctx, v, "position", func() link.Position {
		return link.Position{
			LatitudeDeg:       v.lat,
			LongitudeDeg:      v.lon,
			AbsoluteAltitudeM: v.alt,
			RelativeAltitudeM: v.alt - v.homeAlt,
		}
	})
}

func (v *Vehicle) Heading(ctx context.Context) (<-chan link.Heading, error) {
	return poll(ctx, v, "heading", func() link.Heading { return link.Heading{HeadingDeg: v.heading} })
}

// StatusText delivers autopilot messages as they are produced. Messages
// produced while the consumer is busy are dropped.
func (v *Vehicle) StatusText(ctx context.Context) (<-chan link.StatusText, error) {
	v.mu.Lock()
	if err := v.ready(); err != nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("status text stream: %w", err)
	}
	stop := v.stop
	in := make(chan link.StatusText, 16)
	v.statusSubs[in] = struct{}{}
	v.mu.Unlock()

	out := make(chan link.StatusText)
	go func() {
		defer close(out)
		defer func() {
			v.mu.Lock()
			delete(v.statusSubs, in)
			v.mu.Unlock()
		}()
		for {
			select {
			case st := <-in:
				select {
				case out <- st:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	return out, nil
}
