package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"droneswarm/internal/config"
	"droneswarm/internal/control"
	"droneswarm/internal/executor"
	"droneswarm/internal/fleet"
	"droneswarm/internal/link"
	"droneswarm/internal/link/simlink"
	"droneswarm/internal/logging"
	"droneswarm/internal/recorder"
	"droneswarm/internal/swarm"
	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

// app is one running swarm session: the vehicle table, the executor, the
// coordinator and the sinks observing them.
type app struct {
	cfg       *config.Config
	sessionID string
	writer    recorder.Writer
	fleet     *fleet.Fleet
	hub       *control.Hub
	detach    func()
}

func simOptions(s config.Sim) simlink.Options {
	return simlink.Options{
		OriginLat:      s.OriginLat,
		OriginLon:      s.OriginLon,
		OriginAltAMSL:  s.OriginAlt,
		SpacingM:       s.SpacingM,
		Tick:           s.Tick,
		MaxSpeedMS:     s.MaxSpeedMS,
		ReadyAfter:     s.ReadyAfter,
		RejectOffboard: s.RejectOffboard,
	}
}

func dialer(l config.Link) (link.Dialer, error) {
	switch l.Driver {
	case "sim":
		return simlink.Dialer(simOptions(l.Sim)), nil
	default:
		return nil, fmt.Errorf("unsupported link driver %q", l.Driver)
	}
}

// newApp wires the fleet for cfg. Rows go to w, which may be nil.
func newApp(ctx context.Context, cfg *config.Config, w recorder.Writer) (*app, error) {
	dial, err := dialer(cfg.Link)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = recorder.NewMultiWriterAll()
	}
	sessionID := telemetry.NewSessionID()

	vs := make([]*vehicle.Connection, 0, len(cfg.Vehicles))
	for _, v := range cfg.Vehicles {
		vs = append(vs, vehicle.New(v.Index, v.Endpoint, dial, vehicle.WithConnectTimeout(cfg.Link.ConnectTimeout)))
	}
	exec := executor.New(executor.WithBackoff(cfg.Executor.Backoff))
	coord := swarm.New(
		swarm.WithFrequency(cfg.Swarm.FollowHz),
		swarm.WithArmDelay(cfg.Swarm.ArmDelay),
		swarm.WithEventWriter(w, sessionID),
	)
	f, err := fleet.New(vs, exec, coord, fleet.WithCommandWriter(w, sessionID))
	if err != nil {
		return nil, err
	}

	hub := control.NewHub(cfg.Control.ClientBuffer)
	rec := recorder.NewRecorder(w, sessionID, cfg.Recorder.PositionInterval, logging.FromContext(ctx))
	unsubHub := f.Subscribe(hub.Observe)
	unsubRec := f.Subscribe(rec.Observe)

	logging.FromContext(ctx).Info("swarm session created", "session", sessionID, "vehicles", len(vs), "driver", cfg.Link.Driver)
	return &app{
		cfg:       cfg,
		sessionID: sessionID,
		writer:    w,
		fleet:     f,
		hub:       hub,
		detach: func() {
			unsubHub()
			unsubRec()
		},
	}, nil
}

// run starts the executor plus any extra workers and blocks until ctx ends
// or the executor finishes after a close command. Vehicles are released
// before it returns.
func (a *app) run(ctx context.Context, workers ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	exec := a.fleet.Executor()
	g.Go(func() error { return exec.Run(gctx) })
	g.Go(func() error {
		select {
		case <-exec.Done():
			logging.FromContext(gctx).Info("executor finished, shutting down")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}
	err := g.Wait()

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer stop()
	a.fleet.Shutdown(shutdownCtx)
	a.detach()
	return err
}
