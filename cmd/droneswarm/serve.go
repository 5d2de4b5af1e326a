package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneswarm/internal/control"
	"droneswarm/internal/logging"
)

var (
	serveTCPAddr  string
	serveHTTPAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept swarm commands over TCP and websocket",
	Long:  "serve runs the command executor and exposes the line-oriented TCP command socket plus the HTTP API until a closeServer command or a signal arrives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, ctx, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("tcp-addr") {
			cfg.Control.TCPAddr = serveTCPAddr
		}
		if cmd.Flags().Changed("http-addr") {
			cfg.Control.HTTPAddr = serveHTTPAddr
		}

		w, cleanup, err := newWriters(ctx, cfg.Recorder)
		if err != nil {
			return err
		}
		defer cleanup()

		a, err := newApp(ctx, cfg, w)
		if err != nil {
			return err
		}
		tcp := control.NewTCPServer(cfg.Control.TCPAddr, a.hub, a.fleet)
		if err := tcp.Listen(); err != nil {
			return err
		}
		workers := []func(ctx context.Context) error{tcp.Serve}
		if cfg.Control.HTTPAddr != "off" {
			api := control.NewHTTPServer(cfg.Control.HTTPAddr, a.hub, a.fleet, a.fleet)
			if err := api.Listen(); err != nil {
				return err
			}
			workers = append(workers, api.Serve)
		}
		err = a.run(ctx, workers...)
		logging.FromContext(ctx).Info("drone swarm stopped", "session", a.sessionID)
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveTCPAddr, "tcp-addr", control.DefaultTCPAddr, "Listen address of the TCP command socket")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", control.DefaultHTTPAddr, "Listen address of the HTTP API, or \"off\"")
}
