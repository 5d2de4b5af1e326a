package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneswarm/internal/command"
	"droneswarm/internal/executor"
	"droneswarm/internal/logging"
	"droneswarm/internal/recorder"
)

var (
	replayInput string
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded command log",
	Long:  "replay re-dispatches the commands of a JSONL command log against a fresh fleet, preserving the recorded gaps scaled by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, ctx, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		// Replaying into the file being read would grow it forever.
		if cfg.Recorder.CommandLog == replayInput {
			cfg.Recorder.CommandLog = ""
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
		return a.run(ctx, func(ctx context.Context) error {
			n, err := recorder.ReplayCommandsFile(ctx, replayInput, a.fleet, replaySpeed)
			logging.FromContext(ctx).Info("replay finished", "commands", n)
			if err != nil && ctx.Err() == nil {
				return err
			}
			// A recorded closeServer has already finished the executor.
			if err := a.fleet.Dispatch(ctx, "replay", command.Close{}); err != nil && !errors.Is(err, executor.ErrQueueClosed) {
				return err
			}
			return nil
		})
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to command log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.MarkFlagRequired("input")
}
