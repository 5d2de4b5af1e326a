package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"droneswarm/internal/command"
	"droneswarm/internal/logging"
	"droneswarm/internal/scenario"
)

var (
	runScenario string
	runHold     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted swarm scenario",
	Long:  "run dispatches the steps of a scenario file or built-in formation, keeps the swarm flying for --hold and then closes every vehicle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, ctx, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		sc, err := resolveScenario(runScenario)
		if err != nil {
			return err
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
			if err := sc.Run(ctx, a.fleet); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if runHold > 0 {
				logging.FromContext(ctx).Info("holding formation", "for", runHold)
				t := time.NewTimer(runHold)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
				}
			}
			return a.fleet.Dispatch(ctx, "scenario", command.Close{})
		})
	},
}

// resolveScenario accepts a built-in formation name or a YAML path.
func resolveScenario(name string) (*scenario.Scenario, error) {
	if name == "" {
		return nil, fmt.Errorf("scenario required")
	}
	if sc, ok := scenario.BuiltIn()[name]; ok {
		return &sc, nil
	}
	return scenario.Load(name)
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List built-in scenarios",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		builtIn := scenario.BuiltIn()
		names := make([]string, 0, len(builtIn))
		for n := range builtIn {
			names = append(names, n)
		}
		sort.Strings(names)
		out := cmd.OutOrStdout()
		for _, n := range names {
			sc := builtIn[n]
			fmt.Fprintf(out, "%-14s %-14s %3d steps  %s\n", n, sc.Name, len(sc.Steps), sc.Description)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "line-abreast", "Built-in scenario name or path to scenario YAML")
	runCmd.Flags().DurationVar(&runHold, "hold", 30*time.Second, "How long to keep following after the last step")
}
