package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droneswarm/internal/scenario"
)

var validateScenarios []string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and scenario files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %d vehicles, driver %s, follow %g Hz\n", len(cfg.Vehicles), cfg.Link.Driver, cfg.Swarm.FollowHz)
		for _, path := range validateScenarios {
			sc, err := scenario.Load(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(out, "scenario ok: %s (%d steps, %s)\n", path, len(sc.Steps), sc.Duration())
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringSliceVar(&validateScenarios, "scenario", nil, "Scenario files to check")
}
