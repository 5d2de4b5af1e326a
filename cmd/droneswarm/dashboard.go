package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droneswarm/internal/dashboard"
)

var (
	dashboardOut      string
	dashboardDatabase string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the recorded tables",
	Long:  "dashboard writes Grafana dashboard JSON querying the GreptimeDB tables the recorder fills. The datasource UID is read from GREPTIMEDB_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := dashboard.Render(dashboardOut, dashboard.DefaultParams(dashboardDatabase))
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "dashboards", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardDatabase, "database", "public", "GreptimeDB database queried by the dashboards")
}
