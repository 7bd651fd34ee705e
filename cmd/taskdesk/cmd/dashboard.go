package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/taskdesk/dashboard"
	"github.com/jmcleod/taskdesk/internal/app"
)

var upcomingLimit int

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show project statistics and upcoming deadlines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(a *app.App) error {
			projects, err := a.Client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), dashboard.Summarize(projects, upcomingLimit), time.Now())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().IntVarP(&upcomingLimit, "upcoming", "n", dashboard.DefaultUpcoming, "Number of upcoming deadlines to show")
}
