package cli

import (
	"github.com/spf13/cobra"

	"feedwatch/internal/app"
)

var (
	simulateFeed    string
	simulateVerdict string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Feed:    simulateFeed,
			Verdict: simulateVerdict,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFeed, "feed", "", "Feed name to report (defaults to a synthetic one)")
	simulateCmd.Flags().StringVar(&simulateVerdict, "status", "missing", "Status to simulate (delayed, missing, partial, failed)")
}
