package cli

import (
	"github.com/spf13/cobra"

	"feedwatch/internal/app"
)

var (
	showLimit  int
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent status records or the alert audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:  showLimit,
			Alerts: showAlerts,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum number of rows to print")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show the alert audit log instead of statuses")
}
