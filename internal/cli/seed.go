package cli

import (
	"github.com/spf13/cobra"

	"feedwatch/internal/app"
)

var seedDays int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the schema and demo source tables with sample data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Seed(cmd.Context(), app.SeedOptions{Days: seedDays})
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedDays, "days", 10, "Number of trailing days to populate")
}
