package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedwatch/internal/app"
)

var checkCOBDate string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate every feed once and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CheckOptions{}

		if checkCOBDate != "" {
			cob, err := time.Parse("2006-01-02", checkCOBDate)
			if err != nil {
				return fmt.Errorf("invalid --cob-date value: %w", err)
			}
			opts.COBDate = &cob
		}

		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkCOBDate, "cob-date", "", "COB date to evaluate (YYYY-MM-DD, defaults to the derived one)")
}
