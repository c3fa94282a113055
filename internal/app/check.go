package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Check runs a single evaluation pass over every configured feed and
// prints the outcome. The COB date defaults to the one derived from the
// current clock and the configured cutoff hour.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	svc, reg, cal, cleanup, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cobDate := cal.ResolveCOB(time.Now())
	if opts.COBDate != nil {
		cobDate = *opts.COBDate
	}

	a.Logger.Info().Time("cob_date", cobDate).Int("feeds", reg.Len()).Msg("running one-off check")

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Feed\tCOB Date\tStatus\tRecords\tComplete%\tError")

	failures := 0
	for _, feed := range reg.List() {
		outcome := svc.CheckFeed(ctx, feed, cobDate)
		if outcome.Err != nil {
			failures++
		}

		errMsg := ""
		if outcome.Record.Error != nil {
			errMsg = sanitizeInline(*outcome.Record.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			feed.Name,
			cobDate.Format("2006-01-02"),
			outcome.Record.Verdict,
			outcome.Record.RecordCount,
			formatDecimal(outcome.Record.CompletenessPct, 2),
			errMsg,
		)
	}

	writer.Flush()

	if failures > 0 {
		return fmt.Errorf("%d feed(s) could not be fully checked", failures)
	}
	return nil
}
