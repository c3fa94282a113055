package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"feedwatch/internal/storage"
)

// Show prints the most recent status records, or the alert audit log
// when opts.Alerts is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show statuses")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlertLog(ctx, store, opts.Limit)
	}

	records, err := store.ListRecentStatuses(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no status records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Feed\tCOB Date\tStatus\tRecords\tComplete%\tExpected\tChecked (UTC)\tError")

	for _, record := range records {
		errMsg := ""
		if record.Error != nil {
			errMsg = sanitizeInline(*record.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			record.FeedName,
			record.COBDate.Format("2006-01-02"),
			record.Verdict,
			record.RecordCount,
			formatDecimal(record.CompletenessPct, 2),
			record.ExpectedTime,
			record.LastChecked.UTC().Format(time.RFC3339),
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showAlertLog(ctx context.Context, logs storage.AlertLogStore, limit int) error {
	entries, err := logs.ListRecentAlertLogs(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no alert log entries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tFeed\tCOB Date\tChannel\tOutcome\tError")

	for _, entry := range entries {
		errMsg := ""
		if entry.Error != nil {
			errMsg = sanitizeInline(*entry.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.FeedName,
			entry.COBDate.Format("2006-01-02"),
			entry.Channel,
			entry.Outcome,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
