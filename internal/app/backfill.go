package app

import (
	"context"
	"errors"
	"time"
)

// Backfill re-evaluates the configured feeds over a historical COB date
// range, inclusive on both ends. Every calendar day in the range is
// visited; weekend and holiday semantics are applied per feed.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := midnightUTC(opts.From)
	to := midnightUTC(opts.To)
	if to.Before(from) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	svc, _, _, cleanup, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	processed := 0
	failed := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for _, outcome := range svc.BackfillFor(ctx, day) {
			if outcome.Err != nil {
				failed++
				a.Logger.Error().Err(outcome.Err).Str("feed", outcome.Feed.Name).Time("cob_date", day).Msg("backfill failed")
				continue
			}
			processed++
		}
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some feed evaluations failed during backfill, check the logs")
	}
	return nil
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
