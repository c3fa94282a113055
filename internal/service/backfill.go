package service

import (
	"context"
	"time"

	"feedwatch/internal/monitor"
	"feedwatch/internal/registry"
	"feedwatch/internal/storage"
)

// BackfillFor re-evaluates every registered feed for one historical COB
// date. Only the volume rules apply; the arrival-window check is
// skipped because the observation time of a backfill run says nothing
// about when the data actually landed. No alerts are dispatched.
func (s *Service) BackfillFor(ctx context.Context, cobDate time.Time) []Outcome {
	feeds := s.registry.List()
	outcomes := make([]Outcome, 0, len(feeds))

	for _, feed := range feeds {
		outcomes = append(outcomes, s.backfillFeed(ctx, feed, cobDate))
	}
	return outcomes
}

func (s *Service) backfillFeed(ctx context.Context, feed registry.Feed, cobDate time.Time) Outcome {
	record := storage.StatusRecord{
		FeedName:     feed.Name,
		COBDate:      cobDate,
		ExpectedTime: feed.ExpectedTime.String(),
		LastChecked:  s.now().UTC(),
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	count, err := s.counter.Count(lookupCtx, feed, cobDate)
	cancel()

	if err != nil {
		msg := err.Error()
		record.Verdict = monitor.VerdictFailed
		record.CompletenessPct = monitor.Completeness(0, feed.MinRecords)
		record.Error = &msg
	} else {
		record.Verdict = monitor.EvaluateCount(feed, cobDate, count, s.cal)
		record.RecordCount = count
		record.CompletenessPct = monitor.Completeness(count, feed.MinRecords)
	}

	if persistErr := s.persist(ctx, record); persistErr != nil {
		msg := persistErr.Error()
		record.Verdict = monitor.VerdictFailed
		record.Error = &msg
		err = persistErr
	}

	return Outcome{Feed: feed, Record: record, Err: err}
}
