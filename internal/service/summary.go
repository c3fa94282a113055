package service

import (
	"context"
	"time"

	"feedwatch/internal/monitor"
	"feedwatch/internal/registry"
)

// DayStatus is one cell of the per-feed status calendar.
type DayStatus struct {
	Status      string `json:"status"`
	RecordCount int64  `json:"count"`
	DayOfWeek   string `json:"day_of_week"`
	IsWeekend   bool   `json:"is_weekend"`
}

// FeedSummary maps ISO COB dates to their status for one feed.
type FeedSummary struct {
	FeedName    string               `json:"feed_name"`
	DailyStatus map[string]DayStatus `json:"daily_status"`
}

// Summary builds the status calendar for every feed over the trailing
// window. Dates with no stored record fall back to a live re-evaluation
// against the source count; fallback results are not persisted, keeping
// the read path free of writes.
func (s *Service) Summary(ctx context.Context, days int) ([]FeedSummary, error) {
	end := s.cal.ResolveCOB(s.now())
	start := end.AddDate(0, 0, -days+1)

	feeds := s.registry.List()
	summaries := make([]FeedSummary, 0, len(feeds))

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		daily, err := s.feedCalendar(ctx, feed, start, end)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, FeedSummary{FeedName: feed.Name, DailyStatus: daily})
	}
	return summaries, nil
}

func (s *Service) feedCalendar(ctx context.Context, feed registry.Feed, start, end time.Time) (map[string]DayStatus, error) {
	stored := map[string]DayStatus{}
	if s.statuses != nil {
		records, err := s.statuses.RangeStatuses(ctx, feed.Name, start, end)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			stored[record.COBDate.Format("2006-01-02")] = DayStatus{
				Status:      record.Verdict.String(),
				RecordCount: record.RecordCount,
				DayOfWeek:   record.COBDate.Format("Mon"),
				IsWeekend:   s.cal.IsWeekend(record.COBDate),
			}
		}
	}

	daily := make(map[string]DayStatus)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if cell, ok := stored[key]; ok {
			daily[key] = cell
			continue
		}
		daily[key] = s.fallbackDay(ctx, feed, day)
	}
	return daily, nil
}

// fallbackDay re-evaluates a date the store has no record for.
func (s *Service) fallbackDay(ctx context.Context, feed registry.Feed, day time.Time) DayStatus {
	cell := DayStatus{
		DayOfWeek: day.Format("Mon"),
		IsWeekend: s.cal.IsWeekend(day),
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	count, err := s.counter.Count(lookupCtx, feed, day)
	cancel()
	if err != nil {
		cell.Status = monitor.VerdictFailed.String()
		return cell
	}

	cell.RecordCount = count
	cell.Status = monitor.EvaluateCount(feed, day, count, s.cal).String()
	return cell
}
