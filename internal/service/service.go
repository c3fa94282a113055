package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"feedwatch/internal/alerting"
	"feedwatch/internal/calendar"
	"feedwatch/internal/config"
	"feedwatch/internal/monitor"
	"feedwatch/internal/registry"
	"feedwatch/internal/source"
	"feedwatch/internal/storage"
)

// Service orchestrates feed evaluation, persistence, and alerting.
type Service struct {
	registry   *registry.Registry
	counter    source.Counter
	statuses   storage.StatusStore
	dispatcher *alerting.Dispatcher
	cal        *calendar.Calendar
	logger     zerolog.Logger

	maxConcurrency int
	sourceTimeout  time.Duration
	retentionDays  int
	locker         storage.AdvisoryLocker
	lockKey        int64
	now            func() time.Time
}

// Outcome is the typed result of evaluating one feed: the record that
// was (or could not be) persisted, plus the failure detail when the
// evaluation itself broke down.
type Outcome struct {
	Feed   registry.Feed
	Record storage.StatusRecord
	Err    error
}

// New constructs the monitoring service. statuses and dispatcher may be
// nil when persistence or alerting is not configured.
func New(cfg *config.Config, reg *registry.Registry, counter source.Counter, statuses storage.StatusStore, dispatcher *alerting.Dispatcher, cal *calendar.Calendar, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := statuses.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		registry:       reg,
		counter:        counter,
		statuses:       statuses,
		dispatcher:     dispatcher,
		cal:            cal,
		logger:         logger.With().Str("component", "service").Logger(),
		maxConcurrency: cfg.Scheduler.MaxConcurrency,
		sourceTimeout:  cfg.Scheduler.SourceTimeout,
		retentionDays:  cfg.Retention.Days,
		locker:         locker,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
		now:            time.Now,
	}
}

// Sweep evaluates every registered feed for the COB date derived from
// the current wall clock.
func (s *Service) Sweep(ctx context.Context) error {
	return s.SweepFor(ctx, s.cal.ResolveCOB(s.now()))
}

// SweepFor evaluates every registered feed for one target COB date.
// Per-feed failures are isolated; the sweep always visits every feed.
func (s *Service) SweepFor(ctx context.Context, cobDate time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cob_date", cobDate).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	feeds := s.registry.List()
	outcomes := make([]Outcome, len(feeds))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrency)

	for i, feed := range feeds {
		i, feed := i, feed
		group.Go(func() error {
			outcomes[i] = s.CheckFeed(groupCtx, feed, cobDate)
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	counts := map[monitor.Verdict]int{}
	for _, outcome := range outcomes {
		counts[outcome.Record.Verdict]++
	}
	s.logger.Info().
		Time("cob_date", cobDate).
		Int("feeds", len(feeds)).
		Interface("verdicts", verdictCounts(counts)).
		Msg("sweep complete")

	s.pruneRetention(ctx)
	return nil
}

// CheckFeed evaluates one feed for one COB date: source count, verdict,
// persistence with a single retry, and alert dispatch. Source-lookup
// failures become a failed verdict with the error attached; they never
// propagate to the caller.
func (s *Service) CheckFeed(ctx context.Context, feed registry.Feed, cobDate time.Time) Outcome {
	observedAt := s.now().UTC()
	record := storage.StatusRecord{
		FeedName:     feed.Name,
		COBDate:      cobDate,
		ExpectedTime: feed.ExpectedTime.String(),
		LastChecked:  observedAt,
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	count, err := s.counter.Count(lookupCtx, feed, cobDate)
	cancel()

	previous := s.previousVerdict(ctx, feed.Name, cobDate)

	if err != nil {
		msg := err.Error()
		record.Verdict = monitor.VerdictFailed
		record.RecordCount = 0
		record.CompletenessPct = monitor.Completeness(0, feed.MinRecords)
		record.Error = &msg
		s.logger.Error().Err(err).Str("feed", feed.Name).Time("cob_date", cobDate).Msg("source lookup failed")
	} else {
		record.Verdict = monitor.Evaluate(feed, cobDate, count, observedAt, s.cal)
		record.RecordCount = count
		record.CompletenessPct = monitor.Completeness(count, feed.MinRecords)

		// Delayed means the data arrived outside the window. A feed
		// already recorded received was observed in time; a later poll
		// re-checks the same day and must not downgrade it.
		if record.Verdict == monitor.VerdictDelayed && previous != nil && *previous == monitor.VerdictReceived {
			record.Verdict = monitor.VerdictReceived
		}
	}

	if persistErr := s.persist(ctx, record); persistErr != nil {
		msg := persistErr.Error()
		record.Verdict = monitor.VerdictFailed
		record.Error = &msg
		s.logger.Error().Err(persistErr).Str("feed", feed.Name).Msg("failed to persist status after retry")
		err = persistErr
	}

	s.dispatch(ctx, previous, feed, record)

	s.logger.Debug().
		Str("feed", feed.Name).
		Time("cob_date", cobDate).
		Str("status", record.Verdict.String()).
		Int64("records", record.RecordCount).
		Msg("feed checked")

	return Outcome{Feed: feed, Record: record, Err: err}
}

// CheckFeedByName resolves the feed and evaluates it on demand.
func (s *Service) CheckFeedByName(ctx context.Context, name string, cobDate time.Time) (storage.StatusRecord, error) {
	feed, ok := s.registry.Get(name)
	if !ok {
		return storage.StatusRecord{}, fmt.Errorf("feed %q not registered", name)
	}
	return s.CheckFeed(ctx, feed, cobDate).Record, nil
}

func (s *Service) previousVerdict(ctx context.Context, feedName string, cobDate time.Time) *monitor.Verdict {
	if s.statuses == nil {
		return nil
	}
	stored, err := s.statuses.GetStatus(ctx, feedName, cobDate)
	if err != nil {
		s.logger.Warn().Err(err).Str("feed", feedName).Msg("could not read previous status")
		return nil
	}
	if stored == nil {
		return nil
	}
	verdict := stored.Verdict
	return &verdict
}

// persist writes the record, retrying a failed write once before giving up.
func (s *Service) persist(ctx context.Context, record storage.StatusRecord) error {
	if s.statuses == nil {
		return nil
	}

	err := s.statuses.UpsertStatus(ctx, record)
	if err == nil {
		return nil
	}
	s.logger.Warn().Err(err).Str("feed", record.FeedName).Msg("status upsert failed, retrying once")

	if err := s.statuses.UpsertStatus(ctx, record); err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, previous *monitor.Verdict, feed registry.Feed, record storage.StatusRecord) {
	if s.dispatcher == nil {
		return
	}

	alert := alerting.Alert{
		FeedName:        record.FeedName,
		COBDate:         record.COBDate,
		Verdict:         record.Verdict,
		RecordCount:     record.RecordCount,
		CompletenessPct: record.CompletenessPct,
		ExpectedTime:    record.ExpectedTime,
		ObservedAt:      record.LastChecked,
	}
	if record.Error != nil {
		alert.Error = *record.Error
	}

	s.dispatcher.OnStatusComputed(ctx, previous, alert)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) pruneRetention(ctx context.Context) {
	if s.statuses == nil || s.retentionDays <= 0 {
		return
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if err := s.statuses.DeleteStatusesBefore(ctx, cutoff); err != nil {
		s.logger.Warn().Err(err).Msg("status retention pruning failed")
	}
	if pruner, ok := s.statuses.(storage.AlertLogStore); ok {
		if err := pruner.DeleteAlertLogsBefore(ctx, cutoff); err != nil {
			s.logger.Warn().Err(err).Msg("alert log retention pruning failed")
		}
	}
}

func verdictCounts(counts map[monitor.Verdict]int) map[string]int {
	out := make(map[string]int, len(counts))
	for verdict, n := range counts {
		out[verdict.String()] = n
	}
	return out
}
