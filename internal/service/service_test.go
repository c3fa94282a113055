package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/calendar"
	"feedwatch/internal/config"
	"feedwatch/internal/monitor"
	"feedwatch/internal/registry"
	"feedwatch/internal/storage"
)

// fakeCounter serves canned counts per feed and can fail selectively.
type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	errs   map[string]error
}

func (c *fakeCounter) Count(_ context.Context, feed registry.Feed, _ time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.errs[feed.Name]; ok {
		return 0, err
	}
	return c.counts[feed.Name], nil
}

// memoryStore is an in-memory StatusStore with injectable write failures.
type memoryStore struct {
	mu           sync.Mutex
	records      map[string]storage.StatusRecord
	upsertFails  int
	upsertCalls  int
	alertLogs    []storage.AlertLogEntry
	statusCutoff time.Time
	alertCutoff  time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]storage.StatusRecord{}}
}

func statusKey(feed string, cob time.Time) string {
	return feed + "|" + cob.Format("2006-01-02")
}

func (m *memoryStore) UpsertStatus(_ context.Context, record storage.StatusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertFails > 0 {
		m.upsertFails--
		return errors.New("write refused")
	}
	m.records[statusKey(record.FeedName, record.COBDate)] = record
	return nil
}

func (m *memoryStore) GetStatus(_ context.Context, feedName string, cobDate time.Time) (*storage.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[statusKey(feedName, cobDate)]; ok {
		copied := record
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStore) RangeStatuses(_ context.Context, feedName string, from, to time.Time) ([]storage.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.StatusRecord
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if record, ok := m.records[statusKey(feedName, day)]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryStore) ListRecentStatuses(context.Context, int) ([]storage.StatusRecord, error) {
	return nil, nil
}

func (m *memoryStore) DeleteStatusesBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCutoff = olderThan
	for key, record := range m.records {
		if record.COBDate.Before(olderThan) {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *memoryStore) InsertAlertLog(_ context.Context, entry storage.AlertLogEntry) (storage.AlertLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertLogs = append(m.alertLogs, entry)
	return entry, nil
}

func (m *memoryStore) ListRecentAlertLogs(context.Context, int) ([]storage.AlertLogEntry, error) {
	return nil, nil
}

func (m *memoryStore) DeleteAlertLogsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertCutoff = olderThan
	return nil
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			Interval:       10 * time.Minute,
			MaxConcurrency: 2,
			SourceTimeout:  time.Second,
		},
		Retention: config.RetentionConfig{Days: 365},
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]config.FeedConfig{
		{Name: "orders", SourceTable: "orders", DateColumn: "order_date", ExpectedTime: "10:30", ToleranceMinutes: 45, MinRecords: 500},
		{Name: "trades", SourceTable: "trades", DateColumn: "trade_date", ExpectedTime: "09:00", ToleranceMinutes: 60, MinRecords: 100},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func testService(t *testing.T, counter *fakeCounter, store storage.StatusStore) *Service {
	t.Helper()
	cal, err := calendar.New(calendar.Options{CutoffHour: 6})
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	return New(testConfig(), testRegistry(t), counter, store, nil, cal, zerolog.Nop())
}

var testCOB = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC) // tuesday

// Fix the service clock inside the expected window for both feeds so
// verdicts depend on counts alone.
func pinClock(s *Service) {
	s.now = func() time.Time {
		return time.Date(2025, 6, 11, 9, 50, 0, 0, time.UTC)
	}
}

func TestSweepIsolatesSourceFailures(t *testing.T) {
	counter := &fakeCounter{
		counts: map[string]int64{"trades": 250},
		errs:   map[string]error{"orders": errors.New("connection timed out")},
	}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	pinClock(svc)

	if err := svc.SweepFor(context.Background(), testCOB); err != nil {
		t.Fatalf("SweepFor: %v", err)
	}

	orders, err := store.GetStatus(context.Background(), "orders", testCOB)
	if err != nil || orders == nil {
		t.Fatalf("orders status missing: %v", err)
	}
	if orders.Verdict != monitor.VerdictFailed {
		t.Fatalf("orders should be failed, got %s", orders.Verdict)
	}
	if orders.RecordCount != 0 {
		t.Fatalf("failed lookup should record zero count, got %d", orders.RecordCount)
	}
	if orders.Error == nil || !strings.Contains(*orders.Error, "timed out") {
		t.Fatalf("failed status should carry the lookup error, got %v", orders.Error)
	}

	trades, err := store.GetStatus(context.Background(), "trades", testCOB)
	if err != nil || trades == nil {
		t.Fatalf("trades status missing: %v", err)
	}
	if trades.Verdict != monitor.VerdictReceived {
		t.Fatalf("trades should still reach received, got %s", trades.Verdict)
	}
}

func TestCheckFeedVerdicts(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 320}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	pinClock(svc)

	feed, _ := testRegistry(t).Get("orders")
	outcome := svc.CheckFeed(context.Background(), feed, testCOB)
	if outcome.Record.Verdict != monitor.VerdictPartial {
		t.Fatalf("320/500 should be partial, got %s", outcome.Record.Verdict)
	}
	if outcome.Record.CompletenessPct.StringFixed(2) != "64.00" {
		t.Fatalf("unexpected completeness %s", outcome.Record.CompletenessPct)
	}
}

func TestRepeatedChecksUpsertSingleRecord(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800, "trades": 250}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	pinClock(svc)

	for i := 0; i < 3; i++ {
		if err := svc.SweepFor(context.Background(), testCOB); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	if got := store.size(); got != 2 {
		t.Fatalf("expected one record per feed, got %d", got)
	}
}

func TestPersistenceRetriesOnceThenFails(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800}}
	feed, _ := testRegistry(t).Get("orders")

	// One transient failure: the retry succeeds.
	store := newMemoryStore()
	store.upsertFails = 1
	svc := testService(t, counter, store)
	pinClock(svc)

	outcome := svc.CheckFeed(context.Background(), feed, testCOB)
	if outcome.Err != nil {
		t.Fatalf("retry should have recovered: %v", outcome.Err)
	}
	if store.upsertCalls != 2 {
		t.Fatalf("expected two upsert attempts, got %d", store.upsertCalls)
	}

	// Persistent failure: the evaluation is marked failed, not crashed.
	store = newMemoryStore()
	store.upsertFails = 2
	svc = testService(t, counter, store)
	pinClock(svc)

	outcome = svc.CheckFeed(context.Background(), feed, testCOB)
	if outcome.Err == nil {
		t.Fatal("persistent write failure should surface in the outcome")
	}
	if outcome.Record.Verdict != monitor.VerdictFailed {
		t.Fatalf("outcome should be failed, got %s", outcome.Record.Verdict)
	}
}

func TestReceivedVerdictSurvivesLaterPolls(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	feed, _ := testRegistry(t).Get("orders")

	// First poll inside the 10:30 +/- 45m window.
	svc.now = func() time.Time {
		return time.Date(2025, 6, 11, 10, 40, 0, 0, time.UTC)
	}
	first := svc.CheckFeed(context.Background(), feed, testCOB)
	if first.Record.Verdict != monitor.VerdictReceived {
		t.Fatalf("in-window poll should be received, got %s", first.Record.Verdict)
	}

	// Second poll after the window closed re-checks the same data.
	svc.now = func() time.Time {
		return time.Date(2025, 6, 11, 11, 30, 0, 0, time.UTC)
	}
	second := svc.CheckFeed(context.Background(), feed, testCOB)
	if second.Record.Verdict != monitor.VerdictReceived {
		t.Fatalf("re-check outside the window downgraded received to %s", second.Record.Verdict)
	}

	stored, err := store.GetStatus(context.Background(), "orders", testCOB)
	if err != nil || stored == nil {
		t.Fatalf("stored record missing: %v", err)
	}
	if stored.Verdict != monitor.VerdictReceived {
		t.Fatalf("stored verdict should stay received, got %s", stored.Verdict)
	}
}

func TestFirstObservationOutsideWindowIsDelayed(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	feed, _ := testRegistry(t).Get("orders")

	svc.now = func() time.Time {
		return time.Date(2025, 6, 11, 11, 30, 0, 0, time.UTC)
	}
	outcome := svc.CheckFeed(context.Background(), feed, testCOB)
	if outcome.Record.Verdict != monitor.VerdictDelayed {
		t.Fatalf("data first seen after the window should be delayed, got %s", outcome.Record.Verdict)
	}
}

func TestSweepPrunesRetention(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800, "trades": 250}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	pinClock(svc)

	if err := svc.SweepFor(context.Background(), testCOB); err != nil {
		t.Fatalf("SweepFor: %v", err)
	}

	// retention.days is 365; the pinned clock is 2025-06-11 09:50 UTC.
	want := time.Date(2024, 6, 11, 9, 50, 0, 0, time.UTC)
	if !store.statusCutoff.Equal(want) {
		t.Fatalf("status cutoff = %s, want %s", store.statusCutoff, want)
	}
	if !store.alertCutoff.Equal(want) {
		t.Fatalf("alert log cutoff = %s, want %s", store.alertCutoff, want)
	}
}

func TestCheckFeedByNameUnknownFeed(t *testing.T) {
	svc := testService(t, &fakeCounter{}, newMemoryStore())

	if _, err := svc.CheckFeedByName(context.Background(), "nope", testCOB); err == nil {
		t.Fatal("unknown feed should error")
	}
}

func TestSummaryFallsBackToLiveCounts(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{"orders": 800, "trades": 250}}
	store := newMemoryStore()
	svc := testService(t, counter, store)
	pinClock(svc)

	// Store only one day; the rest of the window must be filled live.
	stored := storage.StatusRecord{
		FeedName:    "orders",
		COBDate:     testCOB,
		Verdict:     monitor.VerdictMissing,
		RecordCount: 0,
		LastChecked: svc.now(),
	}
	if err := store.UpsertStatus(context.Background(), stored); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	summaries, err := svc.Summary(context.Background(), 7)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected two feeds, got %d", len(summaries))
	}

	var orders *FeedSummary
	for i := range summaries {
		if summaries[i].FeedName == "orders" {
			orders = &summaries[i]
		}
	}
	if orders == nil {
		t.Fatal("orders summary missing")
	}
	if len(orders.DailyStatus) != 7 {
		t.Fatalf("expected 7 days, got %d", len(orders.DailyStatus))
	}

	if cell := orders.DailyStatus["2025-06-10"]; cell.Status != "missing" {
		t.Fatalf("stored record should win, got %+v", cell)
	}
	// 2025-06-09 (Monday) has no stored record: live count of 800 is received.
	if cell := orders.DailyStatus["2025-06-09"]; cell.Status != "received" || cell.RecordCount != 800 {
		t.Fatalf("fallback day incorrect: %+v", cell)
	}
	// Weekend days are received for a weekday-only feed.
	if cell := orders.DailyStatus["2025-06-07"]; cell.Status != "received" || !cell.IsWeekend {
		t.Fatalf("weekend fallback incorrect: %+v", cell)
	}
}
