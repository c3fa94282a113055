package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"feedwatch/internal/monitor"
	"feedwatch/internal/storage"
)

type fakeChannel struct {
	name string
	err  error

	mu    sync.Mutex
	sends []Alert
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, alert)
	return c.err
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []storage.AlertLogEntry
}

func (a *fakeAuditLog) InsertAlertLog(_ context.Context, entry storage.AlertLogEntry) (storage.AlertLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return entry, nil
}

func (a *fakeAuditLog) ListRecentAlertLogs(context.Context, int) ([]storage.AlertLogEntry, error) {
	return nil, nil
}

func (a *fakeAuditLog) DeleteAlertLogsBefore(context.Context, time.Time) error {
	return nil
}

func missingAlert() Alert {
	return Alert{
		FeedName:        "orders",
		COBDate:         time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Verdict:         monitor.VerdictMissing,
		CompletenessPct: decimal.Zero,
		ObservedAt:      time.Now().UTC(),
	}
}

func TestNonAnomalousVerdictNeverNotifies(t *testing.T) {
	channel := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{channel}, nil, time.Hour, zerolog.Nop())

	alert := missingAlert()
	alert.Verdict = monitor.VerdictReceived
	d.OnStatusComputed(context.Background(), nil, alert)

	if channel.count() != 0 {
		t.Fatal("received verdict must not notify")
	}
}

func TestFirstAnomalyNotifies(t *testing.T) {
	channel := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{channel}, nil, time.Hour, zerolog.Nop())

	d.OnStatusComputed(context.Background(), nil, missingAlert())

	if channel.count() != 1 {
		t.Fatalf("expected one send, got %d", channel.count())
	}
}

func TestRepeatedVerdictSuppressedUntilRealertInterval(t *testing.T) {
	channel := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{channel}, nil, time.Hour, zerolog.Nop())

	clock := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	prev := monitor.VerdictMissing

	// First determination alerts, repeats inside the interval do not.
	d.OnStatusComputed(context.Background(), nil, missingAlert())
	for i := 0; i < 5; i++ {
		clock = clock.Add(10 * time.Minute)
		d.OnStatusComputed(context.Background(), &prev, missingAlert())
	}
	if channel.count() != 1 {
		t.Fatalf("expected exactly one alert inside the interval, got %d", channel.count())
	}

	clock = clock.Add(2 * time.Hour)
	d.OnStatusComputed(context.Background(), &prev, missingAlert())
	if channel.count() != 2 {
		t.Fatalf("expected re-alert after interval, got %d sends", channel.count())
	}
}

func TestStaleSuppressionEntriesArePruned(t *testing.T) {
	channel := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{channel}, nil, time.Hour, zerolog.Nop())

	clock := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	d.OnStatusComputed(context.Background(), nil, missingAlert())

	clock = clock.Add(25 * time.Hour)
	other := missingAlert()
	other.FeedName = "billing"
	d.OnStatusComputed(context.Background(), nil, other)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lastSent) != 1 {
		t.Fatalf("expired suppression entries should be dropped, have %d", len(d.lastSent))
	}
	if _, ok := d.lastSent["billing|2025-06-10"]; !ok {
		t.Fatal("current suppression entry should be kept")
	}
}

func TestVerdictTransitionAlwaysNotifies(t *testing.T) {
	channel := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{channel}, nil, time.Hour, zerolog.Nop())

	d.OnStatusComputed(context.Background(), nil, missingAlert())

	prev := monitor.VerdictMissing
	partial := missingAlert()
	partial.Verdict = monitor.VerdictPartial
	partial.RecordCount = 320
	d.OnStatusComputed(context.Background(), &prev, partial)

	if channel.count() != 2 {
		t.Fatalf("transition should notify, got %d sends", channel.count())
	}
}

func TestChannelFailureIsIsolatedAndAudited(t *testing.T) {
	failing := &fakeChannel{name: "email", err: errors.New("smtp refused")}
	healthy := &fakeChannel{name: "webhook"}
	audit := &fakeAuditLog{}
	d := NewDispatcher([]Channel{failing, healthy}, audit, time.Hour, zerolog.Nop())

	d.OnStatusComputed(context.Background(), nil, missingAlert())

	if healthy.count() != 1 {
		t.Fatal("healthy channel should still deliver")
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(audit.entries))
	}

	byChannel := map[string]storage.AlertLogEntry{}
	for _, entry := range audit.entries {
		byChannel[entry.Channel] = entry
	}
	if byChannel["email"].Outcome != storage.OutcomeFailed || byChannel["email"].Error == nil {
		t.Fatalf("email entry should be failed with error, got %+v", byChannel["email"])
	}
	if byChannel["webhook"].Outcome != storage.OutcomeSent {
		t.Fatalf("webhook entry should be sent, got %+v", byChannel["webhook"])
	}
}
