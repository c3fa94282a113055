package registry

import (
	"testing"
	"time"

	"feedwatch/internal/config"
)

func validEntry() config.FeedConfig {
	return config.FeedConfig{
		Name:             "orders",
		SourceTable:      "orders",
		DateColumn:       "order_date",
		ExpectedTime:     "10:30",
		ToleranceMinutes: 45,
		MinRecords:       500,
	}
}

func TestNewBuildsValidatedFeeds(t *testing.T) {
	reg, err := New([]config.FeedConfig{validEntry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	feed, ok := reg.Get("orders")
	if !ok {
		t.Fatal("feed should be registered")
	}
	if feed.ExpectedTime.Hour != 10 || feed.ExpectedTime.Minute != 30 {
		t.Fatalf("unexpected expected time %+v", feed.ExpectedTime)
	}
	if feed.Tolerance != 45*time.Minute {
		t.Fatalf("unexpected tolerance %s", feed.Tolerance)
	}
}

func TestNewRejectsMalformedEntries(t *testing.T) {
	cases := map[string]func(*config.FeedConfig){
		"missing name":   func(e *config.FeedConfig) { e.Name = "" },
		"bad table":      func(e *config.FeedConfig) { e.SourceTable = "orders; drop table x" },
		"bad column":     func(e *config.FeedConfig) { e.DateColumn = "1col" },
		"bad time":       func(e *config.FeedConfig) { e.ExpectedTime = "25:99" },
		"neg tolerance":  func(e *config.FeedConfig) { e.ToleranceMinutes = -1 },
	}

	for name, mutate := range cases {
		entry := validEntry()
		mutate(&entry)
		if _, err := New([]config.FeedConfig{entry}); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	if _, err := New([]config.FeedConfig{validEntry(), validEntry()}); err == nil {
		t.Fatal("duplicate feed names should fail")
	}
}

func TestListIsDeterministic(t *testing.T) {
	b := validEntry()
	b.Name = "billing"
	a := validEntry()

	reg, err := New([]config.FeedConfig{a, b})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	feeds := reg.List()
	if len(feeds) != 2 || feeds[0].Name != "billing" || feeds[1].Name != "orders" {
		t.Fatalf("unexpected order: %+v", feeds)
	}
}
