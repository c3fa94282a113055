package registry

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"feedwatch/internal/calendar"
	"feedwatch/internal/config"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Feed is a validated registry entry for one monitored feed.
type Feed struct {
	Name            string
	SourceTable     string
	DateColumn      string
	ExpectedTime    calendar.Clock
	Tolerance       time.Duration
	WeekendExpected bool
	MinRecords      int64
	DSN             string
}

// Registry holds the immutable set of configured feeds for a run.
type Registry struct {
	feeds  map[string]Feed
	sorted []Feed
}

// New validates the configured feed entries and builds a registry.
// Any malformed entry fails the whole load.
func New(entries []config.FeedConfig) (*Registry, error) {
	feeds := make(map[string]Feed, len(entries))

	for _, entry := range entries {
		feed, err := buildFeed(entry)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", entry.Name, err)
		}
		if _, exists := feeds[feed.Name]; exists {
			return nil, fmt.Errorf("feed %q: duplicate name", feed.Name)
		}
		feeds[feed.Name] = feed
	}

	sorted := make([]Feed, 0, len(feeds))
	for _, feed := range feeds {
		sorted = append(sorted, feed)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &Registry{feeds: feeds, sorted: sorted}, nil
}

func buildFeed(entry config.FeedConfig) (Feed, error) {
	if entry.Name == "" {
		return Feed{}, fmt.Errorf("name is required")
	}
	if !identifierPattern.MatchString(entry.SourceTable) {
		return Feed{}, fmt.Errorf("source_table %q is not a valid identifier", entry.SourceTable)
	}
	if !identifierPattern.MatchString(entry.DateColumn) {
		return Feed{}, fmt.Errorf("date_column %q is not a valid identifier", entry.DateColumn)
	}
	if entry.ToleranceMinutes < 0 {
		return Feed{}, fmt.Errorf("tolerance_minutes cannot be negative")
	}

	expected, err := calendar.ParseClock(entry.ExpectedTime)
	if err != nil {
		return Feed{}, fmt.Errorf("expected_time: %w", err)
	}

	return Feed{
		Name:            entry.Name,
		SourceTable:     entry.SourceTable,
		DateColumn:      entry.DateColumn,
		ExpectedTime:    expected,
		Tolerance:       time.Duration(entry.ToleranceMinutes) * time.Minute,
		WeekendExpected: entry.WeekendExpected,
		MinRecords:      entry.MinRecords,
		DSN:             entry.DSN,
	}, nil
}

// Get looks up a feed by name.
func (r *Registry) Get(name string) (Feed, bool) {
	feed, ok := r.feeds[name]
	return feed, ok
}

// List returns all feeds in deterministic name order.
func (r *Registry) List() []Feed {
	out := make([]Feed, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Len reports how many feeds are registered.
func (r *Registry) Len() int {
	return len(r.sorted)
}
