package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"feedwatch/internal/registry"
)

// Counter looks up how many records a feed delivered for a COB date.
// Implementations may fail or time out; the sweep converts such errors
// into a failed verdict for that feed only.
type Counter interface {
	Count(ctx context.Context, feed registry.Feed, cobDate time.Time) (int64, error)
}

// SQLCounter counts records in relational feed sources. Pools are
// cached per connection string, so feeds sharing a source share a pool.
type SQLCounter struct {
	defaultDSN string
	logger     zerolog.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewSQLCounter constructs a counter. defaultDSN backs feeds without
// their own connection descriptor.
func NewSQLCounter(defaultDSN string, logger zerolog.Logger) *SQLCounter {
	return &SQLCounter{
		defaultDSN: defaultDSN,
		logger:     logger.With().Str("component", "source_counter").Logger(),
		pools:      make(map[string]*pgxpool.Pool),
	}
}

// Count runs SELECT COUNT(*) against the feed's source table filtered
// on its date column. Table and column names are registry-validated
// identifiers and additionally quoted here.
func (c *SQLCounter) Count(ctx context.Context, feed registry.Feed, cobDate time.Time) (int64, error) {
	pool, err := c.poolFor(ctx, feed)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s = $1",
		pgx.Identifier{feed.SourceTable}.Sanitize(),
		pgx.Identifier{feed.DateColumn}.Sanitize(),
	)

	var count int64
	if err := pool.QueryRow(ctx, query, cobDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s for %s: %w", feed.SourceTable, cobDate.Format("2006-01-02"), err)
	}
	return count, nil
}

func (c *SQLCounter) poolFor(ctx context.Context, feed registry.Feed) (*pgxpool.Pool, error) {
	dsn := feed.DSN
	if dsn == "" {
		dsn = c.defaultDSN
	}
	if dsn == "" {
		return nil, errors.New("no connection descriptor for feed source")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[dsn]; ok {
		return pool, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect feed source: %w", err)
	}

	c.logger.Debug().Str("feed", feed.Name).Msg("opened feed source pool")
	c.pools[dsn] = pool
	return pool, nil
}

// Close releases all cached source pools.
func (c *SQLCounter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for dsn, pool := range c.pools {
		pool.Close()
		delete(c.pools, dsn)
	}
}

var _ Counter = (*SQLCounter)(nil)
