package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"feedwatch/internal/monitor"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertStatusSQL = `INSERT INTO feed_status (
        feed_name,
        cob_date,
        status,
        record_count,
        completeness_pct,
        expected_time,
        last_checked,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (feed_name, cob_date) DO UPDATE
    SET
        status           = EXCLUDED.status,
        record_count     = EXCLUDED.record_count,
        completeness_pct = EXCLUDED.completeness_pct,
        expected_time    = EXCLUDED.expected_time,
        last_checked     = EXCLUDED.last_checked,
        error            = EXCLUDED.error;`

	getStatusSQL = `SELECT
        feed_name, cob_date, status, record_count, completeness_pct, expected_time, last_checked, error
    FROM feed_status
    WHERE feed_name = $1 AND cob_date = $2;`

	rangeStatusesSQL = `SELECT
        feed_name, cob_date, status, record_count, completeness_pct, expected_time, last_checked, error
    FROM feed_status
    WHERE feed_name = $1
      AND cob_date >= $2
      AND cob_date <= $3
    ORDER BY cob_date;`

	listRecentStatusesSQL = `SELECT
        feed_name, cob_date, status, record_count, completeness_pct, expected_time, last_checked, error
    FROM feed_status
    ORDER BY last_checked DESC
    LIMIT $1;`

	deleteStatusesBeforeSQL = `DELETE FROM feed_status WHERE cob_date < $1;`

	insertAlertLogSQL = `INSERT INTO alert_log (
        feed_name,
        cob_date,
        channel,
        outcome,
        message,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentAlertLogsSQL = `SELECT
        id, feed_name, cob_date, channel, outcome, message, error, created_at
    FROM alert_log
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertLogsBeforeSQL = `DELETE FROM alert_log WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// StatusStore defines operations for feed status persistence.
type StatusStore interface {
	UpsertStatus(ctx context.Context, record StatusRecord) error
	GetStatus(ctx context.Context, feedName string, cobDate time.Time) (*StatusRecord, error)
	RangeStatuses(ctx context.Context, feedName string, from, to time.Time) ([]StatusRecord, error)
	ListRecentStatuses(ctx context.Context, limit int) ([]StatusRecord, error)
	DeleteStatusesBefore(ctx context.Context, olderThan time.Time) error
}

// AlertLogStore defines operations for the notification audit trail.
type AlertLogStore interface {
	InsertAlertLog(ctx context.Context, entry AlertLogEntry) (AlertLogEntry, error)
	ListRecentAlertLogs(ctx context.Context, limit int) ([]AlertLogEntry, error)
	DeleteAlertLogsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to feed statuses and the alert audit log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertStatus persists or updates the status record for a (feed, COB
// date) key. The single INSERT .. ON CONFLICT keeps concurrent writes
// to the same key atomic.
func (s *Store) UpsertStatus(ctx context.Context, record StatusRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if record.Error != nil {
		errMsg = *record.Error
	}

	_, execErr := pool.Exec(ctx, upsertStatusSQL,
		record.FeedName,
		record.COBDate,
		record.Verdict.String(),
		record.RecordCount,
		record.CompletenessPct.String(),
		record.ExpectedTime,
		record.LastChecked,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert feed status: %w", execErr)
	}
	return nil
}

// GetStatus fetches the stored status for one key, or nil when absent.
func (s *Store) GetStatus(ctx context.Context, feedName string, cobDate time.Time) (*StatusRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	record, scanErr := scanStatusRecord(pool.QueryRow(ctx, getStatusSQL, feedName, cobDate))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get feed status: %w", scanErr)
	}
	return &record, nil
}

// RangeStatuses lists stored statuses for a feed between two COB dates
// inclusive, ascending by date.
func (s *Store) RangeStatuses(ctx context.Context, feedName string, from, to time.Time) ([]StatusRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, rangeStatusesSQL, feedName, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("range feed statuses: %w", queryErr)
	}
	defer rows.Close()

	return collectStatusRecords(rows, 0)
}

// ListRecentStatuses lists the most recently checked statuses across all feeds.
func (s *Store) ListRecentStatuses(ctx context.Context, limit int) ([]StatusRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentStatusesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent statuses: %w", queryErr)
	}
	defer rows.Close()

	return collectStatusRecords(rows, limit)
}

// DeleteStatusesBefore prunes status rows older than the retention horizon.
func (s *Store) DeleteStatusesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteStatusesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete statuses before: %w", execErr)
	}
	return nil
}

// InsertAlertLog appends one notification attempt to the audit trail.
func (s *Store) InsertAlertLog(ctx context.Context, entry AlertLogEntry) (AlertLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertLogEntry{}, err
	}

	var errMsg interface{}
	if entry.Error != nil {
		errMsg = *entry.Error
	}

	row := pool.QueryRow(ctx, insertAlertLogSQL,
		entry.FeedName,
		entry.COBDate,
		entry.Channel,
		entry.Outcome,
		entry.Message,
		errMsg,
	)
	if scanErr := row.Scan(&entry.ID, &entry.CreatedAt); scanErr != nil {
		return AlertLogEntry{}, fmt.Errorf("insert alert log: %w", scanErr)
	}
	return entry, nil
}

// ListRecentAlertLogs lists most recent notification attempts.
func (s *Store) ListRecentAlertLogs(ctx context.Context, limit int) ([]AlertLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertLogsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alert logs: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]AlertLogEntry, 0, limit)
	for rows.Next() {
		var entry AlertLogEntry
		var errMsg sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.FeedName,
			&entry.COBDate,
			&entry.Channel,
			&entry.Outcome,
			&entry.Message,
			&errMsg,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			entry.Error = &msg
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// DeleteAlertLogsBefore prunes audit entries older than the retention horizon.
func (s *Store) DeleteAlertLogsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertLogsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alert logs before: %w", execErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatusRecord(row rowScanner) (StatusRecord, error) {
	var (
		record       StatusRecord
		verdictStr   string
		completeness string
		errMsg       sql.NullString
	)

	if err := row.Scan(
		&record.FeedName,
		&record.COBDate,
		&verdictStr,
		&record.RecordCount,
		&completeness,
		&record.ExpectedTime,
		&record.LastChecked,
		&errMsg,
	); err != nil {
		return StatusRecord{}, err
	}

	verdict, err := monitor.ParseVerdict(verdictStr)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("parse verdict: %w", err)
	}
	record.Verdict = verdict

	record.CompletenessPct, err = decimal.NewFromString(completeness)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("parse completeness pct: %w", err)
	}

	if errMsg.Valid {
		msg := errMsg.String
		record.Error = &msg
	}

	return record, nil
}

func collectStatusRecords(rows pgx.Rows, sizeHint int) ([]StatusRecord, error) {
	records := make([]StatusRecord, 0, sizeHint)
	for rows.Next() {
		record, err := scanStatusRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
