package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"feedwatch/internal/monitor"
)

// StatusRecord is the persisted arrival status of one feed for one COB
// date. At most one row exists per (FeedName, COBDate).
type StatusRecord struct {
	FeedName        string
	COBDate         time.Time
	Verdict         monitor.Verdict
	RecordCount     int64
	CompletenessPct decimal.Decimal
	ExpectedTime    string
	LastChecked     time.Time
	Error           *string
}

// AlertLogEntry records one attempted notification. Append-only.
type AlertLogEntry struct {
	ID        int64
	FeedName  string
	COBDate   time.Time
	Channel   string
	Outcome   string
	Message   string
	Error     *string
	CreatedAt time.Time
}

// Alert outcome values stored in the audit log.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)
