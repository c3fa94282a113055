package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/monitor"
	"feedwatch/internal/storage"
)

// Dispatcher decides whether a computed status warrants a notification
// and fans it out to the configured channels. Channel failures are
// isolated: they are logged, recorded in the audit trail, and never
// surface to the evaluation flow.
type Dispatcher struct {
	channels []Channel
	audit    storage.AlertLogStore
	realert  time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDispatcher constructs a dispatcher. audit may be nil when the
// monitoring database is not configured.
func NewDispatcher(channels []Channel, audit storage.AlertLogStore, realert time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		audit:    audit,
		realert:  realert,
		logger:   logger.With().Str("component", "alert_dispatcher").Logger(),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// OnStatusComputed fires notifications for anomalous verdicts when the
// verdict changed, was never seen, or the re-alert interval elapsed
// since the last notification for the same feed and COB date. Repeated
// identical verdicts from every poll tick therefore produce at most one
// alert per interval.
func (d *Dispatcher) OnStatusComputed(ctx context.Context, previous *monitor.Verdict, alert Alert) {
	if !alert.Verdict.Anomalous() {
		return
	}
	if !d.shouldNotify(previous, alert) {
		return
	}

	for _, channel := range d.channels {
		d.deliver(ctx, channel, alert)
	}
}

func (d *Dispatcher) shouldNotify(previous *monitor.Verdict, alert Alert) bool {
	key := alert.FeedName + "|" + alert.COBDate.Format("2006-01-02")
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Entries past the re-alert interval no longer suppress anything;
	// dropping them keeps the map bounded over long runs.
	for k, last := range d.lastSent {
		if now.Sub(last) >= d.realert {
			delete(d.lastSent, k)
		}
	}

	if previous == nil || *previous != alert.Verdict {
		d.lastSent[key] = now
		return true
	}

	last, seen := d.lastSent[key]
	if seen && now.Sub(last) < d.realert {
		return false
	}
	d.lastSent[key] = now
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, channel Channel, alert Alert) {
	entry := storage.AlertLogEntry{
		FeedName: alert.FeedName,
		COBDate:  alert.COBDate,
		Channel:  channel.Name(),
		Outcome:  storage.OutcomeSent,
		Message:  renderMessage(alert),
	}

	if err := channel.Send(ctx, alert); err != nil {
		d.logger.Error().Err(err).
			Str("feed", alert.FeedName).
			Str("channel", channel.Name()).
			Msg("alert delivery failed")

		entry.Outcome = storage.OutcomeFailed
		msg := err.Error()
		entry.Error = &msg
	} else {
		d.logger.Info().
			Str("feed", alert.FeedName).
			Str("channel", channel.Name()).
			Str("status", alert.Verdict.String()).
			Msg("alert sent")
	}

	d.record(ctx, entry)
}

func (d *Dispatcher) record(ctx context.Context, entry storage.AlertLogEntry) {
	if d.audit == nil {
		return
	}
	if _, err := d.audit.InsertAlertLog(ctx, entry); err != nil {
		d.logger.Error().Err(err).Str("feed", entry.FeedName).Msg("failed to persist alert log entry")
	}
}

// ChannelNames lists the configured channel names, for diagnostics.
func (d *Dispatcher) ChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for _, channel := range d.channels {
		names = append(names, channel.Name())
	}
	return names
}
