package app

import (
	"context"
	"errors"
	"time"

	"feedwatch/internal/alerting"
	"feedwatch/internal/monitor"
	"feedwatch/internal/storage"
)

// SimulateAlert pushes a synthetic anomalous status through the
// configured alert channels, so delivery can be verified without
// waiting for a real incident. The audit log is written when a
// database is configured.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	verdict, err := monitor.ParseVerdict(opts.Verdict)
	if err != nil {
		return err
	}
	if !verdict.Anomalous() {
		return errors.New("verdict " + verdict.String() + " would never raise an alert")
	}

	feedName := opts.Feed
	if feedName == "" {
		feedName = "simulated-feed"
	}

	var audit storage.AlertLogStore
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		if closeStore != nil {
			defer closeStore()
		}
		audit = store
	}

	dispatcher := a.newDispatcher(audit)
	if dispatcher == nil {
		return errors.New("no alert channels configured")
	}

	now := time.Now().UTC()
	alert := alerting.Alert{
		FeedName:        feedName,
		COBDate:         midnightUTC(now.AddDate(0, 0, -1)),
		Verdict:         verdict,
		RecordCount:     0,
		CompletenessPct: monitor.Completeness(0, 1),
		ExpectedTime:    "09:00",
		ObservedAt:      now,
		Error:           "simulated alert, not a real incident",
	}

	a.Logger.Info().Str("feed", feedName).Str("status", verdict.String()).Strs("channels", dispatcher.ChannelNames()).Msg("dispatching simulated alert")
	dispatcher.OnStatusComputed(ctx, nil, alert)
	return nil
}
