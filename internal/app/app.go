package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"feedwatch/internal/alerting"
	"feedwatch/internal/api"
	"feedwatch/internal/calendar"
	"feedwatch/internal/config"
	"feedwatch/internal/logging"
	"feedwatch/internal/registry"
	"feedwatch/internal/scheduler"
	"feedwatch/internal/service"
	"feedwatch/internal/source"
	"feedwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) buildCalendar() (*calendar.Calendar, error) {
	return calendar.New(calendar.Options{
		Timezone:   a.Config.Calendar.Timezone,
		CutoffHour: a.Config.Calendar.CutoffHour,
		Holidays:   a.Config.Calendar.Holidays,
	})
}

func (a *App) buildRegistry() (*registry.Registry, error) {
	return registry.New(a.Config.Feeds)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newDispatcher(audit storage.AlertLogStore) *alerting.Dispatcher {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var channels []alerting.Channel
	if a.Config.Alerting.Email.Enabled {
		channels = append(channels, alerting.NewEmailNotifier(a.Config.Alerting.Email, a.Logger))
	}
	if a.Config.Alerting.Webhook.Enabled {
		cfg := a.Config.Alerting.Webhook
		channels = append(channels, alerting.NewWebhookNotifier(cfg.URL, cfg.RequestTimeout, a.Logger))
	}
	if len(channels) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no channels configured")
		return nil
	}

	return alerting.NewDispatcher(channels, audit, a.Config.Alerting.RealertInterval, a.Logger)
}

// buildService wires the sweep service and its collaborators. The
// returned cleanup func releases source pools (and the store when one
// was opened).
func (a *App) buildService(ctx context.Context) (*service.Service, *registry.Registry, *calendar.Calendar, func(), error) {
	cal, err := a.buildCalendar()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reg, err := a.buildRegistry()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	} else if err := store.EnsureSchema(ctx); err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, nil, nil, nil, err
	}

	counter := source.NewSQLCounter(a.Config.Database.DSN, a.Logger)

	cleanup := func() {
		counter.Close()
		if closeStore != nil {
			closeStore()
		}
	}

	var statuses storage.StatusStore
	var audit storage.AlertLogStore
	if store != nil {
		statuses = store
		audit = store
	}

	dispatcher := a.newDispatcher(audit)
	svc := service.New(a.Config, reg, counter, statuses, dispatcher, cal, a.Logger)
	return svc, reg, cal, cleanup, nil
}

// Run executes the long-running monitoring service: the poll scheduler
// plus the HTTP API, stopped together on SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, reg, cal, cleanup, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	handlers := api.NewHandlers(svc, sched, reg, cal, a.Logger)
	server := api.NewServer(a.Config.HTTP, api.NewRouter(handlers, a.Logger), a.Logger)

	a.Logger.Info().Int("feeds", reg.Len()).Msg("starting feed monitor")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := sched.Run(groupCtx, svc.Sweep)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		return server.Start()
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("feed monitor stopped")
	return nil
}

// CheckOptions configure a one-off sweep.
type CheckOptions struct {
	COBDate *time.Time
}

// BackfillOptions configure historical re-evaluation.
type BackfillOptions struct {
	From time.Time
	To   time.Time
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// SeedOptions configure demo data generation.
type SeedOptions struct {
	Days int
}

// ExportOptions hold parameters for exporting status history.
type ExportOptions struct {
	Feed      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions configure a synthetic alert.
type SimulateOptions struct {
	Feed    string
	Verdict string
}
