// Package app aggregates configuration and shared dependencies for the CLI
// commands, and assembles the daemon for `run`.
package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"npsh-guard/internal/alerting"
	"npsh-guard/internal/config"
	"npsh-guard/internal/curve"
	"npsh-guard/internal/fieldbus"
	"npsh-guard/internal/httpapi"
	"npsh-guard/internal/metrics"
	"npsh-guard/internal/service"
	"npsh-guard/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
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

// curveStore picks the persistence backend for curves: the database when
// configured, the YAML file store otherwise.
func (a *App) curveStore(store *storage.Store) (curve.Store, error) {
	if store != nil {
		return store, nil
	}
	return curve.NewFileStore(a.Config.Curves.Dir)
}

// Run executes the long-running monitoring daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; curve and audit persistence use local files only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var eventStore storage.EventStore
	if store != nil {
		eventStore = store
	}

	curveStore, err := a.curveStore(store)
	if err != nil {
		return err
	}

	svc, err := service.New(service.Options{
		PumpType:    a.Config.Pump.Type,
		GracePeriod: a.Config.Safety.GracePeriod,
		Interval:    a.Config.Acquisition.Interval,
		Fieldbus: fieldbus.Config{
			Endpoint:   a.Config.PLC.Endpoint,
			UnitID:     a.Config.PLC.UnitID,
			Timeout:    a.Config.PLC.Timeout,
			RetryDelay: a.Config.PLC.RetryDelay,
		},
		DisplayCapacity: a.Config.History.DisplayCapacity,
		ExportCapacity:  a.Config.History.ExportCapacity,
		CurveStore:      curveStore,
		EventStore:      eventStore,
		Notifier:        a.newNotifier(),
	}, a.Logger, m)
	if err != nil {
		return err
	}

	api := httpapi.New(svc, eventStore, registry, a.Logger)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- svc.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		errCh <- api.Run(runCtx, a.Config.HTTP.Listen)
	}()

	a.Logger.Info().Msg("starting monitoring daemon")
	err = <-errCh
	stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring daemon stopped")
	return nil
}
