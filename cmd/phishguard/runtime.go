package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/agent"
	"github.com/triage-ai/phishguard/internal/classify"
	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/settings"
	"github.com/triage-ai/phishguard/internal/storage"
	"github.com/triage-ai/phishguard/internal/store"
	"go.uber.org/zap"
)

// host is the set of browser side effects the agent performs.
type host interface {
	action.Navigator
	action.LinkMarker
	action.Presenter
	agent.Opener
}

// runtime is the fully wired agent shared by serve and the one-shot commands.
type runtime struct {
	store      *store.Store
	settings   *settings.Store
	classifier *classify.Client
	dispatcher *action.Dispatcher
	agent      *agent.Agent
	events     storage.EventWriter
	logger     *zap.Logger
}

// openSettings opens the configured backend and loads the persisted settings.
func openSettings(ctx context.Context, logger *zap.Logger) (*store.Store, *settings.Store, error) {
	driver, dsn := store.DriverPostgres, viper.GetString("postgres_dsn")
	if dsn == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, nil, err
		}
		driver, dsn = store.DriverSQLite, filepath.Join(dir, "phishguard.db")
	}

	db, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("openSettings: %w", err)
	}
	logger.Debug("settings store opened", zap.String("driver", driver))

	st := settings.NewStore(db, logger)
	if err := st.Load(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("openSettings: %w", err)
	}
	if apiURL := viper.GetString("api_url"); apiURL != "" && apiURL != st.APIURL() {
		if err := st.SetAPIURL(ctx, apiURL); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("openSettings: %w", err)
		}
	}
	return db, st, nil
}

// newEventWriter returns the ClickHouse writer when configured, falling back
// to the log writer.
func newEventWriter(logger *zap.Logger) storage.EventWriter {
	dsn := viper.GetString("clickhouse_dsn")
	if dsn == "" {
		logger.Debug("no clickhouse dsn set, using log writer")
		return storage.NewLogWriter(logger)
	}
	chWriter, err := storage.NewClickHouseWriter(dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

func newRuntime(ctx context.Context, h host, blockedPage string, logger *zap.Logger) (*runtime, error) {
	db, st, err := openSettings(ctx, logger)
	if err != nil {
		return nil, err
	}

	classifier, err := classify.NewClient(classify.Config{
		BaseURL: st.APIURL,
		Timeout: viper.GetDuration("classify_timeout"),
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	events := newEventWriter(logger)

	dispatcher, err := action.NewDispatcher(action.Config{
		Settings:    st,
		Navigator:   h,
		Marker:      h,
		Presenter:   h,
		Events:      events,
		BlockedPage: blockedPage,
	}, logger)
	if err != nil {
		events.Close()
		_ = db.Close()
		return nil, err
	}

	cache := engine.NewResultCache(viper.GetInt("cache_size"), viper.GetDuration("cache_ttl"))
	scanner := engine.NewScanner(cache, classifier, logger)

	ag, err := agent.New(agent.Config{
		Scanner:    scanner,
		Dispatcher: dispatcher,
		Settings:   st,
		Opener:     h,
	}, logger)
	if err != nil {
		events.Close()
		_ = db.Close()
		return nil, err
	}

	return &runtime{
		store:      db,
		settings:   st,
		classifier: classifier,
		dispatcher: dispatcher,
		agent:      ag,
		events:     events,
		logger:     logger,
	}, nil
}

// Close flushes pending events and closes the settings store.
func (r *runtime) Close() {
	r.events.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing settings store failed", zap.Error(err))
	}
}
