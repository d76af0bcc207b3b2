// Package app builds the service graph from configuration, once per process.
package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dasmlab/komuniti/pkg/announce"
	"github.com/dasmlab/komuniti/pkg/cache"
	"github.com/dasmlab/komuniti/pkg/config"
	"github.com/dasmlab/komuniti/pkg/service"
	"github.com/dasmlab/komuniti/pkg/translate"
	"github.com/sirupsen/logrus"
)

// App holds the long-lived components shared by every request.
type App struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Store         cache.Store
	Translator    translate.Translator // nil in pass-through mode
	Service       *service.TranslationService
	Announcements *announce.Repository // nil when no records database is configured
}

// NewLogger builds a logrus logger from the log section.
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// New wires the cache, translator, orchestrator and optional announcement source.
// A translator that cannot be configured is logged and the service runs without it.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := cache.Open(ctx, cache.Config{
		Driver:       cfg.Cache.Driver,
		DSN:          cfg.Cache.DSN,
		Database:     cfg.Cache.Database,
		Table:        cfg.Cache.Table,
		StrictUpsert: cfg.Cache.StrictUpsert,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	translator, err := newTranslator(cfg.Translator, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Translator: translator,
		Service:    service.NewTranslationService(store, translator, logger),
	}

	if cfg.Records.DSN != "" {
		repo, err := announce.Open(ctx, cfg.Records.Driver, cfg.Records.DSN, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			a.Close()
			return nil, err
		}
		a.Announcements = repo
	}

	logger.WithFields(logrus.Fields{
		"translator":    a.Service.TranslatorName(),
		"cache_driver":  cfg.Cache.Driver,
		"cache_table":   cfg.Cache.Table,
		"announcements": a.Announcements != nil,
	}).Info("Application initialised")

	return a, nil
}

func newTranslator(cfg config.TranslatorConfig, logger *logrus.Logger) (translate.Translator, error) {
	engine, err := translate.ParseEngineType(cfg.Engine)
	if err != nil {
		return nil, err
	}

	translator, err := translate.NewTranslator(translate.Config{
		Engine:            engine,
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout.Duration,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger,
	})
	if errors.Is(err, translate.ErrNotConfigured) {
		logger.WithError(err).Warn("Machine translation unavailable, texts will pass through untranslated")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return translator, nil
}

// CheckTranslator probes the translator once. It never fails start-up.
func (a *App) CheckTranslator(ctx context.Context) {
	if a.Translator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.Logger.Info("Checking translator health...")
	if err := a.Translator.CheckHealth(ctx); err != nil {
		a.Logger.WithError(err).Warn("Translator health check failed, but continuing anyway")
		return
	}
	a.Logger.Info("Translator health check passed")
}

// Close releases the cache and records connections.
func (a *App) Close() error {
	var errs []error
	if a.Announcements != nil {
		errs = append(errs, a.Announcements.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
