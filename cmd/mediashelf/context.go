package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mediashelf/internal/config"
	"mediashelf/internal/daemon"
	"mediashelf/internal/library/store"
	"mediashelf/internal/logging"
	"mediashelf/internal/match"
	"mediashelf/internal/match/tmdb"
	"mediashelf/internal/reconcile"
	"mediashelf/internal/scanner"
	"mediashelf/internal/storage"
	"mediashelf/internal/watchstate"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	dbOnce sync.Once
	db     *storage.DB
	dbErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// openStore opens the engine database once per invocation. The handle stays
// open for the process lifetime; sqlite cleans up on exit.
func (c *commandContext) openStore() (*store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.dbOnce.Do(func() {
		c.db, c.dbErr = storage.Open(cfg.DatabasePath())
	})
	if c.dbErr != nil {
		return nil, c.dbErr
	}
	return store.New(c.db, logging.NewNop()), nil
}

func (c *commandContext) openWatchStore() (*watchstate.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if _, err := c.openStore(); err != nil {
		return nil, err
	}
	return watchstate.New(c.db, cfg.Watch.CompletedFraction, logging.NewNop()), nil
}

// buildOrchestrator wires the full cycle pipeline behind one logger.
func (c *commandContext) buildOrchestrator(logger *slog.Logger) (*reconcile.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.dbOnce.Do(func() {
		c.db, c.dbErr = storage.Open(cfg.DatabasePath())
	})
	if c.dbErr != nil {
		return nil, c.dbErr
	}

	libStore := store.New(c.db, logger)
	cacheTTL := time.Duration(cfg.Matcher.CacheTTLHours) * time.Hour
	cache := reconcile.NewProviderCache(libStore, cacheTTL, nil)
	provider := tmdb.New(cfg.TMDB.BaseURL, cfg.TMDB.APIKey, cfg.TMDB.Language)
	matcher := match.New(provider, cache, match.Options{
		HighThreshold:  cfg.Matcher.HighThreshold,
		LowThreshold:   cfg.Matcher.LowThreshold,
		Concurrency:    cfg.Matcher.Concurrency,
		RetryAttempts:  cfg.Matcher.RetryAttempts,
		RetryBaseDelay: time.Duration(cfg.Matcher.RetryBaseMS) * time.Millisecond,
	}, logger)

	return reconcile.New(reconcile.Deps{
		Scanner:     scanner.New(cfg, logger),
		Matcher:     matcher,
		Store:       libStore,
		GraceCycles: cfg.Reconcile.OrphanGraceCycles,
		CacheTTL:    cacheTTL,
		Logger:      logger,
	}), nil
}

func (c *commandContext) buildDaemon(logger *slog.Logger) (*daemon.Daemon, error) {
	orch, err := c.buildOrchestrator(logger)
	if err != nil {
		return nil, err
	}
	return daemon.New(c.config, orch, logger)
}

func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
