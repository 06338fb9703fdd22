package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geograpy/geograpy/internal/difficulty"
	"github.com/geograpy/geograpy/internal/platform/cache"
	"github.com/geograpy/geograpy/internal/platform/config"
	"github.com/geograpy/geograpy/internal/platform/database"
	"github.com/geograpy/geograpy/internal/progress"
	"github.com/geograpy/geograpy/internal/reward"
	"github.com/geograpy/geograpy/internal/tracker"
)

// readiness is one dependency probed by /readyz.
type readiness struct {
	name  string
	check func(ctx context.Context) error
}

// deps holds everything main opens from the config.
type deps struct {
	store        *progress.Persistence
	difficulties *difficulty.Catalog
	rewards      *reward.Catalog
	events       tracker.EventLogger
	checks       []readiness
	closers      []func()
}

func openDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{events: tracker.NopEventLogger{}}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var err error
	if d.difficulties, d.rewards, err = loadCatalogs(cfg.CatalogPath); err != nil {
		return nil, err
	}

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		d.closers = append(d.closers, db.Close)
		d.checks = append(d.checks, readiness{name: "database", check: db.HealthCheck})

		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		if cfg.Events {
			d.events = tracker.NewPostgresEventLogger(db.Pool)
		}
	}

	backend, err := openBackend(ctx, cfg, db, d)
	if err != nil {
		return nil, err
	}
	d.store = progress.NewPersistence(backend)
	d.closers = append(d.closers, func() {
		if err := backend.Close(); err != nil {
			slog.Warn("closing progress backend", "error", err)
		}
	})

	ok = true
	return d, nil
}

func openBackend(ctx context.Context, cfg *config.Config, db *database.DB, d *deps) (progress.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return progress.NewMemoryBackend(), nil
	case config.DriverSQLite:
		return progress.OpenSQLite(cfg.Store.SQLitePath)
	case config.DriverPostgres:
		return progress.NewPostgresBackend(db.Pool)
	case config.DriverRedis:
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		d.closers = append(d.closers, func() { c.Close() })
		d.checks = append(d.checks, readiness{name: "cache", check: c.HealthCheck})
		return progress.NewRedisBackend(c.Client, c.Key("progress", ""))
	case config.DriverFile:
		return progress.NewFileBackend(cfg.Store.ProgressDir)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// loadCatalogs reads the difficulty and reward tables from path, or returns
// the built-in ones when path is empty.
func loadCatalogs(path string) (*difficulty.Catalog, *reward.Catalog, error) {
	if path == "" {
		return difficulty.Default(), reward.Default(), nil
	}

	dc, err := difficulty.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	rc, err := reward.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("catalog loaded", "path", path, "difficulties", len(dc.Keys()))
	return dc, rc, nil
}

// Close releases resources in reverse opening order.
func (d *deps) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
