package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/webordinary/router/internal/awsqueue"
	"github.com/webordinary/router/internal/config"
	"github.com/webordinary/router/internal/correlator"
	"github.com/webordinary/router/internal/ownership"
	"github.com/webordinary/router/internal/queueregistry"
	"github.com/webordinary/router/internal/reaper"
	"github.com/webordinary/router/internal/router"
	"github.com/webordinary/router/internal/store"
	"github.com/webordinary/router/internal/tenantresolve"
)

// app holds every long-lived component the composition root builds,
// so both `serve` and `reap-once` can share the exact same wiring.
type app struct {
	cfg   config.Config
	db    *sql.DB
	store *store.Store
	core  *router.CoreContext
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	st := store.New(db)

	for _, entry := range cfg.TenantEntries() {
		if err := st.UpsertTenantConfig(ctx, entry); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed tenant config %s: %w", entry.Identity, err)
		}
	}

	queueClient, err := awsqueue.New(ctx, cfg.AWSRegion)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue client: %w", err)
	}

	registry := queueregistry.New(queueClient, st)
	ownershipStore := ownership.New(st, cfg.TOwner, slog.Default())
	resolver := tenantresolve.New(st, st, st)
	rtr := router.New(resolver, registry, ownershipStore, queueClient, st, slog.Default())
	corr := correlator.New(queueClient, slog.Default())

	rpr := reaper.New(st, registry, ownershipStore, st, slog.Default())
	rpr.TOrphan = cfg.TOrphan
	rpr.TOwnerHard = cfg.TOwnerHard

	return &app{
		cfg:   cfg,
		db:    db,
		store: st,
		core:  router.NewCoreContext(rtr, corr, rpr),
	}, nil
}

func (a *app) Close() error {
	if _, err := a.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("wal checkpoint failed", "error", err)
	}
	return a.db.Close()
}
