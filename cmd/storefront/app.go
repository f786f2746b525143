package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/crosstab"
	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/interactions"
	"finitefield.org/storefront/internal/kv"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/platform/config"
	"finitefield.org/storefront/internal/status"
)

const storageCheckKey = "storefront:healthz"

// app wires the storefront's long-lived dependencies.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	bundle     *i18n.Bundle
	catalog    *catalog.Client
	backend    kv.Store
	hub        *crosstab.Hub
	registry   *interactions.Registry
	status     *status.Checker
	views      *views
	assets     fs.FS
	signingKey []byte
	redis      *redis.Client

	streams     context.Context
	stopStreams context.CancelFunc
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{cfg: cfg, logger: logger}
	a.streams, a.stopStreams = context.WithCancel(context.Background())

	bundle, err := i18n.Default(cfg.Locale.Default, cfg.Locale.Supported)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	a.bundle = bundle

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}

	backend, err := kv.Open(kv.Options{
		Driver: cfg.Storage.Driver,
		Dir:    cfg.Storage.Dir,
		TTL:    cfg.Storage.KeyTTL,
		Redis:  a.redis,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.backend = backend

	hubOpts := []crosstab.Option{crosstab.WithLogger(logger)}
	if a.redis != nil {
		hubOpts = append(hubOpts, crosstab.WithRelay(crosstab.NewRedisRelay(a.redis, cfg.Redis.Channel, logger)))
	}
	a.hub = crosstab.NewHub(hubOpts...)
	a.registry = interactions.NewRegistry(backend, a.hub,
		interactions.WithRegistryLogger(logger),
		interactions.WithIdleTTL(cfg.Tabs.IdleTTL),
		interactions.WithMaxTabs(cfg.Tabs.MaxPerVisitor),
	)

	a.catalog = catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithCacheTTL(cfg.Catalog.CacheTTL),
		catalog.WithOffline(cfg.Catalog.Offline),
		catalog.WithLogger(logger),
	)

	templates, assets := embeddedTemplates(), embeddedAssets()
	if cfg.Server.DevMode {
		templates, assets = os.DirFS(templatesDir), os.DirFS(publicDir)
	}
	a.assets = assets
	a.views, err = newViews(templates, cfg.Server.DevMode, bundle)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	a.signingKey = []byte(cfg.Session.SigningKey)
	if len(a.signingKey) == 0 {
		logger.Warn("session signing key not configured, sessions will not survive restarts")
		a.signingKey = mw.NewSigningKey()
	}

	a.status = status.NewChecker()
	a.status.Add("storage", a.checkStorage)
	a.status.Add("catalog", a.checkCatalog)
	if a.redis != nil {
		a.status.Add("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return a, nil
}

func (a *app) checkStorage(ctx context.Context) error {
	if err := a.backend.Save(ctx, storageCheckKey, []byte("ok")); err != nil {
		return err
	}
	_, err := a.backend.Load(ctx, storageCheckKey)
	return err
}

func (a *app) checkCatalog(ctx context.Context) error {
	page, err := a.catalog.Home(ctx)
	if err != nil {
		return err
	}
	if len(page.Products) == 0 {
		return errors.New("catalog returned no products")
	}
	return nil
}

func (a *app) close() {
	if a.stopStreams != nil {
		a.stopStreams()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
}
