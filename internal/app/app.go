package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bassista/go_syncstore/internal/cache"
	"github.com/bassista/go_syncstore/internal/config"
	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/storage"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config   *config.Config
	Storage  storage.KeyValueStore
	Hub      *notify.Hub
	Registry *cache.Registry

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

func New(cfg *config.Config, store storage.KeyValueStore, hub *notify.Hub, registry *cache.Registry) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("storage is nil")
	}
	if hub == nil {
		return nil, errors.New("hub is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:   cfg,
		Storage:  store,
		Hub:      hub,
		Registry: registry,
		BaseCtx:  ctx,
		Cancel:   cancel,
	}, nil
}

// StorageOptions translates the storage section of cfg into backend options.
func StorageOptions(cfg config.StorageConfig) []storage.Option {
	var opts []storage.Option
	if cfg.QuotaBytes > 0 {
		opts = append(opts, storage.WithQuota(cfg.QuotaBytes))
	}
	if cfg.ReadOnly {
		opts = append(opts, storage.ReadOnly())
	}
	if !cfg.Enabled {
		opts = append(opts, storage.Disabled())
	}
	return opts
}

// Shutdown closes every open store and cancels BaseCtx, which stops the watchers.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	if a.Registry != nil {
		a.Registry.CloseAll()
	}
	a.Cancel()
}

// StartWatchers feeds changes made to the storage by other processes into the hub.
// Backends that cannot observe outside writes are skipped.
func (a *App) StartWatchers() error {
	w, ok := a.Storage.(storage.Watcher)
	if !ok {
		logger.WithComponent("app").Info("storage backend has no watcher, external changes will not be observed")
		return nil
	}
	if !a.Config.Storage.Enabled {
		return nil
	}
	if err := w.StartWatcher(a.BaseCtx, a.Hub); err != nil {
		return fmt.Errorf("cannot start storage watcher: %w", err)
	}
	logger.WithComponent("app").Debug("storage watcher started")
	return nil
}
