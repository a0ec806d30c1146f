package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	route "github.com/bassista/go_syncstore/internal/api/route"
	appctx "github.com/bassista/go_syncstore/internal/app"
	"github.com/bassista/go_syncstore/internal/cache"
	"github.com/bassista/go_syncstore/internal/config"
	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/storage"
	"github.com/bassista/go_syncstore/internal/syncstore"
	"github.com/bassista/go_syncstore/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/enrichman/httpgrace"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	// Set log level from configuration
	if !logger.SetLevel(cfg.Misc.LogLevel) {
		logger.WithComponent("main").Warnf("invalid log level '%s', keeping '%s'", cfg.Misc.LogLevel, logger.Logger.GetLevel())
	}
	logger.WithComponent("main").Debugf("log level set to: %s", logger.Logger.GetLevel())
	logger.WithComponent("main").Infof("App will run on port: %d", cfg.Server.Port)

	store, err := newStorage(cfg.Storage)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init storage: %v", err)
	}

	if err := telemetry.Register(prometheus.DefaultRegisterer); err != nil {
		logger.WithComponent("main").Fatalf("cannot register metrics: %v", err)
	}
	notifier := telemetry.Honeybadger()
	metrics := telemetry.NewMetrics()

	hub := notify.NewHub()
	registry := cache.NewRegistry(syncstore.Backend{
		Storage:  store,
		Channel:  hub,
		Reporter: newReporter(notifier, metrics),
		Observer: metrics,
	}, cfg.Storage.Enabled)

	app, err := appctx.New(cfg, store, hub, registry)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		logger.WithComponent("main").Fatalf("%v", err)
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := route.SetupRoutes(app, notifier)
	srv := createGraceHttpServer(app.BaseCtx, "main-server", app.Config.Server, r)

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

// newStorage builds the storage backend named by the configuration.
func newStorage(cfg config.StorageConfig) (storage.KeyValueStore, error) {
	store, err := storage.NewStorageFromType(cfg.Type, cfg.FilePath, appctx.StorageOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("main").Infof("storage: type=%s enabled=%v read_only=%v quota=%d", cfg.Type, cfg.Enabled, cfg.ReadOnly, cfg.QuotaBytes)
	return store, nil
}

// newReporter logs every store failure, counts it and forwards it to Honeybadger when configured.
func newReporter(notifier telemetry.Notifier, metrics *telemetry.Metrics) syncstore.Reporter {
	reporters := syncstore.MultiReporter{syncstore.NewLogReporter(), metrics}
	if hb := telemetry.NewHoneybadgerReporter(notifier); hb != nil {
		reporters = append(reporters, hb)
	}
	return reporters
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
