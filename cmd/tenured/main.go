// Command tenured serves the Tenure engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/api"
	audithook "github.com/xraph/tenure/audit_hook"
	"github.com/xraph/tenure/internal/config"
	"github.com/xraph/tenure/internal/logging"
	"github.com/xraph/tenure/lock/redislock"
	"github.com/xraph/tenure/observability"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/memory"
	"github.com/xraph/tenure/store/mongo"
	"github.com/xraph/tenure/store/postgres"
	"github.com/xraph/tenure/store/sqlite"
)

func main() {
	conf := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tenured exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := append(cfg.EngineOptions(),
		tenure.WithLogger(logger.Named("engine")),
		tenure.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		tenure.WithPlugin(audithook.New(auditLog(logger.Named("audit")), audithook.WithLogger(logger))),
	)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		opts = append(opts, tenure.WithLocker(redislock.New(rdb,
			redislock.WithTTL(cfg.Redis.LockTTL),
			redislock.WithLogger(logger.Named("lock")),
		)))
	}

	engine, err := tenure.New(s, opts...)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.New(engine,
			api.WithLogger(logger.Named("http")),
			api.WithMetrics(api.NewMetrics(reg)),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metrics := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	errCh := make(chan error, 2)
	for _, hs := range []*http.Server{srv, metrics} {
		go func() {
			logger.Info("listening", zap.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("listener failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, hs := range []*http.Server{srv, metrics} {
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.String("addr", hs.Addr), zap.Error(err))
		}
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Warn("engine stop", zap.Error(err))
	}
	return runErr
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger.Named("postgres")))
	case config.DriverMongo:
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverSqlite:
		return sqlite.Open(ctx, cfg.SqlitePath, sqlite.WithLogger(logger.Named("sqlite")))
	default:
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), nil
	}
}

// auditLog records audit events to the log.
func auditLog(logger *zap.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
		logger.Info(e.Action,
			zap.String("resource", e.Resource),
			zap.String("resource_id", e.ResourceID),
			zap.String("outcome", e.Outcome),
			zap.String("severity", e.Severity),
			zap.String("reason", e.Reason),
			zap.Any("metadata", e.Metadata),
		)
		return nil
	})
}
