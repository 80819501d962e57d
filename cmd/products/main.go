package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"SanitizedInput/internal/config"
	"SanitizedInput/internal/db"
	"SanitizedInput/internal/products"
	"SanitizedInput/pkg/kit"
)

const (
	limiterPruneEvery = time.Minute
	limiterIdle       = 5 * time.Minute
)

func main() {
	service := "products"

	cfg, err := config.Load(service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := kit.NewLogger(service, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("configuration loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, service, cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
	log.Info("service stopped gracefully")
}

func run(ctx context.Context, service string, cfg *config.Config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	limiter := kit.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	h := products.NewHandler(&products.Server{Store: store, Log: log}, products.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		Limiter:        limiter,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})
	srv := kit.NewHTTPServer(cfg.HTTP.Addr, h, cfg.HTTP.ReadHeader)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kit.RunHTTPServer(gctx, srv, log, cfg.HTTP.Shutdown)
	})
	g.Go(func() error {
		return limiter.Run(gctx, limiterPruneEvery, limiterIdle)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (products.Store, func(), error) {
	if cfg.URL == config.MemoryURL {
		log.Warn("using in-memory store, records are lost on restart")
		return products.NewMemStore(), func() {}, nil
	}

	conn, driver, err := db.Open(ctx, cfg.URL, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(conn, driver); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	log.Info("database ready", zap.String("driver", string(driver)))
	return products.NewSQLStore(conn), func() { _ = conn.Close() }, nil
}
