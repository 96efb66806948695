// cmd/worker/main.go
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
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"geo-export-service/internal/app"
	"geo-export-service/internal/config"
	"geo-export-service/internal/logger"
	"geo-export-service/internal/metrics"
	"geo-export-service/internal/queue"
	"geo-export-service/internal/storage"
	"geo-export-service/internal/worker"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_FILE", ""), "path to YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.App.LogLevel, cfg.App.LogEncoding)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()
	lg = lg.With(zap.String("app", cfg.App.Name), zap.String("component", "worker"))

	backends, err := app.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("open backends", zap.Error(err))
	}
	defer backends.Close()

	engine, err := app.NewEngine(backends, cfg, cfg.Worker.TempDir, lg)
	if err != nil {
		lg.Fatal("matcher", zap.Error(err))
	}

	store, err := storage.New(storage.Config{
		Endpoint:   cfg.Storage.Endpoint,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Region:     cfg.Storage.Region,
		Bucket:     cfg.Storage.Bucket,
		Prefix:     cfg.Storage.Prefix,
		UseSSL:     cfg.Storage.UseSSL,
		PresignTTL: cfg.Storage.PresignTTL,
	})
	if err != nil {
		lg.Fatal("storage", zap.Error(err))
	}
	if cfg.Storage.CreateBucket {
		if err := store.EnsureBucket(ctx, cfg.Storage.Region); err != nil {
			lg.Fatal("storage bucket", zap.Error(err))
		}
	}

	// Reaper: leases of crashed or stalled workers go back to the queue.
	if r, ok := backends.Queue.(queue.Reaper); ok {
		go worker.RunReaper(ctx, r, cfg.Queue.ReapInterval, cfg.Queue.ReapBatch, lg)
	}
	if backends.Purger != nil && cfg.Worker.PurgeInterval > 0 {
		go worker.RunPurger(ctx, backends.Purger, cfg.Worker.PurgeInterval, lg)
	}

	srv := metricsServer(cfg.HTTP.MetricsAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server", zap.Error(err))
		}
	}()

	processor := worker.NewProcessor(backends.Jobs, engine, store,
		worker.WithRetry(cfg.Worker.MaxAttempts, cfg.Worker.RetryBackoff),
		worker.WithLogger(lg),
	)
	pool := worker.NewPool(backends.Queue, processor, cfg.Worker.Concurrency, cfg.Worker.ReceiveWait, lg)

	lg.Info("worker started",
		zap.Int("workers", cfg.Worker.Concurrency),
		zap.Int("max_attempts", cfg.Worker.MaxAttempts),
		zap.String("queue", cfg.Queue.Name),
		zap.String("bucket", cfg.Storage.Bucket),
	)
	pool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	lg.Info("worker stopped")
}

func metricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
