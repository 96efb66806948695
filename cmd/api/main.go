// cmd/api/main.go
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

	"go.uber.org/zap"

	"geo-export-service/internal/app"
	"geo-export-service/internal/config"
	"geo-export-service/internal/logger"
	"geo-export-service/internal/service"
	httptransport "geo-export-service/internal/transport/http"
)

// @title Geo Export API
// @version 1.0
// @description Filtered count and GeoJSON export of the landslide inventory, inline or as polled background jobs.
// @BasePath /
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
	lg = lg.With(zap.String("app", cfg.App.Name), zap.String("component", "api"))

	backends, err := app.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("open backends", zap.Error(err))
	}
	defer backends.Close()

	engine, err := app.NewEngine(backends, cfg, cfg.Worker.TempDir, lg)
	if err != nil {
		lg.Fatal("matcher", zap.Error(err))
	}

	jobSvc := service.NewJobService(backends.Jobs, backends.Queue, cfg.Store.TTL, lg)
	querySvc := service.NewQueryService(engine)
	h := httptransport.NewHandler(jobSvc, querySvc, lg)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.Routes(h, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go func() {
		lg.Info("api listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	lg.Info("api stopped")
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
