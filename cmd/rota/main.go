package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/rota/internal/capacity"
	"github.com/dukerupert/rota/internal/config"
	"github.com/dukerupert/rota/internal/database"
	"github.com/dukerupert/rota/internal/logging"
	"github.com/dukerupert/rota/internal/metrics"
	"github.com/dukerupert/rota/internal/scheduler"
	"github.com/dukerupert/rota/internal/server"
	"github.com/dukerupert/rota/internal/snapshot"
)

func main() {
	configFile := flag.String("config", "", "path to a rota.yaml config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "rota: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	table, err := capacity.Default().WithOverrides(cfg.Capacity)
	if err != nil {
		return err
	}
	preferred, err := cfg.Availability.PreferredHours()
	if err != nil {
		return fmt.Errorf("availability config: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srvCfg := server.Config{
		Capacity:            table,
		Preferred:           preferred,
		SaturationThreshold: cfg.Rotation.SaturationThreshold,
		HorizonDays:         cfg.Generation.HorizonDays,
		MaxOccurrences:      cfg.Generation.MaxOccurrences,
		Scheduler: scheduler.Config{
			Interval:   cfg.Generation.Interval,
			Horizon:    time.Duration(cfg.Generation.HorizonDays) * 24 * time.Hour,
			RunTimeout: cfg.Generation.RunTimeout,
		},
		Feed: cfg.Feed.Enabled,
	}
	if cfg.Snapshot.Enabled {
		srvCfg.Snapshot = snapshot.Config{
			S3: snapshot.S3Config{
				Endpoint:  cfg.Snapshot.Endpoint,
				Bucket:    cfg.Snapshot.Bucket,
				Region:    cfg.Snapshot.Region,
				AccessKey: cfg.Snapshot.AccessKey,
				SecretKey: cfg.Snapshot.SecretKey,
				Prefix:    cfg.Snapshot.Prefix,
			},
			Passphrase:    cfg.Snapshot.Passphrase,
			Interval:      cfg.Snapshot.Interval,
			RetentionDays: cfg.Snapshot.RetentionDays,
		}
	}
	if cfg.Metrics.Enabled {
		srvCfg.Metrics = metrics.NewPrometheus(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)
		srvCfg.Gatherer = prometheus.DefaultGatherer
	}
	srv := server.New(db, srvCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Generation.Enabled {
		srv.Scheduler().Start(ctx)
		defer srv.Scheduler().Stop()
		logger.Info("generation scheduler started",
			"interval", cfg.Generation.Interval,
			"horizon_days", cfg.Generation.HorizonDays)
	}

	if cfg.Snapshot.Enabled {
		srv.Snapshots().Start(ctx)
		defer srv.Snapshots().Stop()
		logger.Info("snapshot manager started",
			"interval", cfg.Snapshot.Interval,
			"bucket", cfg.Snapshot.Bucket,
			"retention_days", cfg.Snapshot.RetentionDays)
	}

	go cleanupLoop(ctx, srv, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Generation.RunTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rota listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanupLoop drops expired rate limit windows every 10 minutes.
func cleanupLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.RateLimiter().Cleanup()
			logger.Debug("rate limiter cleaned", "tracked", srv.RateLimiter().Len())
		}
	}
}
