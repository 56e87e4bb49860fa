package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/emergency-dispatch/internal/booking"
	"github.com/example/emergency-dispatch/internal/config"
	"github.com/example/emergency-dispatch/internal/dispatch"
	"github.com/example/emergency-dispatch/internal/eta"
	"github.com/example/emergency-dispatch/internal/events"
	"github.com/example/emergency-dispatch/internal/geo"
	httpapi "github.com/example/emergency-dispatch/internal/http"
	"github.com/example/emergency-dispatch/internal/logging"
	"github.com/example/emergency-dispatch/internal/matcher"
	"github.com/example/emergency-dispatch/internal/storage"
	"github.com/example/emergency-dispatch/internal/tracker"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("dispatch-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	var fleet geo.Fleet = geo.NewIndex()
	if rdb != nil {
		fleet = geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
	}

	estimator := &eta.Estimator{SpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}
	if rdb != nil {
		estimator.Cache = eta.NewRedisCache(rdb, cfg.ETACacheTTL)
	} else {
		estimator.Cache = eta.NewCache(cfg.ETACacheTTL)
	}

	bcfg := booking.Config{
		Timings: tracker.Timings{
			ConfirmDelay: cfg.ConfirmDelay,
			EnRouteDelay: cfg.EnRouteDelay,
			ETAInterval:  cfg.ETAInterval,
			InitialETA:   cfg.InitialETAMinutes,
		},
		Logger: logger,
		Buffer: cfg.EventBuffer,
	}
	if cfg.DispatchMode == "fleet" {
		bcfg.Provider = &matcher.Service{Fleet: fleet, ETA: estimator, TopN: cfg.MatcherTopN}
		bcfg.ETA = estimator
	}

	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if err := migrate(ctx, ps); err != nil {
				return err
			}
			logger.Info("migration applied", "file", "001_create_dispatch_events.sql")
		}
		bcfg.Store = ps
	}

	svc := booking.New(bcfg)
	wsReg := dispatch.NewWSRegistry(logger)
	svc.AddSink("websocket", wsReg)

	deps := httpapi.Deps{Booking: svc, Fleet: fleet, WSReg: wsReg, Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaStatusTopic, cfg.KafkaLocationTopic)
		defer kp.Close()
		svc.AddSink("kafka", kp)
		deps.Locations = kp
	}
	if cfg.WebhookURL != "" {
		svc.AddSink("webhook", dispatch.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookKey))
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	svc.Start(workerCtx)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("emergency dispatch listening", "addr", cfg.HTTPAddr, "mode", cfg.DispatchMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	svc.Close()
	stopWorker()
	select {
	case <-svc.Done():
	case <-shutdownCtx.Done():
		logger.Warn("event worker did not drain before shutdown timeout")
	}
	return nil
}

func migrate(ctx context.Context, ps *storage.PostgresStore) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_dispatch_events.sql"))
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if err := ps.Migrate(ctx, string(b)); err != nil {
		return fmt.Errorf("migration exec: %w", err)
	}
	return nil
}
