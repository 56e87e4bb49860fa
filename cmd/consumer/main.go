package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/emergency-dispatch/internal/config"
	"github.com/example/emergency-dispatch/internal/geo"
	"github.com/example/emergency-dispatch/internal/logging"
	"github.com/example/emergency-dispatch/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_consumer_messages_consumed_total",
		Help: "Total ambulance location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("fleet-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	go serveMetrics(cfg.MetricsAddr, rc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		v, err := decodeVehicle(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err, "offset", m.Offset)
			continue
		}

		if err := updateRedisWithRetry(ctx, radapter, cfg.RedisGeoKey, v, cfg.Retries, cfg.RetryDelay); err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", "vehicle_id", v.ID, "error", err)
			continue
		}
		redisUpdates.Inc()
	}
}

func serveMetrics(addr string, rc *redis.Client, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		// readiness: check redis connectivity
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func decodeVehicle(b []byte) (models.Vehicle, error) {
	var v models.Vehicle
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	if v.ID == "" {
		return v, errors.New("vehicle id missing")
	}
	return v, nil
}

// RedisUpdater is the subset of redis operations the consumer needs.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]any) error
	HSetNX(ctx context.Context, key, field string, value any) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]any) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *redisAdapter) HSetNX(ctx context.Context, key, field string, value any) error {
	return r.c.HSetNX(ctx, key, field, value).Err()
}

// updateRedisWithRetry writes the position and metadata hash, backing off
// between attempts. The hash layout matches geo.RedisGeo: availability is
// only set for a vehicle seen for the first time.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, geoKey string, v models.Vehicle, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if err := rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: v.Loc.Lon, Latitude: v.Loc.Lat, Name: v.ID}); err != nil {
			lastErr = fmt.Errorf("geoadd: %w", err)
			continue
		}
		if err := rc.HSet(ctx, geo.MetaKey(v.ID), geo.MetaFields(v)); err != nil {
			lastErr = fmt.Errorf("hset: %w", err)
			continue
		}
		if err := rc.HSetNX(ctx, geo.MetaKey(v.ID), "available", strconv.FormatBool(v.Available)); err != nil {
			lastErr = fmt.Errorf("hsetnx: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}
