package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HealthHandler returns a liveness check (always OK)
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}

// ReadyHandler returns a readiness check over Postgres, Kafka and Redis.
func ReadyHandler(db *pgxpool.Pool, kafkaProducer sarama.SyncProducer, redisClient *redis.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{
			"database": "ok",
			"kafka":    "ok",
			"redis":    "ok",
		}
		ready := true

		if err := db.Ping(ctx); err != nil {
			logger.Error().Err(err).Msg("database health check failed")
			checks["database"] = "failed"
			ready = false
		}

		if kafkaProducer == nil {
			logger.Error().Msg("kafka producer is nil")
			checks["kafka"] = "failed"
			ready = false
		}

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Msg("redis health check failed")
			checks["redis"] = "failed"
			ready = false
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unavailable",
				"checks": checks,
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
			"checks": checks,
		})
	}
}
