package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/loopershop/commerce-core/internal/batch"
	"github.com/loopershop/commerce-core/internal/cache"
	"github.com/loopershop/commerce-core/internal/config"
	"github.com/loopershop/commerce-core/internal/gateway"
	httpHandler "github.com/loopershop/commerce-core/internal/handler/http"
	"github.com/loopershop/commerce-core/internal/messaging"
	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/ranking"
	"github.com/loopershop/commerce-core/internal/repository"
	"github.com/loopershop/commerce-core/internal/service"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Initialize logger
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info().
		Str("service", cfg.Service.Name).
		Str("environment", cfg.Service.Environment).
		Msg("commerce-core starting")

	// 3. Initialize metrics
	metrics := observability.NewMetrics()

	// 4. Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping database")
	}
	logger.Info().Msg("database connection established")

	// 5. Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")

	// 6. Initialize Kafka producer
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Compression = sarama.CompressionSnappy

	kafkaProducer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Kafka producer")
	}
	defer kafkaProducer.Close()
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("kafka producer initialized")

	// 7. Initialize repositories
	userRepo := repository.NewPostgresUserRepository(dbPool, logger)
	productRepo := repository.NewPostgresProductRepository(dbPool, logger)
	likeRepo := repository.NewPostgresLikeRepository(dbPool, logger)
	orderRepo := repository.NewPostgresOrderRepository(dbPool, logger)
	paymentRepo := repository.NewPostgresPaymentRepository(dbPool, logger)
	couponRepo := repository.NewPostgresCouponRepository(dbPool, logger)
	outboxRepo := repository.NewPostgresOutboxRepository(dbPool, logger)
	handledRepo := repository.NewPostgresEventHandledRepository(dbPool, logger)
	metricsRepo := repository.NewPostgresProductMetricsRepository(dbPool, logger)
	rankRepo := repository.NewPostgresRankRepository(dbPool, logger)

	// 8. Initialize gateway client, cache, ranking index
	pgClient := gateway.NewHTTPClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		RequestTimeout: cfg.Gateway.RequestTimeout,
		MaxRetries:     cfg.Gateway.MaxRetries,
		BreakerName:    cfg.Gateway.BreakerName,
	}, logger)

	productCache := cache.NewProductCache(redisClient, logger)
	rankingIndex := ranking.NewIndex(redisClient, ranking.Weights{
		Like:  cfg.Ranking.LikeWeight,
		View:  cfg.Ranking.ViewWeight,
		Order: cfg.Ranking.OrderWeight,
	}, cfg.Ranking.KeyTTL, logger)

	// 9. Initialize service layer
	orderService := service.NewOrderService(dbPool, userRepo, productRepo, orderRepo, outboxRepo, metrics, logger)
	paymentService := service.NewPaymentService(dbPool, paymentRepo, orderRepo, outboxRepo, pgClient, cfg.Gateway.CallbackURL, metrics, logger)
	likeService := service.NewLikeService(dbPool, likeRepo, outboxRepo, metrics, logger)
	productService := service.NewProductService(dbPool, productRepo, outboxRepo, productCache, metrics, logger)
	userService := service.NewUserService(dbPool, userRepo, logger)
	couponService := service.NewCouponService(dbPool, couponRepo, orderRepo, outboxRepo, logger)

	// 10. Start outbox relay
	relay := messaging.NewOutboxRelay(outboxRepo, kafkaProducer, metrics, logger, cfg.Relay.PollInterval, cfg.Relay.BatchSize)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relay.Start(ctx)
	logger.Info().Msg("outbox relay started")

	// 11. Start consumer groups
	workflowGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.WorkflowGroupID, messaging.NewConsumerConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create workflow consumer group")
	}
	defer workflowGroup.Close()

	metricsGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.MetricsGroupID, messaging.NewConsumerConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create metrics consumer group")
	}
	defer metricsGroup.Close()

	rankingGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.RankingGroupID, messaging.NewConsumerConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create ranking consumer group")
	}
	defer rankingGroup.Close()

	workflowHandler := messaging.NewWorkflowHandler(dbPool, orderService, paymentService, handledRepo, cfg.Kafka.WorkflowGroupID, logger)
	metricsHandler := messaging.NewMetricsHandler(dbPool, metricsRepo, productRepo, handledRepo, cfg.Kafka.MetricsGroupID, logger)
	rankingHandler := messaging.NewRankingHandler(dbPool, rankingIndex, handledRepo, cfg.Kafka.RankingGroupID, logger)

	readModelTopics := []string{models.TopicLikeEvents, models.TopicOrderEvents, models.TopicProductEvents}
	workflowTopics := []string{models.TopicPaymentEvents, models.TopicCouponEvents}

	go messaging.NewConsumer(workflowGroup, workflowTopics, workflowHandler, cfg.Kafka.ConsumerConcurrency, metrics, logger).Start(ctx)
	go messaging.NewConsumer(metricsGroup, readModelTopics, metricsHandler, cfg.Kafka.ConsumerConcurrency, metrics, logger).Start(ctx)
	go messaging.NewConsumer(rankingGroup, readModelTopics, rankingHandler, cfg.Kafka.ConsumerConcurrency, metrics, logger).Start(ctx)
	logger.Info().Msg("consumer groups started")

	// 12. Start batch scheduler
	rankBatch := batch.NewRankBatch(metricsRepo, rankRepo, metrics, logger, cfg.Batch.ChunkSize, cfg.Batch.TopN)
	scheduler := batch.NewScheduler(rankBatch, rankingIndex, paymentService, outboxRepo, cfg.Ranking.CarryOverWeight, logger)
	go func() {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler failed")
		}
	}()

	// 13. HTTP server (API + health + metrics)
	httpMux := http.NewServeMux()
	api := httpHandler.NewAPI(userService, productService, likeService, orderService, couponService, rankRepo, logger)
	api.Register(httpMux)
	httpMux.HandleFunc("/health", httpHandler.HealthHandler())
	httpMux.HandleFunc("/ready", httpHandler.ReadyHandler(dbPool, kafkaProducer, redisClient, logger))
	httpMux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      httpMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// 14. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully...")

	// 15. Graceful shutdown
	cancel() // Stop relay, consumers, scheduler

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	logger.Info().Msg("HTTP server stopped")

	logger.Info().Msg("shutdown complete")
}
