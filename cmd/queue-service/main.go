package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"fortune-queue/internal/auth"
	"fortune-queue/internal/config"
	"fortune-queue/internal/database/migrations"
	sharedkafka "fortune-queue/internal/kafka"
	"fortune-queue/internal/logger"
	"fortune-queue/internal/models"
	"fortune-queue/internal/notify"
	"fortune-queue/internal/queue"
	"fortune-queue/internal/queue/api"
	"fortune-queue/internal/queue/db"
	queuekafka "fortune-queue/internal/queue/kafka"
	rediswrap "fortune-queue/internal/queue/redis"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL Setup ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	migrationOpts := migrations.DefaultOptions()
	if migrationOpts.AutoMigrate {
		if _, err := os.Stat(migrationOpts.MigrationsDir); err == nil {
			runner := migrations.NewRunner(bunDB, migrationOpts)
			if err := runner.RunMigrations(); err != nil {
				log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
			}
		} else {
			// No migration files shipped alongside the binary; bootstrap the
			// schema straight from the model.
			db.Migrate(bunDB)
		}
	}

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Kafka Setup ---
	var events queue.EventPublisher
	var producer *queuekafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.OrderQueued,
			cfg.Kafka.Topics.OrderStarted,
			cfg.Kafka.Topics.OrderCompleted,
			cfg.Kafka.Topics.OrderCancelled,
			cfg.Kafka.Topics.PaymentSuccess,
		}
		if err := sharedkafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer = queuekafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
		events = producer
	}

	// --- Initialize Dependencies ---
	dbLayer := &db.DB{Bun: bunDB}
	promotionLock := rediswrap.NewLock(redisClient, cfg.Queue.LockTTL)
	notifier := notify.NewEmailNotifier(cfg.Email, log)

	service := queue.NewQueueService(dbLayer, promotionLock, notifier, events, cfg.Queue, log)
	handler := &api.Handler{QueueService: service, Logger: log}

	// --- Payment-success Consumer ---
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Kafka.Enabled {
		consumer := sharedkafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentSuccess, cfg.Kafka.GroupID)
		defer consumer.Close()
		go consumer.Start(consumerCtx, func(event models.PaymentEvent) {
			if event.Status != "success" {
				return
			}
			if _, err := service.ConfirmPayment(consumerCtx, event.OrderID); err != nil {
				log.Error("KAFKA", fmt.Sprintf("payment event for order %s: %v", event.OrderID, err))
			}
		})
	}

	// --- Setup Router ---
	r := chi.NewRouter()

	r.Post("/api/v1/orders", handler.CreateOrder)
	r.Get("/api/v1/queue/stats", handler.GetQueueStats)
	r.Get("/api/v1/queue/position/{orderId}", handler.GetQueuePosition)
	r.Post("/api/v1/payments/webhook", handler.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(auth.RequireOperator)
		r.Get("/api/v1/admin/queue", handler.ListQueue)
		r.Post("/api/v1/admin/queue/next", handler.ProcessNext)
		r.Post("/api/v1/admin/orders/{orderId}/complete", handler.CompleteOrder)
		r.Post("/api/v1/admin/orders/{orderId}/cancel", handler.CancelOrder)
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Queue service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received. Cleaning up...")

	stopConsumer()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
