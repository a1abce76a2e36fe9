/**
 * @description
 * This is the main entry point for the transaction-service. It initializes
 * configuration, the PostgreSQL pool, the RabbitMQ producer and consumer, the
 * optional Redis dedupe store, the anti-fraud engine, the application service
 * and the HTTP server, wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and serving HTTP.
 * - github.com/go-chi/chi/v5: HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Event dedupe store.
 * - internal/*, pkg/rabbitmq: Internal packages for the service.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/melodyhub/transaction-service/internal/antifraud"
	"github.com/melodyhub/transaction-service/internal/api"
	"github.com/melodyhub/transaction-service/internal/app"
	"github.com/melodyhub/transaction-service/internal/config"
	"github.com/melodyhub/transaction-service/internal/domain"
	"github.com/melodyhub/transaction-service/internal/store"
	"github.com/melodyhub/transaction-service/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transaction-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer. When the broker is unavailable at
	// startup the service still boots with a fallback producer.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.FallbackProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis connection for consumer-side event dedupe. Without it
	// the consumer runs with plain at-least-once semantics.
	var dedupe *app.EventDedupe
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; event dedupe disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; event dedupe disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; event dedupe disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				dedupe = app.NewEventDedupe(redisClient, cfg.EventDedupePrefix, cfg.EventDedupeTTL())
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
			cancelPing()
		}
	}

	// Initialize the data access layer and the anti-fraud engine.
	repository := store.NewPostgresRepository(dbpool)
	engine := antifraud.NewEngine(repository, repository, antifraud.Limits{
		MaxAmount:          cfg.MaxAmount(),
		VelocityWindow:     cfg.VelocityWindow(),
		VelocityThreshold:  cfg.VelocityThreshold,
		DuplicateWindow:    cfg.DuplicateWindow(),
		DuplicateThreshold: cfg.DuplicateThreshold,
		DailyCap:           cfg.DailyTransactionCap,
	})

	transactionService := app.NewService(repository, engine, producer)
	transactionHandlers := api.NewTransactionHandlers(transactionService)

	router := chi.NewRouter()
	router.Mount("/transactions", api.TransactionRoutes(transactionHandlers, cfg.JWTSecret))

	// Wire up the subscription upgrade consumer on its dedicated queue.
	upgradeConsumer := app.NewSubscriptionUpgradeConsumer(repository, producer, dedupe)

	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	upgradeBindings := map[string]rabbitmq.Handler{
		domain.EventTypeTransactionApproved: upgradeConsumer.HandleMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventExchange, cfg.UpgradeEventQueue, upgradeBindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"upgrade consumer start failed\" err=%v", err)
	}

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
