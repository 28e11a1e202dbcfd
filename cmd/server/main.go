package main // Entry point package

import (
	"context" // request-scoped contexts for startup work
	"log"     // Logging library
	"time"    // startup deadlines

	"github.com/joho/godotenv"    // Optional .env loader for local runs
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/lane-dispatch/internal/config"     // Internal config loader
	"github.com/iliyamo/lane-dispatch/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/lane-dispatch/internal/handler"    // HTTP handlers
	"github.com/iliyamo/lane-dispatch/internal/middleware" // rate limiting and caching
	"github.com/iliyamo/lane-dispatch/internal/notify"     // RabbitMQ publisher and consumer
	"github.com/iliyamo/lane-dispatch/internal/repository" // persistence layer
	"github.com/iliyamo/lane-dispatch/internal/router"     // Internal router setup
	"github.com/iliyamo/lane-dispatch/internal/service"    // dispatch engine
)

func main() {
	// Load .env if present; in containers the environment is set directly.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	store := repository.NewStore(db)
	if err := store.Queues.EnsureDefaults(ctx, cfg.LaneTitles); err != nil {
		log.Fatalf("seed lanes: %v", err)
	}

	// Redis is optional: when it is unreachable the middleware below
	// degrade to pass-through.
	rdb := config.NewRedisClient()
	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	publisher := notify.NewPublisher(cfg.AMQPURL)
	go notify.StartDispatchConsumer(cfg.AMQPURL)

	svc := service.NewQueueService(store, service.NewTokenIssuer(cfg.TokenTTL), publisher, cfg.StatsLoc)

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg))
	router.RegisterTickets(e, handler.NewTicketHandler(svc), rateLimit)
	router.RegisterOperator(e, handler.NewOperatorHandler(svc, cfg.StatsLoc), handler.NewConfirmHandler(svc), cfg.JWTSecret, cache)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
