package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/micromaend/bidding-service/internal/adapters/api"
	"github.com/micromaend/bidding-service/internal/adapters/database"
	"github.com/micromaend/bidding-service/internal/adapters/events"
	"github.com/micromaend/bidding-service/internal/domain/bids"
	"github.com/micromaend/bidding-service/pkg/auth"
	pkgdb "github.com/micromaend/bidding-service/pkg/database"
	pkgevents "github.com/micromaend/bidding-service/pkg/events"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Postgres Connection Pool
	dbURL := os.Getenv("BID_DB_URL")
	if dbURL == "" {
		logger.Error("BID_DB_URL is not set")
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Broker publisher. A broker outage only degrades notifications, so a
	// failed initial dial is not fatal; the publisher redials on demand.
	publisher := events.NewPublisher(brokerConfigFromEnv(), bids.Exchange, logger)
	defer publisher.Close()
	if err := publisher.Connect(); err != nil {
		logger.Warn("RabbitMQ unavailable, placements will report notified=false", "error", err)
	} else {
		logger.Info("RabbitMQ Connected")
	}

	// 3. Check Redis (optional, health only)
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed (API might still work)", "error", err)
		} else {
			logger.Info("Redis Connected")
		}
	}

	// 4. Token verification
	publicKeyPEM := os.Getenv("AUTH_PUBLIC_KEY")
	if publicKeyPEM == "" {
		logger.Error("AUTH_PUBLIC_KEY is not set")
		os.Exit(1)
	}
	verifier, err := auth.NewVerifier([]byte(publicKeyPEM), getenv("AUTH_ISSUER", "auth-service"))
	if err != nil {
		logger.Error("Unable to create token verifier", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	bidRepo := database.NewPostgresBidRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 6. Initialize Service (Domain Layer)
	bidService := bids.NewService(txManager, bidRepo, outboxRepo, publisher, logger)

	// 7. HTTP surface
	handler := api.NewHandler(bidService, logger)
	routes := handler.Routes(verifier)
	mux := http.NewServeMux()
	mux.Handle("/bidding", routes)
	mux.Handle("/bidding/", routes)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 8. Outbox relay re-drives events whose fast-path publish failed
	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		10,            // batch size
		1*time.Second, // interval
		bids.Exchange,
		logger,
	)

	addr := getenv("HTTP_ADDR", ":8080")
	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Outbox Relay")
		return outboxRelay.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting Bidding Service API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// brokerConfigFromEnv reads the broker connection options.
func brokerConfigFromEnv() events.Config {
	return events.Config{
		Host:              getenv("BROKER_HOST", "localhost"),
		Port:              getenvInt("BROKER_PORT", 5672),
		Username:          getenv("BROKER_USERNAME", "guest"),
		Password:          getenv("BROKER_PASSWORD", "guest"),
		ConnectTimeout:    getenvDuration("BROKER_CONNECT_TIMEOUT", 5*time.Second),
		Heartbeat:         getenvDuration("BROKER_HEARTBEAT", 10*time.Second),
		AutoReconnect:     getenvBool("BROKER_AUTO_RECONNECT", true),
		ReconnectInterval: getenvDuration("BROKER_RECONNECT_INTERVAL", 5*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
