package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/micromaend/bidding-service/internal/adapters/database"
	"github.com/micromaend/bidding-service/internal/adapters/events"
	"github.com/micromaend/bidding-service/internal/domain/bids"
	pkgdb "github.com/micromaend/bidding-service/pkg/database"
	pkgevents "github.com/micromaend/bidding-service/pkg/events"
)

// The worker runs only the outbox relay. It can be scaled independently of
// the API; SKIP LOCKED keeps multiple instances from double-delivering out
// of the same batch.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL := os.Getenv("BID_DB_URL")
	if dbURL == "" {
		logger.Error("BID_DB_URL is not set")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, dbURL)
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

	publisher := events.NewPublisher(brokerConfigFromEnv(), bids.Exchange, logger)
	defer publisher.Close()
	if err := publisher.Connect(); err != nil {
		logger.Warn("RabbitMQ unavailable, relay will retry", "error", err)
	} else {
		logger.Info("RabbitMQ Connected")
	}

	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		10,                   // batch size
		500*time.Millisecond, // polling interval
		bids.Exchange,
		logger,
	)

	logger.Info("Starting Outbox Relay worker")
	if err := relay.Run(ctx); err != nil {
		logger.Error("Outbox Relay stopped", "error", err)
		os.Exit(1)
	}
}

func brokerConfigFromEnv() events.Config {
	return events.Config{
		Host:              getenv("BROKER_HOST", "localhost"),
		Port:              getenvInt("BROKER_PORT", 5672),
		Username:          getenv("BROKER_USERNAME", "guest"),
		Password:          getenv("BROKER_PASSWORD", "guest"),
		ConnectTimeout:    getenvDuration("BROKER_CONNECT_TIMEOUT", 5*time.Second),
		Heartbeat:         getenvDuration("BROKER_HEARTBEAT", 10*time.Second),
		AutoReconnect:     true,
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

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
