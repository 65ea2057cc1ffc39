package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/medoxie/wristband/adapters/events"
	"github.com/medoxie/wristband/adapters/garmin"
	"github.com/medoxie/wristband/adapters/lens"
	"github.com/medoxie/wristband/adapters/pending"
	"github.com/medoxie/wristband/adapters/store"
	"github.com/medoxie/wristband/adapters/tokenizer"
	"github.com/medoxie/wristband/config"
	"github.com/medoxie/wristband/service"
	transport "github.com/medoxie/wristband/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	// Tickets are verified only by the instance that signed them, so an
	// ephemeral key is fine: restarting just expires outstanding MFA
	// tickets along with their pending entries.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	kv := store.NewRedisStore(redisClient)
	pendingStore := pending.NewMemoryStore()
	tickets := tokenizer.NewJWTTickets(signKey)
	eventPub := events.NewWatermillPublisher(publisher)
	provider := garmin.NewClient(cfg.GarminAPIURL)
	directory := lens.NewClient(cfg.LensAPIURL)

	wallet := service.NewWalletAuthenticator(kv, cfg.NonceTTL(), cfg.MaxAge(), cfg.AllowedOrigins)
	scoped := service.NewScopedAuthenticator(cfg.TimestampTolerance())
	sessions := service.NewSessionManager(
		kv, pendingStore, provider, tickets, eventPub, logger,
		cfg.PendingTTL(), cfg.TokenBlobTTL(),
	)

	router := transport.SetupRouter(wallet, scoped, sessions, directory, transport.RouterConfig{
		APIKey: cfg.APIKey,
	})

	logger.Info("starting server", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", "wristband")
	slog.SetDefault(logger)
	return logger
}
