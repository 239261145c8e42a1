package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/pairgate/adapters/events"
	"github.com/layer-3/pairgate/adapters/siwe"
	"github.com/layer-3/pairgate/adapters/store"
	"github.com/layer-3/pairgate/adapters/store/postgres"
	"github.com/layer-3/pairgate/adapters/tokenizer"
	"github.com/layer-3/pairgate/adapters/worldid"
	"github.com/layer-3/pairgate/internal/config"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/ports"
	"github.com/layer-3/pairgate/service"
	transport "github.com/layer-3/pairgate/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("pairgate stopped", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	nonces   ports.NonceStore
	ledger   ports.Ledger
	quota    ports.QuotaStore
	payments ports.PaymentStore
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The session key is regenerated on start; issued cookies do not survive a restart
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	st := stores{
		nonces:   store.NewMemoryNonceStore(),
		ledger:   store.NewMemoryLedger(),
		quota:    store.NewMemoryQuotaStore(),
		payments: store.NewMemoryPaymentStore(),
	}
	if redisClient != nil {
		st.nonces = store.NewRedisNonceStore(redisClient)
	}
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		st.ledger = postgres.NewLedger(db)
		st.quota = postgres.NewQuotaStore(db)
		st.payments = postgres.NewPaymentStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, verification ledger is in memory")
	}

	publisher, subscriber, err := pubSub(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	auth := service.NewAuthService(
		st.nonces,
		st.ledger,
		siwe.NewVerifier(siwe.WithDomain(cfg.SIWEDomain)),
		worldid.NewClient(cfg.WorldIDAPIURL, cfg.WorldIDAppID, nil),
		m,
		logger.With("component", "auth"),
		service.WithNonceTTL(cfg.NonceTTL),
	)
	quota := service.NewQuotaService(st.quota, cfg.DailyMatchLimit, logger.With("component", "quota"))
	payments := service.NewPaymentService(st.payments, quota, cfg.CreditsPerPayment, logger.With("component", "payments"))

	registry := service.NewRegistry(func(n int) { m.Connections.Set(float64(n)) })
	coordinator := service.NewCoordinator(registry, m, logger.With("component", "coordinator"),
		service.WithTickInterval(cfg.TickInterval),
		service.WithMatchPublisher(events.NewWatermillPublisher(publisher, cfg.MatchTopic)),
	)

	matchRouter, err := events.NewMatchRouter(subscriber, cfg.MatchTopic, quota, logger.With("component", "events"))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(transport.Dependencies{
		Auth:           auth,
		Tokenizer:      tokenizer.NewJWTTokenizer(privateKey),
		Registry:       registry,
		Coordinator:    coordinator,
		Quota:          quota,
		Payments:       payments,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger.With("component", "http"),
		CookieSecure:   cfg.CookieSecure,
		CallbackSecret: cfg.PaymentCallbackSecret,
	})
	if cfg.PaymentCallbackSecret == "" {
		logger.Warn("PAYMENT_CALLBACK_SECRET not set, payment callbacks are rejected")
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 3)
	go func() { errs <- coordinator.Run(ctx) }()
	go func() { errs <- matchRouter.Run(ctx) }()
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
			return
		}
		errs <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		stop()
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := matchRouter.Close(); err != nil {
		logger.Error("event router shutdown", "error", err)
	}
	<-coordinator.Done()
	return runErr
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pubSub uses Redis streams when Redis is configured and an in-process channel otherwise
func pubSub(cfg config.Config, client *redis.Client, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger.With("component", "watermill"))

	if client == nil {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return ch, ch, nil
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		return nil, nil, err
	}
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: cfg.ConsumerGroup,
	}, wmLogger)
	if err != nil {
		return nil, nil, err
	}
	return publisher, subscriber, nil
}
