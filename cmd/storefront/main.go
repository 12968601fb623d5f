package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/aquaflow/internal/confirmation"
	"github.com/joao-fontenele/aquaflow/internal/handoff"
	"github.com/joao-fontenele/aquaflow/internal/messaging"
	"github.com/joao-fontenele/aquaflow/internal/storage"
	"github.com/joao-fontenele/aquaflow/internal/storefront"
	"github.com/joao-fontenele/aquaflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	fallbackDelay := confirmation.DefaultFallbackDelay
	if v := os.Getenv("FALLBACK_DELAY"); v != "" {
		fallbackDelay, err = time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid FALLBACK_DELAY", "value", v, "error", err)
			os.Exit(1)
		}
	}

	var (
		kv       storage.Store
		notifier handoff.Notifier
	)
	switch {
	case os.Getenv("REDIS_URL") != "":
		opts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		kv = storage.NewRedisStore(client)
		notifier = handoff.NewRedisNotifier(client)
		logger.Info("using redis storage")

	case os.Getenv("POSTGRES_URL") != "":
		db, err := telemetry.OpenPostgres(os.Getenv("POSTGRES_URL"), "storefront")
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		kv = storage.NewPostgresStore(db)
		notifier = handoff.NewLocalNotifier()
		logger.Info("using postgres storage")

	default:
		kv = storage.NewMemoryStore()
		notifier = handoff.NewLocalNotifier()
		logger.Warn("REDIS_URL and POSTGRES_URL not set, carts are kept in memory")
	}

	var publisher storefront.EventPublisher
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.TopicOrderPlaced)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	metrics, err := storefront.NewMetrics(otel.Meter("storefront"))
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   5 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	sessionIdle := 30 * time.Minute
	if v := os.Getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid SESSION_IDLE_TIMEOUT", "error", err)
			os.Exit(1)
		}
		sessionIdle = d
	}

	sessions := storefront.NewSessions(kv, logger)
	evictCtx, stopEviction := context.WithCancel(ctx)
	go sessions.Run(evictCtx, time.Minute, sessionIdle)

	slot := handoff.NewSlot(kv, notifier, handoff.DefaultTTL, logger)
	handler := storefront.NewHandler(
		sessions,
		storefront.NewCatalogClient(catalogServiceURL, httpClient),
		slot,
		confirmation.NewResolver(slot, fallbackDelay, logger),
		publisher,
		metrics,
		logger,
	)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second + fallbackDelay,
	}

	go func() {
		logger.Info("starting storefront service", "port", port, "fallback_delay", fallbackDelay.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopEviction()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
