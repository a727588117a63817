package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-store/internal/catalog"
	"github.com/fjod/go_cart/cart-store/internal/config"
	h "github.com/fjod/go_cart/cart-store/internal/http"
	"github.com/fjod/go_cart/cart-store/internal/logger"
	"github.com/fjod/go_cart/cart-store/internal/notify"
	"github.com/fjod/go_cart/cart-store/internal/service"
	"github.com/fjod/go_cart/cart-store/internal/storage"
	"github.com/fjod/go_cart/cart-store/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cart store: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx := context.Background()

	tp, err := telemetry.InitTracerProvider(ctx, "cart-store", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("tracer provider shutdown failed", "error", err)
		}
	}()

	kv, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	sink, closeSink := buildNotifier(cfg, log)
	defer closeSink()

	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout, catalog.WithLogger(log))
	log.Info("using catalog API", "base_url", cfg.CatalogBaseURL)

	store, err := service.NewCartStore(ctx, cfg.StorageKey, service.Dependencies{
		Storage:  kv,
		Catalog:  catalogClient,
		Stock:    catalogClient,
		Notifier: sink,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("init cart store: %w", err)
	}

	cartHandler := h.NewCartHandler(store, cfg.RequestTimeout, log)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     h.NewRouter(cartHandler, log),
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: /api/v1/cart/events is a long-lived stream
		IdleTimeout: 60 * time.Second,
	}
	// event streams only end when their subscription does
	srv.RegisterOnShutdown(store.Close)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cart store listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.KeyValueStore, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("using in-memory storage, the cart is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil

	case config.StorageRedis:
		client, err := storage.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to Redis", "addr", cfg.RedisAddr)
		return storage.NewRedisStore(client), func() { client.Close() }, nil

	case config.StorageMongo:
		db, err := storage.ConnectMongoDB(ctx, storage.MongoOptions{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDBName,
			MaxPoolSize:    cfg.MongoMaxPoolSize,
			ConnectTimeout: cfg.MongoConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to MongoDB", "uri", cfg.MongoURI, "db", cfg.MongoDBName)
		return storage.NewMongoStore(db), func() { db.Client().Disconnect(context.Background()) }, nil

	default:
		st, err := storage.OpenSQLiteStore(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}

func buildNotifier(cfg *config.Config, log *slog.Logger) (notify.Sink, func()) {
	logSink := notify.NewLogSink(log)
	if len(cfg.KafkaBrokers) == 0 {
		return logSink, func() {}
	}

	kafkaSink := notify.NewKafkaSink(cfg.NotificationTopic, log, cfg.KafkaBrokers...)
	log.Info("publishing notifications to Kafka", "topic", cfg.NotificationTopic, "brokers", cfg.KafkaBrokers)
	return notify.Multi{logSink, kafkaSink}, func() {
		if err := kafkaSink.Close(); err != nil {
			log.Error("error closing kafka writer", "error", err)
		}
	}
}
