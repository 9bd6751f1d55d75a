package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"echofi-assistant/internal/bank"
	"echofi-assistant/internal/cache"
	"echofi-assistant/internal/config"
	"echofi-assistant/internal/dialogue"
	"echofi-assistant/internal/handlers"
	"echofi-assistant/internal/metrics"
	"echofi-assistant/internal/repo"
	"echofi-assistant/internal/session"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.MetricsNamespace)

	registry := dialogue.DefaultRegistry()
	if cfg.SchemaPath != "" {
		registry, err = dialogue.LoadRegistry(cfg.SchemaPath)
		if err != nil {
			logger.Error("failed loading slot schemas", "error", err, "path", cfg.SchemaPath)
			os.Exit(1)
		}
		logger.Info("loaded slot schemas", "path", cfg.SchemaPath, "intents", len(registry.Intents()))
	}

	engine := dialogue.NewEngine(
		registry,
		dialogue.NewFallbackPolicy(cfg.FallbackMessages),
		dialogue.Config{AcceptThreshold: cfg.AcceptThreshold, SwitchThreshold: cfg.SwitchThreshold},
		logger,
	)

	sessions := session.NewManager(cfg.SessionTTL, logger)
	go sessions.Run(ctx)

	var repository *repo.Repository
	if cfg.DatabaseURL != "" {
		repository, err = repo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed connecting postgres", "error", err)
			os.Exit(1)
		}
		defer repository.Close()
	} else {
		logger.Warn("DATABASE_URL not set, transcript logging disabled")
	}

	var redis *cache.Redis
	if cfg.RedisAddr != "" {
		redis, err = cache.New(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TLS:      cfg.RedisTLS,
		})
		if err != nil {
			logger.Error("failed connecting redis", "error", err)
			os.Exit(1)
		}
		defer redis.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	executor := bank.NewExecutor(logger)
	assistant := handlers.NewAssistant(engine, sessions, executor, repository, redis, m, logger, cfg.RateLimitPerMin)

	mux := http.NewServeMux()
	mux.HandleFunc("/assistant/process", assistant.HandleProcess)
	mux.HandleFunc("/healthz", assistant.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPListenAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.AppEnv == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
