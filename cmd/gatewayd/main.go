// Package main is the entry point for the reference gateway server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/config"
	"github.com/driftline/chatsync/internal/events"
	"github.com/driftline/chatsync/internal/handler"
	"github.com/driftline/chatsync/internal/middleware"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/internal/service"
	"github.com/driftline/chatsync/pkg/logger"
	"github.com/driftline/chatsync/pkg/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting gateway server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatsync-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Optional event publishing
	var publisher events.Publisher
	var pinger handler.Pinger
	if cfg.NATSEnabled {
		natsPublisher, err := events.Connect(ctx, events.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		pinger = natsPublisher
	}

	// Chat store with the spec'd simulated latency and reaction
	// fault-injection rate.
	chatSvc := service.New(log, service.Options{
		Latency:             cfg.GatewayLatency,
		ReactionFailureRate: cfg.ReactionFailureRate,
	})
	if cfg.FixtureFile != "" {
		fixture, err := loadFixture(cfg.FixtureFile)
		if err != nil {
			log.Error("failed to load fixture", zap.String("file", cfg.FixtureFile), zap.Error(err))
			os.Exit(1)
		}
		chatSvc.Seed(fixture)
	}

	healthHandler := handler.NewHealthHandler(pinger)
	chatHandler := handler.NewChatHandler(chatSvc, publisher, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/conversations", chatHandler.ListConversations)
		r.Get("/conversations/{id}/messages", chatHandler.ListMessages)
		r.Post("/conversations/{id}/messages", chatHandler.CreateMessage)
		r.Put("/messages/{messageID}/reactions", chatHandler.UpdateReaction)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func loadFixture(path string) (model.FixtureData, error) {
	var fixture model.FixtureData
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture, fmt.Errorf("failed to read fixture: %w", err)
	}
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fixture, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return fixture, nil
}
