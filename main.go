package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	database "github.com/saartech/quattropole-assistant/app/db"
	appLogger "github.com/saartech/quattropole-assistant/app/logger"
	"github.com/saartech/quattropole-assistant/app/observability/metrics"
	"github.com/saartech/quattropole-assistant/app/tracer"
	"github.com/saartech/quattropole-assistant/config"
	"github.com/saartech/quattropole-assistant/internal/api/chat"
	generativeAI "github.com/saartech/quattropole-assistant/internal/api/generative_ai"
	"github.com/saartech/quattropole-assistant/internal/api/places"
	"github.com/saartech/quattropole-assistant/internal/api/recommend"
	"github.com/saartech/quattropole-assistant/internal/api/whatsbot"
	"github.com/saartech/quattropole-assistant/internal/router"
	"github.com/saartech/quattropole-assistant/internal/types"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Observability ---
	metricsHandler := tracer.InitTracingAndMetrics()
	metrics.InitAppMetrics()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Dependency Injection ---
	aiClient, err := generativeAI.NewAIClient(ctx, cfg.Assistant.Model)
	var recommenderAI recommend.FunctionCaller
	if err != nil {
		// The service degrades to fallback replies without a model.
		logger.Warn("Gemini client unavailable", slog.Any("error", err))
	} else {
		recommenderAI = aiClient
	}

	placeRepo := places.NewRepository(pool, logger)
	placeService := places.NewService(placeRepo, logger)
	placeHandler := places.NewHandler(placeService, logger)

	recommender := recommend.NewServiceImpl(recommenderAI, placeRepo, cfg.Assistant.SnapshotTTL, logger)

	hub := chat.NewHub(logger)
	chatRepo := chat.NewRepositoryImpl(pool, logger)
	chatService := chat.NewServiceImpl(chatRepo, recommender, hub, chat.MapDefaults{
		Center: types.Coordinates{
			Latitude:  cfg.Assistant.DefaultLatitude,
			Longitude: cfg.Assistant.DefaultLongitude,
		},
		Zoom: cfg.Assistant.DefaultZoom,
	}, logger)
	hub.BindService(chatService)
	chatHandler := chat.NewHandler(chatService, hub, logger)

	whatsBotHandler := whatsbot.NewHandler(cfg.WhatsApp.AssistantURL, cfg.WhatsApp.SessionTTL, logger)

	// --- Router Setup ---
	mainRouter := router.SetupRouter(&router.Config{
		PlaceHandler:    placeHandler,
		ChatHandler:     chatHandler,
		WhatsBotHandler: whatsBotHandler,
	})

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", mainRouter)

	// --- HTTP Servers ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Handlers.Prometheus.Port),
		Handler: metricsMux,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()

		logger.Info("Shutdown signal received, starting graceful shutdown...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server graceful shutdown failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
