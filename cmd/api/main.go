package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"feedback/api/internal/analytics"
	"feedback/api/internal/app"
	"feedback/api/internal/chatbot"
	"feedback/api/internal/config"
	"feedback/api/internal/notify"
	"feedback/api/internal/store"
	"feedback/api/internal/textanalytics"
	"feedback/api/internal/transcripts"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	if cfg.LanguageEndpoint == "" || cfg.LanguageKey == "" {
		logger.Fatal("LANGUAGE_ENDPOINT and LANGUAGE_KEY are required")
	}
	languageClient := textanalytics.New(cfg.LanguageEndpoint, cfg.LanguageKey, cfg.ProviderTimeout)

	deps := app.Deps{
		Store:    dataStore,
		Users:    dataStore,
		Language: languageClient,
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		analyticsStore := analytics.New(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer analyticsStore.Close()
		deps.Analytics = analyticsStore
	} else {
		logger.Info("analytics store disabled, MEILI_URL not set")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		broker, err := notify.New(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer broker.Close()
		deps.Broker = broker
	} else {
		logger.Info("notification channel disabled, REDIS_URL not set")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		transcriptStore, err := transcripts.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal("object store connection failed", zap.Error(err))
		}
		deps.Transcripts = transcriptStore
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			deps.Chat = chatbot.New(cfg.OpenAIAPIKey, transcriptStore, logger)
		} else {
			logger.Info("chatbot disabled, OPENAI_API_KEY not set")
		}
	} else {
		logger.Info("transcript store and chatbot disabled, MINIO_ENDPOINT not set")
	}

	service := app.New(cfg, deps, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /api/feedback/events holds the connection open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("feedback API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
