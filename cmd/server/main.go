package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/reliefline/chloe-voice/internal/config"
	"github.com/reliefline/chloe-voice/internal/dialog"
	"github.com/reliefline/chloe-voice/internal/dnc"
	"github.com/reliefline/chloe-voice/internal/llm"
	"github.com/reliefline/chloe-voice/internal/observability/metrics"
	"github.com/reliefline/chloe-voice/internal/relay"
	"github.com/reliefline/chloe-voice/internal/store"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

func main() {
	// .env is a local-dev convenience; absence is normal in deployment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chloe-voice server",
		"env", cfg.Env,
		"port", cfg.Port,
		"version", cfg.AppVersion,
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DataDir, cfg.OrgName, loc, logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}

	// The do-not-contact index is optional: without Redis, opt-outs still
	// persist to the record log but known callers are not greeted as such.
	var dncIndex dialog.DNCIndex
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, dnc index disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			dncIndex = dnc.New(rdb, logger)
		}
	}

	// Without an API key the assistant still books and opts out; open
	// questions get a re-prompt instead of an answer.
	var chat dialog.ChatClient
	if cfg.OpenAIAPIKey != "" {
		client, err := llm.New(llm.Config{
			APIKey:        cfg.OpenAIAPIKey,
			Model:         cfg.OpenAIModel,
			OrgName:       cfg.OrgName,
			AssistantName: cfg.AssistantName,
		}, logger)
		if err != nil {
			logger.Error("failed to build llm client", "error", err)
			os.Exit(1)
		}
		chat = client
	} else {
		logger.Warn("OPENAI_API_KEY not set, llm fallback disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	callMetrics := metrics.NewCallMetrics(registry)

	controller := dialog.NewController(st, chat, dncIndex, callMetrics, logger, dialog.Options{
		OrgName:            cfg.OrgName,
		AssistantName:      cfg.AssistantName,
		Location:           loc,
		DefaultDurationMin: cfg.DefaultDurationMin,
		DefaultCountryCode: cfg.DefaultCountryCode,
		HistoryWindow:      cfg.HistoryWindow,
		LLMTimeout:         cfg.LLMTimeout,
		CommitTimeout:      cfg.CommitTimeout,
	})

	handler := relay.NewHandler(relay.Config{
		Controller: controller,
		Store:      st,
		Logger:     logger,
		RelayURL:   cfg.RelayWSSURL,
		AppVersion: cfg.AppVersion,
		GitCommit:  cfg.GitCommit,
		Registry:   registry,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler.Router(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: relay websockets stay open for the whole call.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
