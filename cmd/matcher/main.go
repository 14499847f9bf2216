package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"bridge/api/internal/config"
	"bridge/api/internal/logging"
	"bridge/api/internal/oracle"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal("load .env", "err", err)
	}
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, Prefix: "matcher"})
	if cfg.LLMAPIKey == "" {
		logger.Fatal("missing model API key", "provider", cfg.LLMProvider)
	}

	model, err := oracle.NewModel(oracle.ModelOptions{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
	})
	if err != nil {
		logger.Fatal("model setup failed", "err", err)
	}

	server := &http.Server{
		Addr:              cfg.MatcherAddr,
		Handler:           oracle.NewHandler(oracle.NewLLMAnalyzer(model), logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("matcher listening", "addr", cfg.MatcherAddr, "provider", cfg.LLMProvider, "model", cfg.LLMModel)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
