package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"bridge/api/internal/app"
	"bridge/api/internal/cache"
	"bridge/api/internal/config"
	"bridge/api/internal/docs"
	"bridge/api/internal/gitrepo"
	"bridge/api/internal/logging"
	"bridge/api/internal/mirror"
	"bridge/api/internal/oracle"
	"bridge/api/internal/search"
	"bridge/api/internal/store"
	"bridge/api/internal/webhook"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal("load .env", "err", err)
	}
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docStore, err := docs.NewGoogleStore(ctx, cfg.AccessToken)
	if err != nil {
		logger.Fatal("document client failed", "err", err)
	}

	matchOracle, err := newOracle(cfg)
	if err != nil {
		logger.Fatal("oracle setup failed", "err", err)
	}

	deps := app.Deps{
		Docs:   docStore,
		Oracle: matchOracle,
		Cache:  cache.NewMemory(),
		Ready:  map[string]app.Pinger{},
		Logger: logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for the match cache")
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", "err", err)
		}
		defer redisStore.Close()
		deps.Cache = redisStore
		deps.Ready["redis"] = redisStore
	} else {
		logger.Info("using process memory for the match cache")
	}

	if len(cfg.WebhookRoutes) > 0 {
		deps.Notifier = webhook.NewNotifier(cfg.WebhookRoutes, 15*time.Second)
	} else {
		logger.Warn("no webhook routes configured, notifications disabled")
	}

	var events *store.PostgresStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		events, err = store.OpenMigrated(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database setup failed", "err", err)
		}
		defer events.DB().Close()
		deps.Events = events
		deps.Ready["database"] = events
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.WithPrefix("search"))
		defer meiliClient.Close()
	}
	if events != nil || meiliClient != nil {
		var fallback search.Searcher
		if events != nil {
			fallback = search.NewPgFTS(events)
		}
		searchService := search.NewService(meiliClient, fallback, logger.WithPrefix("search"))
		if events != nil {
			recent, err := events.ListMatchEvents(ctx, "", 500)
			if err != nil {
				logger.Warn("reindex skipped", "err", err)
			}
			searchService.Reindex(recent)
		}
		deps.Index = searchService
	}

	if strings.TrimSpace(cfg.DraftArchiveDir) != "" {
		if err := os.MkdirAll(cfg.DraftArchiveDir, 0o755); err != nil {
			logger.Fatal("failed to create archive dir", "err", err)
		}
		deps.Archive = gitrepo.New(cfg.DraftArchiveDir)
	}

	if cfg.ChromeMirror {
		deps.Mirror = mirror.New(mirror.NewChromeReader(30*time.Second), matchOracle)
	}

	service := app.New(cfg, deps)
	go service.Run(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("bridge api listening", "addr", cfg.Addr, "draft", cfg.DraftDocID, "references", len(cfg.ReferenceDocIDs))
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

// newOracle returns the matcher service client, or a direct model client
// when ORACLE_MODE is direct.
func newOracle(cfg config.Config) (oracle.Oracle, error) {
	if cfg.OracleMode != "direct" {
		return oracle.NewHTTPClient(cfg.MatcherURL, 2*time.Minute), nil
	}
	model, err := oracle.NewModel(oracle.ModelOptions{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
	})
	if err != nil {
		return nil, err
	}
	return oracle.NewLLMAnalyzer(model), nil
}
