package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/api/rest"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/confluence"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/history"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/relink"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/resolver"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/restclient"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/sync"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// REST fallback clients, one per Atlassian backend.
	jiraREST := restclient.New(cfg.JiraURL, cfg.JiraToken, cfg.RequestTimeout, logger)
	confluenceREST := restclient.New(cfg.ConfluenceURL, cfg.ConfluenceToken, cfg.RequestTimeout, logger)

	// Create Jira client
	jiraClient, err := jira.NewClient(cfg, jiraREST, logger)
	if err != nil {
		logger.Fatal("failed to create jira client", zap.Error(err))
	}

	// Create Confluence client
	confluenceClient, err := confluence.NewClient(cfg, confluenceREST, logger)
	if err != nil {
		logger.Fatal("failed to create confluence client", zap.Error(err))
	}

	// Create parent work item resolver
	finder := resolver.NewFinder(confluenceClient, jiraClient, cfg, logger)

	// Create orchestrators
	syncOrchestrator := sync.NewOrchestrator(confluenceClient, jiraClient, finder, cfg, logger)
	undoOrchestrator := sync.NewUndoOrchestrator(confluenceClient, jiraClient, cfg, logger)
	relinker := relink.NewRelinker(confluenceClient, jiraClient, cfg, logger)

	// Create run-result store
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := history.NewRedisStore(redisClient, cfg.UndoTTL)

	// Create REST API handler
	restHandler := rest.NewHandler(syncOrchestrator, undoOrchestrator, relinker, store, cfg.APIKey, logger)

	// Setup REST API
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Start REST server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	server.Shutdown(shutdownCtx)
	if err := redisClient.Close(); err != nil {
		logger.Warn("failed to close redis client", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
