package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/kurihiro0119/github-org-mirror/internal/api"
	"github.com/kurihiro0119/github-org-mirror/internal/collector"
	"github.com/kurihiro0119/github-org-mirror/internal/config"
	"github.com/kurihiro0119/github-org-mirror/internal/ingestor"
	"github.com/kurihiro0119/github-org-mirror/internal/logging"
	"github.com/kurihiro0119/github-org-mirror/internal/seeder"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The mirror lives for the lifetime of the process
	st := store.New()

	sd := seeder.New(st, newRemoteFactory(cfg, logger), logger,
		seeder.WithReferenceBranch(cfg.ReferenceBranch),
		seeder.WithConcurrency(cfg.SeedConcurrency),
		seeder.WithHook(cfg.WebhookURL, cfg.WebhookSecret),
	)
	ing := ingestor.New(st, logger)

	opts := []api.HandlerOption{
		api.WithWebhookSecret(cfg.WebhookSecret),
		api.WithSeedContext(ctx),
	}
	if cfg.OAuthEnabled() {
		opts = append(opts, api.WithOAuth(&oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     oauthgithub.Endpoint,
			Scopes:       []string{"read:org", "repo", "admin:org_hook"},
		}))
	}

	// Initialize handler
	handler := api.NewHandler(st, sd, ing, logger, opts...)

	// Setup routes
	router := api.SetupRoutes(handler, logger)

	// A token in the environment authorizes the mirror at startup
	if cfg.GitHubToken != "" {
		go func() {
			_, _ = sd.Authorize(ctx, cfg.GitHubToken)
		}()
	}

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server",
		zap.String("addr", addr),
		zap.String("reference_branch", cfg.ReferenceBranch),
		zap.Bool("oauth", cfg.OAuthEnabled()),
		zap.Bool("webhook_signature", cfg.WebhookSecret != ""),
	)

	srv := &http.Server{Addr: addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

func newRemoteFactory(cfg *config.Config, logger *zap.Logger) seeder.RemoteFactory {
	return func(token string) collector.Remote {
		return collector.NewGitHubCollector(token,
			collector.WithLogger(logger),
			collector.WithCommitPageSize(cfg.CommitPageSize),
		)
	}
}
