package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/pr-nudge/internal/api"
	"github.com/p-blackswan/pr-nudge/internal/config"
	"github.com/p-blackswan/pr-nudge/internal/digest"
	ghclient "github.com/p-blackswan/pr-nudge/internal/github"
	"github.com/p-blackswan/pr-nudge/internal/health"
	"github.com/p-blackswan/pr-nudge/internal/metrics"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/rules"
	slackpkg "github.com/p-blackswan/pr-nudge/internal/slack"
	"github.com/p-blackswan/pr-nudge/internal/snooze"
)

// logNotifier stands in for Slack in API-only mode so scheduled digests
// still run and report.
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) PostDigest(_ context.Context, prs []nudge.PullRequest, _ time.Time) error {
	n.logger.Info().Int("stale", len(prs)).Msg("digest complete (Slack not configured)")
	return nil
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("api_addr", cfg.APIListenAddr).
		Int("stale_days", cfg.StaleDays).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting pr-nudge")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	checker := health.NewChecker(logger)
	metricsCollector := metrics.New()

	// GitHub client — required; the digest has nothing to report without it.
	if !cfg.GitHubEnabled() {
		logger.Fatal().Msg("no GitHub credentials configured (GITHUB_TOKEN or GitHub App settings)")
	}

	var ghClient *ghclient.Client
	if cfg.GitHubAppEnabled() {
		ghClient, err = ghclient.NewAppClient(
			cfg.GitHubAppID,
			cfg.GitHubInstallationID,
			cfg.GitHubPrivateKeyPath,
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init GitHub App client")
		}
		logger.Info().Int64("app_id", cfg.GitHubAppID).Msg("GitHub App client initialized")
	} else {
		ghClient = ghclient.NewTokenClient(cfg.GitHubToken, logger)
		logger.Info().Msg("GitHub token client initialized")
	}
	checker.Register("github", func(ctx context.Context) health.Status {
		if err := ghClient.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	var source digest.Source
	if cfg.Org != "" {
		source = ghclient.NewOrgSource(ghClient, cfg.Org)
		logger.Info().Str("org", cfg.Org).Msg("watching organization")
	} else {
		owner, name, err := cfg.RepoOwnerName()
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid GITHUB_REPO")
		}
		source = ghclient.NewRepoSource(ghClient, owner, name)
		logger.Info().Str("repo", cfg.Repo).Msg("watching repository")
	}

	// Per-repo rule overrides (optional)
	var repoRules *rules.Rules
	if cfg.RulesPath != "" {
		repoRules, err = rules.Load(cfg.RulesPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load rules file")
		}
		logger.Info().Str("path", cfg.RulesPath).Int("rules", len(repoRules.Repos)).Msg("rules loaded")
	}

	store := snooze.NewMemoryStore()

	opts := nudge.Options{
		StaleDays:     cfg.StaleDays,
		ExcludeLabels: cfg.ExcludeLabelList(),
		NotStaleLabel: cfg.NotStaleLabel,
	}

	// Slack (optional — without tokens the service runs in API-only mode)
	var notifier digest.Notifier = logNotifier{logger: logger}
	var slackApp *slackpkg.App
	var slackHandler *slackpkg.Handler
	if cfg.SlackEnabled() {
		slackHandler = slackpkg.NewHandler(logger, metricsCollector)
		slackApp, err = slackpkg.NewApp(cfg.SlackBotToken, cfg.SlackAppToken, logger, slackHandler)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init Slack app")
		}
		notifier = slackpkg.NewNotifier(slackApp.API(), cfg.SlackChannel, logger)
		checker.Register("slack", func(ctx context.Context) health.Status {
			if err := slackApp.Ping(ctx); err != nil {
				return health.StatusDown
			}
			return health.StatusOK
		})
	} else {
		logger.Info().Msg("Slack not configured — running in API-only mode")
	}

	runner := digest.New(digest.Config{
		Source:   source,
		Notifier: notifier,
		Labels:   ghClient,
		Store:    store,
		Options:  opts,
		Rules:    repoRules,
		Metrics:  metricsCollector,
		Logger:   logger,
	})

	if slackHandler != nil {
		slackHandler.SetActions(runner)
	}

	// HTTP server for probes and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", metricsCollector.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Operator API
	handlers := api.NewHandlers(runner, store, checker, logger)
	apiServer := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.APIListenAddr,
		AuthConfig: api.AuthConfig{
			Mode:   cfg.APIAuthMode,
			APIKey: cfg.APIKey,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.APIRateLimitRPS,
			Burst: cfg.APIRateLimitBurst,
		},
	}, handlers, metricsCollector, logger)

	// WaitGroup for in-flight work
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("operator API server error")
		}
	}()

	if slackApp != nil {
		logger.Info().Msg("Slack Socket Mode enabled (digest + interactive buttons)")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := slackApp.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()
	}

	if cfg.DigestInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Schedule(ctx, cfg.DigestInterval)
		}()
	} else {
		logger.Info().Msg("digest schedule disabled — trigger runs via the operator API")
	}

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := apiServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("operator API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("pr-nudge stopped")
}
