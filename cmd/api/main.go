package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/wolfman30/defense-intake/cmd/mainconfig"
	"github.com/wolfman30/defense-intake/internal/api/router"
	"github.com/wolfman30/defense-intake/internal/checkpoints"
	appconfig "github.com/wolfman30/defense-intake/internal/config"
	httpmiddleware "github.com/wolfman30/defense-intake/internal/http/middleware"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/internal/turnstile"
	"github.com/wolfman30/defense-intake/internal/webchat"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting defense-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	metricsHandler, intakeMetrics := setupMetrics()
	healthChecks := map[string]func(context.Context) error{}

	// Leads: Postgres when configured, in-memory otherwise
	var leadsRepo leads.Repository = leads.NewInMemoryRepository()
	if pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
		healthChecks["postgres"] = pool.Ping
	}

	deps := leads.ServiceDeps{
		Repo:     leadsRepo,
		Notifier: setupNotifier(cfg, awsCfg, logger),
		Recorder: intakeMetrics,
		Logger:   logger,
	}
	if v := turnstile.NewVerifier(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, nil, logger); v != nil {
		deps.Verifier = v
	}
	if cfg.LeadEventsQueueURL != "" {
		deps.Publisher = leads.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.LeadEventsQueueURL)
	}
	leadService := leads.NewService(deps)

	sessions, err := setupSessionStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to set up chat session store", "error", err)
		os.Exit(1)
	}
	defer sessions.close()
	if sessions.ping != nil {
		healthChecks["sessions"] = sessions.ping
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()

	chatOpts := []webchat.Option{webchat.WithLimiter(limiter)}
	if cfg.SessionTTL > 0 {
		chatOpts = append(chatOpts, webchat.WithIdleTimeout(cfg.SessionTTL))
	}
	chatHandler := webchat.NewHandler(webchat.NewSequencerFactory(intake.SequencerConfig{
		Store:               sessions.store,
		Submitter:           leads.NewLocalSubmitter(leadService, cfg.OfficePhone, intakeMetrics),
		FirmName:            cfg.FirmName,
		OfficePhone:         cfg.OfficePhone,
		RequireVerification: cfg.TurnstileSecret != "",
		TypingDelay:         cfg.ChatTypingDelay,
		FollowupDelay:       cfg.ChatFollowupDelay,
		ClearDelay:          cfg.ChatClearDelay,
		InactivityWindow:    cfg.SessionTTL,
		Logger:              logger,
	}), cfg.CORSAllowedOrigins, logger, chatOpts...)

	var checkpointStore checkpoints.Store = checkpoints.NewMemoryStore()
	if db := openCheckpointDB(cfg.DatabaseURL, logger); db != nil {
		defer func() { _ = db.Close() }()
		checkpointStore = checkpoints.NewSQLStore(db)
	}

	reviewsHandler, closeReviews := setupReviews(ctx, cfg, awsCfg, logger)
	defer closeReviews()

	r := router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(leadService, logger),
		ChatHandler:        chatHandler,
		CheckpointsHandler: checkpoints.NewHandler(checkpointStore, logger),
		ReviewsHandler:     reviewsHandler,
		RankHandler:        setupRankCheck(ctx, cfg, logger),
		MetricsHandler:     metricsHandler,
		Observer:           intakeMetrics,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HealthChecks:       healthChecks,
	})

	// WriteTimeout stays zero; websocket connections outlive any fixed deadline
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "active_chat_sessions", chatHandler.ActiveSessions())
	chatHandler.Close()
	fmt.Println("Server exited gracefully")
}
