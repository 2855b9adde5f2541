package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	appconfig "github.com/wolfman30/defense-intake/internal/config"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/internal/notify"
	"github.com/wolfman30/defense-intake/internal/observability/metrics"
	"github.com/wolfman30/defense-intake/internal/rankcheck"
	"github.com/wolfman30/defense-intake/internal/reviews"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

const firmTimeZone = "America/New_York"

func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewIntakeMetrics(reg)
}

// connectPostgresPool returns nil when no database is configured or the
// connection fails; callers fall back to in-memory storage.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn("DATABASE_URL not set; leads are kept in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// openCheckpointDB opens the database/sql handle used by the checkpoint store.
func openCheckpointDB(databaseURL string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Error("failed to open checkpoint database", "error", err)
		return nil
	}
	db.SetMaxOpenConns(5)
	return db
}

type sessionBackend struct {
	store intake.SessionStore
	ping  func(context.Context) error
	close func()
}

func setupSessionStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (sessionBackend, error) {
	noop := func() {}
	switch cfg.SessionBackend {
	case "", "memory":
		return sessionBackend{store: intake.NewMemorySessionStore(), close: noop}, nil
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return sessionBackend{}, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("chat sessions stored in redis", "addr", cfg.RedisAddr)
		return sessionBackend{
			store: intake.NewRedisSessionStore(client, cfg.SessionTTL),
			ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: func() { _ = client.Close() },
		}, nil
	case "dynamodb":
		logger.Info("chat sessions stored in dynamodb", "table", cfg.SessionTable)
		store := intake.NewDynamoSessionStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL, logger)
		return sessionBackend{store: store, close: noop}, nil
	default:
		return sessionBackend{}, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}

func setupNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.LeadNotifier {
	var email notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(sendGridConfig(cfg), logger); s != nil {
			email = s
		}
	case "ses":
		email = sesSender(cfg, awsCfg, logger)
	case "none":
	default:
		if s := notify.NewSendGridSender(sendGridConfig(cfg), logger); s != nil {
			email = s
		} else if cfg.SESFromEmail != "" {
			email = sesSender(cfg, awsCfg, logger)
		}
	}
	if email == nil {
		logger.Warn("no email provider configured; staff alerts are logged only")
		email = notify.NewStubEmailSender(logger)
	}

	var sms notify.SMSSender = notify.NewStubSMSSender(logger)
	if s := notify.NewTwilioSMSSender(notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, logger); s != nil {
		sms = s
	}

	loc, err := time.LoadLocation(firmTimeZone)
	if err != nil {
		loc = time.UTC
	}
	return notify.NewLeadNotifier(email, sms, notify.LeadNotifierConfig{
		FirmName:        cfg.FirmName,
		EmailRecipients: splitList(cfg.NotifyEmailTo),
		UrgentSMSTo:     cfg.UrgentAlertPhone,
		Location:        loc,
	}, logger)
}

func sendGridConfig(cfg *appconfig.Config) notify.SendGridConfig {
	return notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}
}

func sesSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.SESFromEmail == "" {
		return nil
	}
	return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
}

// setupLLM picks the reply drafting model. A nil client disables drafting.
func setupLLM(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config) (reviews.LLMClient, func(), error) {
	noop := func() {}
	switch cfg.LLMProvider {
	case "gemini":
		client, err := reviews.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		return client, func() { _ = client.Close() }, nil
	case "openai":
		client, err := reviews.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, noop, err
		}
		return client, noop, nil
	case "bedrock", "":
		if cfg.BedrockModelID == "" {
			return nil, noop, errors.New("BEDROCK_MODEL_ID is required")
		}
		return reviews.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func setupReviews(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*reviews.Handler, func()) {
	var source reviews.Source
	gbp, err := reviews.NewGBPClient(reviews.GBPConfig{
		ClientID:     cfg.GBPClientID,
		ClientSecret: cfg.GBPClientSecret,
		RefreshToken: cfg.GBPRefreshToken,
		AccountID:    cfg.GBPAccountID,
		LocationID:   cfg.GBPLocationID,
	}, logger)
	switch {
	case err == nil:
		source = gbp
	case errors.Is(err, reviews.ErrGBPNotConfigured):
		logger.Info("google business profile not configured; review listing disabled")
	default:
		logger.Error("failed to create google business profile client", "error", err)
	}

	var generator *reviews.Generator
	llm, closeLLM, err := setupLLM(ctx, cfg, awsCfg)
	if err != nil {
		logger.Warn("review reply drafting disabled", "provider", cfg.LLMProvider, "error", err)
	} else {
		generator = reviews.NewGenerator(llm, cfg.FirmName, logger)
	}
	return reviews.NewHandler(source, generator, logger), closeLLM
}

func setupRankCheck(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *rankcheck.Handler {
	if cfg.SearchAPIKey == "" || cfg.SearchEngineID == "" || cfg.SiteDomain == "" {
		return rankcheck.NewHandler(nil)
	}
	search, err := rankcheck.NewCustomSearch(ctx, cfg.SearchAPIKey, cfg.SearchEngineID)
	if err != nil {
		logger.Error("failed to create search client", "error", err)
		return rankcheck.NewHandler(nil)
	}
	return rankcheck.NewHandler(rankcheck.NewChecker(search, cfg.SiteDomain, logger))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
