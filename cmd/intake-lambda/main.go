package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/wolfman30/defense-intake/cmd/mainconfig"
	"github.com/wolfman30/defense-intake/internal/api/router"
	appconfig "github.com/wolfman30/defense-intake/internal/config"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/internal/notify"
	"github.com/wolfman30/defense-intake/internal/turnstile"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("intake lambda requires DATABASE_URL")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	deps := leads.ServiceDeps{
		Repo:   leads.NewPostgresRepository(pool),
		Logger: logger,
	}
	if v := turnstile.NewVerifier(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, nil, logger); v != nil {
		deps.Verifier = v
	}
	if cfg.LeadEventsQueueURL != "" {
		// staff alerts are sent by the queue consumer, not inline
		deps.Publisher = leads.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.LeadEventsQueueURL)
	} else {
		deps.Notifier = notify.NewLeadNotifier(
			notify.NewStubEmailSender(logger),
			notify.NewStubSMSSender(logger),
			notify.LeadNotifierConfig{FirmName: cfg.FirmName},
			logger,
		)
	}

	h := router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(leads.NewService(deps), logger),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, h, evt)
	})
}

func handle(ctx context.Context, h http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: `{"error":"Invalid request body."}`}, nil
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if ip := strings.TrimSpace(evt.RequestContext.HTTP.SourceIP); ip != "" {
		req.RemoteAddr = ip + ":0"
		req.Header.Set("X-Real-Ip", ip)
	}
	if ua := strings.TrimSpace(evt.RequestContext.HTTP.UserAgent); ua != "" && req.UserAgent() == "" {
		req.Header.Set("User-Agent", ua)
	}

	rw := newResponseBuffer()
	h.ServeHTTP(rw, req)
	if rw.status == 0 {
		rw.status = http.StatusOK
	}

	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rw.status,
		Body:       rw.body.String(),
		Headers:    map[string]string{},
	}
	for k, vals := range rw.header {
		if len(vals) > 0 {
			out.Headers[strings.ToLower(k)] = strings.Join(vals, ", ")
		}
	}
	return out, nil
}

// responseBuffer collects a handler's response for the API Gateway reply.
type responseBuffer struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}}
}

func (r *responseBuffer) Header() http.Header { return r.header }

func (r *responseBuffer) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *responseBuffer) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
