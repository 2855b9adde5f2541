package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfman30/defense-intake/internal/checkpoints"
	httpmiddleware "github.com/wolfman30/defense-intake/internal/http/middleware"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/internal/webchat"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

const testSecret = "router-test-secret"

type testEnv struct {
	handler     http.Handler
	repo        *leads.InMemoryRepository
	checkpoints *checkpoints.MemoryStore
}

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) *testEnv {
	t.Helper()

	logger := logging.New("error")
	repo := leads.NewInMemoryRepository()
	service := leads.NewService(leads.ServiceDeps{Repo: repo, Logger: logger})
	cpStore := checkpoints.NewMemoryStore()

	var chatOpts []webchat.Option
	if limiter != nil {
		chatOpts = append(chatOpts, webchat.WithLimiter(limiter))
	}
	chat := webchat.NewHandler(webchat.NewSequencerFactory(intake.SequencerConfig{
		Store:       intake.NewMemorySessionStore(),
		Submitter:   leads.NewLocalSubmitter(service, "(740) 201-1444", nil),
		OfficePhone: "(740) 201-1444",
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		Logger:      logger,
	}), nil, logger, chatOpts...)
	t.Cleanup(chat.Close)

	cfg := &Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(service, logger),
		ChatHandler:        chat,
		CheckpointsHandler: checkpoints.NewHandler(cpStore, logger),
		AdminAuthSecret:    testSecret,
		RateLimiter:        limiter,
	}
	return &testEnv{handler: New(cfg), repo: repo, checkpoints: cpStore}
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := httpmiddleware.AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "router-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func intakeBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"name":        "Router Test",
		"email":       "router@example.com",
		"phone":       "(614) 555-0134",
		"case_type":   "ovi_dui",
		"county":      "franklin",
		"urgency":     "soon",
		"how_found":   "google_search",
		"message":     "Arrested Saturday night",
		"lead_source": "modal",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
}

func TestRouterHealthReportsFailedCheck(t *testing.T) {
	h := New(&Config{
		Logger: logging.New("error"),
		HealthChecks: map[string]func(context.Context) error{
			"database": func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["database"] != "connection refused" {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestRouterIntakeOptions(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/intake/options", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp optionsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.CaseTypes) != len(intake.CaseTypeOptions()) || len(resp.Counties) == 0 {
		t.Fatalf("unexpected options %+v", resp)
	}
}

func TestRouterIntakeEndpoint(t *testing.T) {
	env := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/intake", bytes.NewReader(intakeBody(t)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var resp leads.SubmitResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.ID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	stored, err := env.repo.GetByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("lead not stored: %v", err)
	}
	if stored.Phone != "6145550134" || stored.LeadSource != "modal" {
		t.Errorf("unexpected stored lead %+v", stored)
	}
}

func TestRouterIntakeRateLimited(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Close()
	env := newTestRouter(t, limiter)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/intake", bytes.NewReader(intakeBody(t)))
		req.RemoteAddr = "203.0.113.9:4321"
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send(); code != http.StatusCreated {
		t.Fatalf("expected first submission to succeed, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, code)
	}
}

func TestRouterChatAnswerSharesIntakeLimiter(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Close()
	env := newTestRouter(t, limiter)

	req := httptest.NewRequest(http.MethodPost, "/api/intake", bytes.NewReader(intakeBody(t)))
	req.RemoteAddr = "203.0.113.9:4321"
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected first submission to succeed, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/chat/sessions/session-0201/answer", strings.NewReader(`{"type":"answer","text":"Jane Doe"}`))
	req.RemoteAddr = "203.0.113.9:5555"
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, rr.Code)
	}

	// other clients keep their own budget
	req = httptest.NewRequest(http.MethodPost, "/chat/sessions/session-0201/answer", strings.NewReader(`{"type":"answer","text":"Jane Doe"}`))
	req.RemoteAddr = "198.51.100.20:5555"
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterAdminUnmountedWithoutSecret(t *testing.T) {
	h := New(&Config{Logger: logging.New("error")})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterAdminUpdatesLeadStatus(t *testing.T) {
	env := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/intake", bytes.NewReader(intakeBody(t)))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	var created leads.SubmitResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodPatch, "/admin/leads/"+created.ID+"/status", strings.NewReader(`{"status":"contacted"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	lead, err := env.repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.Status != leads.StatusContacted {
		t.Fatalf("expected status contacted, got %q", lead.Status)
	}
}

func TestRouterCheckpointsEndpoint(t *testing.T) {
	env := newTestRouter(t, nil)
	start := time.Now().Add(48 * time.Hour)
	err := env.checkpoints.Upsert(context.Background(), &checkpoints.Checkpoint{
		ID:       "cp-1",
		County:   "franklin",
		Location: "Broad Street",
		StartsAt: start,
		EndsAt:   start.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/checkpoints/cp-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/checkpoints/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterChatSessionLifecycle(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/sessions", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+created.SessionID+"/answer", strings.NewReader(`{"type":"answer","text":"Jane Doe"}`))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}
