package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/wolfman30/defense-intake/internal/api/router"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

const intakeJSON = `{"name":"Lambda Test","email":"lambda@example.com","phone":"740-555-0101",
"case_type":"drug_charges","county":"licking","urgency":"urgent","how_found":"google_maps",
"message":"Court date Monday","lead_source":"quick_form"}`

func newTestHandler(t *testing.T) (http.Handler, *leads.InMemoryRepository) {
	t.Helper()
	logger := logging.New("error")
	repo := leads.NewInMemoryRepository()
	svc := leads.NewService(leads.ServiceDeps{Repo: repo, Logger: logger})
	return router.New(&router.Config{Logger: logger, LeadsHandler: leads.NewHandler(svc, logger)}), repo
}

func apiEvent(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:    method,
				Path:      path,
				SourceIP:  "198.51.100.7",
				UserAgent: "lambda-test",
			},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := handle(context.Background(), h, apiEvent(http.MethodGet, "/health", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if resp.Headers["content-type"] != "application/json" {
		t.Fatalf("expected json content type, got %q", resp.Headers["content-type"])
	}
}

func TestHandleSubmitsLead(t *testing.T) {
	h, repo := newTestHandler(t)

	resp, err := handle(context.Background(), h, apiEvent(http.MethodPost, "/api/intake", intakeJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.StatusCode, resp.Body)
	}

	var body leads.SubmitResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	lead, err := repo.GetByID(context.Background(), body.ID)
	if err != nil {
		t.Fatalf("lead not stored: %v", err)
	}
	if lead.IPAddress != "198.51.100.7" || lead.UserAgent != "lambda-test" {
		t.Fatalf("expected request metadata on lead, got ip=%q ua=%q", lead.IPAddress, lead.UserAgent)
	}
	if lead.LeadSource != "quick_form" {
		t.Fatalf("expected quick_form source, got %q", lead.LeadSource)
	}
}

func TestHandleBase64Body(t *testing.T) {
	h, _ := newTestHandler(t)

	evt := apiEvent(http.MethodPost, "/api/intake", base64.StdEncoding.EncodeToString([]byte(intakeJSON)))
	evt.IsBase64Encoded = true
	resp, err := handle(context.Background(), h, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
}

func TestHandleInvalidBase64(t *testing.T) {
	h, _ := newTestHandler(t)

	evt := apiEvent(http.MethodPost, "/api/intake", "%%%")
	evt.IsBase64Encoded = true
	resp, err := handle(context.Background(), h, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleUnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := handle(context.Background(), h, apiEvent(http.MethodPost, "/webhooks/other", "{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}
