package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

func janePayload() intake.Payload {
	return intake.Payload{
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Phone:      "7402011444",
		CaseType:   "ovi_dui",
		Urgency:    "urgent",
		HowFound:   "google_search",
		Message:    "I was pulled over last night",
		LeadSource: "chat",
	}
}

func newTestHandler(deps ServiceDeps) (*Handler, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	if deps.Repo == nil {
		deps.Repo = repo
	}
	deps.Logger = logging.New("error")
	return NewHandler(NewService(deps), deps.Logger), repo
}

func postIntake(h *Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/intake", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Submit(w, req)
	return w
}

func TestSubmit_Success(t *testing.T) {
	handler, repo := newTestHandler(ServiceDeps{})

	body, _ := json.Marshal(janePayload())
	w := postIntake(handler, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.ID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	lead, err := repo.GetByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("lead not stored: %v", err)
	}
	if lead.CaseType != "ovi_dui" || lead.Urgency != "urgent" || lead.Status != StatusNew {
		t.Errorf("unexpected lead %+v", lead)
	}
	if lead.HowFoundDetail != nil {
		t.Errorf("expected nil how_found_detail, got %q", *lead.HowFoundDetail)
	}
}

func TestSubmit_InvalidRequest(t *testing.T) {
	handler, _ := newTestHandler(ServiceDeps{})

	p := janePayload()
	p.Name = ""
	body, _ := json.Marshal(p)
	w := postIntake(handler, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var resp map[string]any
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["error"] != intake.ErrNameRequired.Error() {
		t.Errorf("expected name error, got %v", resp["error"])
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	handler, _ := newTestHandler(ServiceDeps{})
	w := postIntake(handler, []byte("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("expected JSON error body, got %s", w.Body.String())
	}
}

func TestSubmit_HoneypotAcceptedNotStored(t *testing.T) {
	handler, repo := newTestHandler(ServiceDeps{})

	p := janePayload()
	p.Honeypot = "http://spam.example"
	body, _ := json.Marshal(p)
	w := postIntake(handler, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
	leads, _ := repo.List(context.Background(), ListFilter{})
	if len(leads) != 0 {
		t.Fatalf("expected honeypot lead to be dropped, got %d stored", len(leads))
	}
}

func TestSubmit_VerificationFailure(t *testing.T) {
	handler, repo := newTestHandler(ServiceDeps{Verifier: stubVerifier{err: ErrVerificationFailed}})

	body, _ := json.Marshal(janePayload())
	w := postIntake(handler, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Verification failed") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
	leads, _ := repo.List(context.Background(), ListFilter{})
	if len(leads) != 0 {
		t.Fatalf("expected no stored leads, got %d", len(leads))
	}
}

func adminRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/leads", h.ListLeads)
	r.Get("/admin/leads/{leadID}", h.GetLead)
	r.Patch("/admin/leads/{leadID}/status", h.UpdateStatus)
	return r
}

func TestAdminLeadEndpoints(t *testing.T) {
	handler, repo := newTestHandler(ServiceDeps{})
	ctx := context.Background()

	chat, err := repo.Create(ctx, &CreateLeadRequest{Payload: janePayload()})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	modal := janePayload()
	modal.LeadSource = "modal"
	modal.CaseType = "drug_charges"
	if _, err := repo.Create(ctx, &CreateLeadRequest{Payload: modal}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := adminRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads?source=chat", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list ListLeadsResponse
	_ = json.NewDecoder(w.Body).Decode(&list)
	if list.Count != 1 || list.Leads[0].ID != chat.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads/"+chat.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/admin/leads/"+chat.ID+"/status", strings.NewReader(`{"status":"contacted"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", w.Code)
	}
	updated, _ := repo.GetByID(ctx, chat.ID)
	if updated.Status != StatusContacted {
		t.Errorf("expected contacted, got %s", updated.Status)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/admin/leads/"+chat.ID+"/status", strings.NewReader(`{"status":"archived"}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("patch invalid: expected 400, got %d", w.Code)
	}
}
