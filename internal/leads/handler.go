package leads

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

const maxIntakeBody = 32 << 10

// Handler handles HTTP requests for leads
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// SubmitResponse is returned for accepted submissions.
type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type errorResponse struct {
	Error  string             `json:"error"`
	Fields intake.FieldErrors `json:"fields,omitempty"`
}

// Submit handles POST /api/intake requests
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload intake.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntakeBody)).Decode(&payload); err != nil {
		h.logger.Warn("leads: failed to decode intake request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body."})
		return
	}
	if payload.LeadSource == "" {
		payload.LeadSource = string(intake.SourceModal)
	}

	lead, err := h.service.Submit(r.Context(), &CreateLeadRequest{
		Payload:   payload,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrHoneypot):
		writeJSON(w, http.StatusCreated, SubmitResponse{Success: true})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Message(), Fields: vErr.Fields})
	case errors.Is(err, ErrVerificationFailed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrVerificationFailed.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "We couldn't save your information. Please call our office directly."})
	default:
		writeJSON(w, http.StatusCreated, SubmitResponse{Success: true, ID: lead.ID})
	}
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /admin/leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Limit:      50,
		LeadSource: q.Get("source"),
		CaseType:   q.Get("case_type"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	leads, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /admin/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.service.Get(r.Context(), chi.URLParam(r, "leadID"))
	if errors.Is(err, ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get lead", "error", err)
		http.Error(w, "failed to get lead", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type updateStatusRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus handles PATCH /admin/leads/{leadID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	lead, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "leadID"), req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrLeadNotFound):
		http.Error(w, "lead not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to update lead status", "error", err)
		http.Error(w, "failed to update lead", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, lead)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
