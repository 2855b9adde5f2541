package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// Source lists reviews and posts replies.
type Source interface {
	ListReviews(ctx context.Context) ([]Review, error)
	PostReply(ctx context.Context, reviewID, comment string) error
}

// Handler exposes the review responder to admins.
type Handler struct {
	source    Source
	generator *Generator
	logger    *logging.Logger
}

func NewHandler(source Source, generator *Generator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{source: source, generator: generator, logger: logger}
}

// ListReviews handles GET /admin/reviews. ?unanswered=true hides reviews
// that already have a reply.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reviews are not configured"})
		return
	}
	all, err := h.source.ListReviews(r.Context())
	if err != nil {
		h.logger.Error("reviews: list failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to load reviews"})
		return
	}
	unanswered := r.URL.Query().Get("unanswered") == "true"
	out := make([]Review, 0, len(all))
	for _, rv := range all {
		if unanswered && rv.Answered() {
			continue
		}
		out = append(out, rv)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": out, "count": len(out)})
}

type draftRequest struct {
	ReviewID string `json:"review_id"`
	Reviewer string `json:"reviewer"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// DraftReply handles POST /admin/reviews/reply-draft.
func (h *Handler) DraftReply(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reply drafting is not configured"})
		return
	}
	var req draftRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be between 1 and 5"})
		return
	}
	draft, err := h.generator.Draft(r.Context(), Review{
		ID:       req.ReviewID,
		Reviewer: req.Reviewer,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"draft": draft})
	case errors.Is(err, ErrUnsafeDraft), errors.Is(err, ErrEmptyDraft):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "could not produce a safe reply, please write one manually"})
	default:
		h.logger.Error("reviews: draft failed", "error", err, "review_id", req.ReviewID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "reply drafting failed"})
	}
}

// PostReply handles POST /admin/reviews/{reviewID}/reply.
func (h *Handler) PostReply(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reviews are not configured"})
		return
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil || req.Comment == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "comment is required"})
		return
	}
	reviewID := chi.URLParam(r, "reviewID")
	if err := h.source.PostReply(r.Context(), reviewID, req.Comment); err != nil {
		h.logger.Error("reviews: reply failed", "error", err, "review_id", reviewID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to post reply"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
