package checkpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// Handler serves the public checkpoint listing.
type Handler struct {
	store  Store
	now    func() time.Time
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, now: time.Now, logger: logger}
}

// ListUpcoming handles GET /api/checkpoints.
func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.store.ListUpcoming(r.Context(), h.now(), limit)
	if err != nil {
		h.logger.Error("checkpoints: list failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load checkpoints"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": items})
}

// Get handles GET /api/checkpoints/{checkpointID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cp, err := h.store.Get(r.Context(), chi.URLParam(r, "checkpointID"))
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "checkpoint not found"})
		return
	}
	if err != nil {
		h.logger.Error("checkpoints: get failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load checkpoint"})
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
