package rankcheck

import (
	"encoding/json"
	"net/http"
	"strings"
)

const maxKeywords = 20

// Handler serves POST /admin/rank-check.
type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.checker == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rank checking is not configured"})
		return
	}
	var req struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 || len(keywords) > maxKeywords {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "provide between 1 and 20 keywords"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"results": h.checker.CheckAll(r.Context(), keywords)})
}
