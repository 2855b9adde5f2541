package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/defense-intake/internal/checkpoints"
	httpmiddleware "github.com/wolfman30/defense-intake/internal/http/middleware"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/internal/rankcheck"
	"github.com/wolfman30/defense-intake/internal/reviews"
	"github.com/wolfman30/defense-intake/internal/webchat"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *leads.Handler
	ChatHandler        *webchat.Handler
	CheckpointsHandler *checkpoints.Handler
	ReviewsHandler     *reviews.Handler
	RankHandler        *rankcheck.Handler
	MetricsHandler     http.Handler
	Observer           httpmiddleware.RequestObserver
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Applied to intake submissions, keyed by client IP. The chat handler
	// carries its own limiter for answers over both transports.
	RateLimiter *httpmiddleware.RateLimiter

	// Readiness probes reported by /health, e.g. database ping
	HealthChecks map[string]func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Observer))

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		return httpmiddleware.RateLimit(cfg.RateLimiter)(h)
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/intake/options", optionsHandler)
		if cfg.LeadsHandler != nil {
			api.Method(http.MethodPost, "/intake", limited(cfg.LeadsHandler.Submit))
		}
		if cfg.CheckpointsHandler != nil {
			api.Get("/checkpoints", cfg.CheckpointsHandler.ListUpcoming)
			api.Get("/checkpoints/{checkpointID}", cfg.CheckpointsHandler.Get)
		}
	})

	if cfg.ChatHandler != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.Get("/ws", cfg.ChatHandler.HandleWebSocket)
			chat.Post("/sessions", cfg.ChatHandler.CreateSession)
			chat.Get("/sessions/{sessionID}", cfg.ChatHandler.GetSession)
			chat.Post("/sessions/{sessionID}/answer", cfg.ChatHandler.AnswerSession)
			chat.Delete("/sessions/{sessionID}", cfg.ChatHandler.ResetSession)
		})
	}

	// Admin routes stay unmounted without a signing secret
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
				admin.Patch("/leads/{leadID}/status", cfg.LeadsHandler.UpdateStatus)
			}
			if cfg.ReviewsHandler != nil {
				admin.Get("/reviews", cfg.ReviewsHandler.ListReviews)
				admin.Post("/reviews/reply-draft", cfg.ReviewsHandler.DraftReply)
				admin.Post("/reviews/{reviewID}/reply", cfg.ReviewsHandler.PostReply)
			}
			if cfg.RankHandler != nil {
				admin.Post("/rank-check", cfg.RankHandler.Check)
			}
		})
	}

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		writeJSON(w, status, resp)
	}
}

type optionsResponse struct {
	CaseTypes []intake.Option `json:"case_types"`
	Counties  []intake.Option `json:"counties"`
	Urgency   []intake.Option `json:"urgency"`
	HowFound  []intake.Option `json:"how_found"`
}

// optionsHandler serves the option catalog so every surface renders the same choices.
func optionsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, optionsResponse{
		CaseTypes: intake.CaseTypeOptions(),
		Counties:  intake.CountyOptions(),
		Urgency:   intake.UrgencyOptions(),
		HowFound:  intake.ReferralOptions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
