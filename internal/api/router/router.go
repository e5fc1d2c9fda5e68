package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-voice-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-voice-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger    *logging.Logger
	VoiceTurn *handlers.VoiceTurnHandler

	// MetricsHandler serves Prometheus scrapes when set.
	MetricsHandler http.Handler

	// WebhookRateLimit caps voice webhook requests per second per IP.
	// Zero disables rate limiting.
	WebhookRateLimit float64
	WebhookBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.VoiceTurn != nil {
		r.Group(func(webhooks chi.Router) {
			if cfg.WebhookRateLimit > 0 {
				webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookBurst))
			}
			webhooks.Post("/webhooks/voice/turn", cfg.VoiceTurn.HandleTurn)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
