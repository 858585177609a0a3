package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-tour-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-tour-booking/internal/http/middleware"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging/whatsapp"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WhatsApp       *whatsapp.WebhookHandler
	Stripe         *payments.StripeWebhookHandler
	Operator       *handlers.OperatorHandler
	OperatorSecret string
	MetricsHandler http.Handler
	// HealthChecks are run by /health; a failing check turns the response into 503.
	HealthChecks map[string]HealthCheck

	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(hooks chi.Router) {
		hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
		if cfg.WhatsApp != nil {
			hooks.Get("/whatsapp", cfg.WhatsApp.HandleVerification)
			hooks.Post("/whatsapp", cfg.WhatsApp.HandleInbound)
		}
		if cfg.Stripe != nil {
			hooks.Post("/stripe", cfg.Stripe.Handle)
		}
	})

	if cfg.Operator != nil {
		r.Route("/operator/companies/{companyID}", func(op chi.Router) {
			op.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret))
			op.Get("/bookings/{bookingID}", cfg.Operator.GetBooking)
			op.Get("/guests/{phone}/messages", cfg.Operator.ListMessages)
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				resp[name] = "unavailable"
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
