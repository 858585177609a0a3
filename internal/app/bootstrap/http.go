package bootstrap

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/whatsapp-tour-booking/internal/api/router"
	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/events"
	"github.com/wolfman30/whatsapp-tour-booking/internal/http/handlers"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging/whatsapp"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// HTTPDeps are the pieces the webhook router needs.
type HTTPDeps struct {
	Infra          *Infra
	Publisher      *conversation.Publisher
	Messaging      *metrics.MessagingMetrics
	MetricsHandler http.Handler
}

// BuildRouter mounts the WhatsApp and Stripe webhooks, the operator API and health.
// Without a publisher (the worker process) only health and metrics are served.
func BuildRouter(cfg *appconfig.Config, deps HTTPDeps, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	rc := &router.Config{
		Logger:           logger,
		MetricsHandler:   deps.MetricsHandler,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
		OperatorSecret:   cfg.OperatorJWTSecret,
		HealthChecks:     healthChecks(deps.Infra),
	}
	if deps.Infra == nil || deps.Publisher == nil {
		return router.New(rc)
	}

	rc.WhatsApp = whatsapp.NewWebhookHandler(whatsapp.WebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Companies:   deps.Infra.Companies,
		Publisher:   deps.Publisher,
		Deduper:     BuildDeduper(deps.Infra.Redis, cfg),
		Metrics:     deps.Messaging,
		Logger:      logger,
	})
	warnUnsignedWebhooks(cfg, logger)
	rc.Stripe = payments.NewStripeWebhookHandler(payments.WebhookConfig{
		Secret:    cfg.StripeWebhookSecret,
		Companies: deps.Infra.Companies,
		Processed: events.NewProcessedStore(deps.Infra.Pool),
		Publisher: deps.Publisher,
		Metrics:   deps.Messaging,
		Logger:    logger,
	})
	if cfg.OperatorJWTSecret != "" {
		var transcript handlers.TranscriptReader
		if store := conversation.NewTranscriptStore(deps.Infra.SQL); store != nil {
			transcript = store
		}
		rc.Operator = handlers.NewOperatorHandler(bookings.NewFinalizer(deps.Infra.Pool, logger), transcript, logger)
	}
	return router.New(rc)
}

// warnUnsignedWebhooks flags webhook secrets left empty at startup.
func warnUnsignedWebhooks(cfg *appconfig.Config, logger *logging.Logger) {
	if strings.TrimSpace(cfg.WhatsAppAppSecret) == "" {
		logger.Warn("WHATSAPP_APP_SECRET not set; inbound webhook signatures are not verified")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; Stripe events are only verified for companies with their own secret")
	}
}

func healthChecks(infra *Infra) map[string]router.HealthCheck {
	if infra == nil {
		return nil
	}
	checks := map[string]router.HealthCheck{}
	if infra.Pool != nil {
		checks["postgres"] = infra.Pool.Ping
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}
