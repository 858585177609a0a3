package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/catalog"
	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// BuildNLU returns the extractor and generator for the engine. Without an LLM
// client the engine runs on regex rules and fixed templates.
func BuildNLU(client nlu.LLMClient, logger *logging.Logger) (nlu.Extractor, nlu.Generator) {
	if client == nil {
		return nlu.RuleExtractor{}, nlu.NewTemplateGenerator()
	}
	extractor := nlu.NewChainExtractor(nlu.RuleExtractor{}, nlu.NewLLMExtractor(client, "", logger))
	return extractor, nlu.NewLLMGenerator(client, "", logger)
}

// BuildPaymentLinks wires Stripe with the per-booking link limit when Redis is available.
func BuildPaymentLinks(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *payments.StripeLinkProvider {
	var velocity *payments.LinkVelocity
	if redisClient != nil && cfg.PaymentLinkLimit > 0 {
		velocity = payments.NewLinkVelocity(redisClient, cfg.PaymentLinkLimit, cfg.PaymentLinkWindow, logger)
	}
	if cfg.StripeDryRun {
		logger.Warn("stripe dry run enabled; payment links are fake")
	}
	return payments.NewStripeLinkProvider(payments.StripeConfig{
		SecretKey: cfg.StripeSecretKey,
		DryRun:    cfg.StripeDryRun,
		Velocity:  velocity,
		Logger:    logger,
	})
}

// EngineParts is what the worker needs besides the engine itself.
type EngineParts struct {
	Engine   *conversation.Engine
	Bookings *bookings.Finalizer
}

// BuildEngine wires the conversation engine onto the shared infrastructure.
func BuildEngine(cfg *appconfig.Config, infra *Infra, llm nlu.LLMClient, m *metrics.ConversationMetrics, logger *logging.Logger) (EngineParts, error) {
	if cfg == nil {
		return EngineParts{}, fmt.Errorf("bootstrap: config is required")
	}
	if infra == nil || infra.Pool == nil || infra.Companies == nil {
		return EngineParts{}, fmt.Errorf("bootstrap: postgres infrastructure is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	finalizer := bookings.NewFinalizer(infra.Pool, logger)
	extractor, generator := BuildNLU(llm, logger)

	engine := conversation.NewEngine(conversation.EngineConfig{
		Sessions:        conversation.NewPostgresSessionStore(infra.Pool),
		Locker:          BuildLocker(infra.Redis, cfg),
		Companies:       infra.Companies,
		Catalog:         catalog.NewRepository(infra.Pool, cfg.PublicBaseURL),
		Fleet:           fleet.NewResolver(fleet.NewPostgresStore(infra.Pool)),
		Bookings:        finalizer,
		Payments:        BuildPaymentLinks(cfg, infra.Redis, logger),
		Extractor:       extractor,
		Generator:       generator,
		Metrics:         m,
		Logger:          logger,
		DefaultTimezone: cfg.DefaultTimezone,
		DefaultCurrency: cfg.DefaultCurrency,
	})
	return EngineParts{Engine: engine, Bookings: finalizer}, nil
}
