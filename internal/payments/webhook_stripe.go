package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	"github.com/wolfman30/whatsapp-tour-booking/internal/events"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

const maxStripeBody = 1 << 20

var (
	successEvents = map[string]bool{
		"checkout.session.completed":               true,
		"checkout.session.async_payment_succeeded": true,
	}
	failureEvents = map[string]bool{
		"checkout.session.async_payment_failed": true,
		"payment_intent.payment_failed":         true,
	}
)

// CompanySecrets resolves a company's own webhook secret.
type CompanySecrets interface {
	ByID(ctx context.Context, id int64) (company.Company, error)
}

// ProcessedTracker records which provider events were already handled.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Unmark(ctx context.Context, provider, eventID string) error
}

// OutcomePublisher hands a payment outcome to the conversation worker.
type OutcomePublisher interface {
	EnqueuePayment(ctx context.Context, outcome Outcome) error
}

// WebhookConfig wires the Stripe webhook handler.
type WebhookConfig struct {
	// Secret is used when the company has no secret of its own.
	Secret    string
	Companies CompanySecrets
	Processed ProcessedTracker
	Publisher OutcomePublisher
	Metrics   *metrics.MessagingMetrics
	Logger    *logging.Logger
}

// StripeWebhookHandler handles Stripe checkout and payment intent events.
type StripeWebhookHandler struct {
	secret    string
	companies CompanySecrets
	processed ProcessedTracker
	publisher OutcomePublisher
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
}

func NewStripeWebhookHandler(cfg WebhookConfig) *StripeWebhookHandler {
	if cfg.Processed == nil {
		panic("payments: processed tracker required")
	}
	if cfg.Publisher == nil {
		panic("payments: outcome publisher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &StripeWebhookHandler{
		secret:    cfg.Secret,
		companies: cfg.Companies,
		processed: cfg.Processed,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(events.ProviderStripe, time.Since(start).Seconds()) }()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxStripeBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		h.metrics.ObserveInbound(events.ProviderStripe, "bad_payload")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	object := evt.Data.Object
	companyID := metadataInt(object.Metadata, "company_id")

	secret, err := h.secretFor(r.Context(), companyID)
	if err != nil {
		h.logger.Error("stripe webhook company lookup failed", "error", err, "company_id", companyID)
		http.Error(w, "server error", http.StatusServiceUnavailable)
		return
	}
	if secret == "" {
		h.logger.Warn("stripe webhook secret not configured; accepting unsigned event", "event_id", evt.ID)
	} else if err := webhook.ValidatePayload(payload, r.Header.Get("Stripe-Signature"), secret); err != nil {
		h.metrics.ObserveInbound(events.ProviderStripe, "bad_signature")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	succeeded := successEvents[evt.Type]
	if !succeeded && !failureEvents[evt.Type] {
		h.metrics.ObserveInbound(events.ProviderStripe, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if processed, err := h.processed.AlreadyProcessed(ctx, events.ProviderStripe, evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if processed {
		h.metrics.ObserveInbound(events.ProviderStripe, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	bookingID := metadataInt(object.Metadata, "booking_id")
	if companyID <= 0 || bookingID <= 0 {
		// Acknowledge; a retry would carry the same metadata.
		h.logger.Warn("stripe webhook missing booking metadata", "event_id", evt.ID, "type", evt.Type)
		h.metrics.ObserveInbound(events.ProviderStripe, "missing_metadata")
		w.WriteHeader(http.StatusOK)
		return
	}

	ref := object.PaymentIntent
	if ref == "" {
		ref = object.ID
	}
	occurred := time.Unix(evt.Created, 0).UTC()
	if evt.Created <= 0 {
		occurred = time.Now().UTC()
	}
	amount := object.AmountTotal
	if amount == 0 {
		amount = object.Amount
	}
	outcome := Outcome{
		EventID:       evt.ID,
		CompanyID:     companyID,
		BookingID:     bookingID,
		ChatSessionID: object.Metadata["chat_session_id"],
		Phone:         object.Metadata["phone"],
		Ref:           ref,
		Succeeded:     succeeded,
		Amount:        amount,
		Currency:      strings.ToUpper(object.Currency),
		OccurredAt:    occurred,
	}

	// Claim before enqueueing so concurrent redeliveries produce one job.
	claimed, err := h.processed.MarkProcessed(ctx, events.ProviderStripe, evt.ID)
	if err != nil {
		h.logger.Error("failed to claim stripe event", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !claimed {
		h.metrics.ObserveInbound(events.ProviderStripe, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.publisher.EnqueuePayment(ctx, outcome); err != nil {
		h.logger.Error("failed to enqueue payment outcome", "error", err, "event_id", evt.ID)
		h.metrics.ObserveInbound(events.ProviderStripe, "enqueue_failed")
		if uerr := h.processed.Unmark(ctx, events.ProviderStripe, evt.ID); uerr != nil {
			h.logger.Error("failed to release stripe event claim", "error", uerr, "event_id", evt.ID)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("stripe payment outcome enqueued",
		"event_id", evt.ID, "type", evt.Type, "company_id", companyID, "booking_id", bookingID)
	h.metrics.ObserveInbound(events.ProviderStripe, "enqueued")
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) secretFor(ctx context.Context, companyID int64) (string, error) {
	if companyID <= 0 || h.companies == nil {
		return h.secret, nil
	}
	co, err := h.companies.ByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, company.ErrNotFound) {
			return h.secret, nil
		}
		return "", err
	}
	if s := strings.TrimSpace(co.StripeWebhookSecret); s != "" {
		return s, nil
	}
	return h.secret, nil
}

func metadataInt(md map[string]string, key string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(md[key]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeEventObject `json:"object"`
	} `json:"data"`
}

// stripeEventObject covers the checkout.session and payment_intent fields we read.
type stripeEventObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}
