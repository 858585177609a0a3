package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	"github.com/wolfman30/whatsapp-tour-booking/internal/events"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

const maxWebhookBody = 1 << 20

// ParsedMessage is one guest message pulled from a webhook delivery.
type ParsedMessage struct {
	PhoneNumberID string
	From          string
	ProfileName   string
	MessageID     string
	Text          string
	Interactive   bool
	Timestamp     time.Time
}

// CompanyResolver maps the receiving business number to a tenant.
type CompanyResolver interface {
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (company.Company, error)
}

// InboundPublisher hands a normalized message to the conversation queue.
type InboundPublisher interface {
	EnqueueMessage(ctx context.Context, msg messaging.Inbound) error
}

// WebhookConfig wires the webhook's collaborators.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Companies   CompanyResolver
	Publisher   InboundPublisher
	Deduper     events.Deduper
	Metrics     *metrics.MessagingMetrics
	Logger      *logging.Logger
}

// WebhookHandler handles Cloud API verification and inbound deliveries.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	companies   CompanyResolver
	publisher   InboundPublisher
	dedupe      events.Deduper
	metrics     *metrics.MessagingMetrics
	logger      *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Companies == nil {
		panic("whatsapp: company resolver required")
	}
	if cfg.Publisher == nil {
		panic("whatsapp: publisher required")
	}
	if cfg.Deduper == nil {
		cfg.Deduper = events.NewMemoryDeduper(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		companies:   cfg.Companies,
		publisher:   cfg.Publisher,
		dedupe:      cfg.Deduper,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// HandleVerification answers the GET subscription challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound verifies, parses, dedupes and enqueues a POST delivery.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(events.ProviderWhatsApp, time.Since(start).Seconds()) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.metrics.ObserveInbound(events.ProviderWhatsApp, "bad_signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	messages, err := ParseWebhook(body)
	if err != nil {
		h.metrics.ObserveInbound(events.ProviderWhatsApp, "bad_payload")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for _, msg := range messages {
		status := h.enqueue(ctx, msg)
		h.metrics.ObserveInbound(events.ProviderWhatsApp, status)
		if status == "enqueue_failed" {
			// Meta redelivers the whole batch on non-2xx.
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) enqueue(ctx context.Context, msg ParsedMessage) string {
	co, err := h.companies.ByPhoneNumberID(ctx, msg.PhoneNumberID)
	if err != nil {
		if errors.Is(err, company.ErrNotFound) {
			h.logger.Warn("whatsapp: no company for phone number id", "phone_number_id", msg.PhoneNumberID)
			return "unknown_company"
		}
		h.logger.Error("whatsapp: company lookup failed", "error", err, "phone_number_id", msg.PhoneNumberID)
		return "enqueue_failed"
	}
	first, err := h.dedupe.FirstSeen(ctx, events.ProviderWhatsApp, msg.MessageID)
	if err != nil {
		// Fail open.
		h.logger.Warn("whatsapp: dedupe check failed", "error", err, "message_id", msg.MessageID)
		first = true
	}
	if !first {
		h.logger.Info("whatsapp: duplicate delivery ignored", "message_id", msg.MessageID)
		return "duplicate"
	}
	err = h.publisher.EnqueueMessage(ctx, messaging.Inbound{
		CompanyID:   co.ID,
		From:        msg.From,
		ProfileName: msg.ProfileName,
		MessageID:   msg.MessageID,
		Text:        msg.Text,
		Interactive: msg.Interactive,
		ReceivedAt:  msg.Timestamp,
	})
	if err != nil {
		h.logger.Error("whatsapp: enqueue failed", "error", err, "message_id", msg.MessageID)
		if relErr := h.dedupe.Release(ctx, events.ProviderWhatsApp, msg.MessageID); relErr != nil {
			h.logger.Warn("whatsapp: release dedupe claim failed", "error", relErr, "message_id", msg.MessageID)
		}
		return "enqueue_failed"
	}
	return "enqueued"
}

// ParseWebhook extracts guest messages from a delivery. Status updates and
// unsupported message types are skipped.
func ParseWebhook(body []byte) ([]ParsedMessage, error) {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	var out []ParsedMessage
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range value.Messages {
				text, interactive := messageText(m)
				if text == "" {
					continue
				}
				out = append(out, ParsedMessage{
					PhoneNumberID: value.Metadata.PhoneNumberID,
					From:          m.From,
					ProfileName:   names[m.From],
					MessageID:     m.ID,
					Text:          text,
					Interactive:   interactive,
					Timestamp:     parseUnix(m.Timestamp),
				})
			}
		}
	}
	return out, nil
}

func messageText(m webhookMessage) (string, bool) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return strings.TrimSpace(m.Text.Body), false
		}
	case "interactive":
		if m.Interactive == nil {
			return "", false
		}
		switch m.Interactive.Type {
		case "button_reply":
			if m.Interactive.ButtonReply != nil {
				return strings.TrimSpace(m.Interactive.ButtonReply.ID), true
			}
		case "list_reply":
			if m.Interactive.ListReply != nil {
				return strings.TrimSpace(m.Interactive.ListReply.ID), true
			}
		}
	case "button":
		if m.Button != nil {
			if p := strings.TrimSpace(m.Button.Payload); p != "" {
				return p, true
			}
			return strings.TrimSpace(m.Button.Text), false
		}
	}
	return "", false
}

func parseUnix(ts string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// VerifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>").
func VerifySignature(appSecret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if appSecret == "" || !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature[len(prefix):])))
}
