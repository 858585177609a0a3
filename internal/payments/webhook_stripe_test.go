package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func buildStripePayload(t *testing.T, eventID, eventType, paymentIntentID string, metadata map[string]string) []byte {
	t.Helper()
	evt := map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_test_1",
				"payment_intent": paymentIntentID,
				"amount_total":   60000,
				"currency":       "aed",
				"metadata":       metadata,
				"status":         "complete",
			},
		},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal stripe event: %v", err)
	}
	return data
}

func stripeSign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

type memoryProcessed struct {
	mu       sync.Mutex
	seen     map[string]bool
	err      error
	unmarked []string
}

func (m *memoryProcessed) AlreadyProcessed(_ context.Context, provider, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.seen[provider+":"+id], nil
}

func (m *memoryProcessed) MarkProcessed(_ context.Context, provider, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	key := provider + ":" + id
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memoryProcessed) Unmark(_ context.Context, provider, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, provider+":"+id)
	m.unmarked = append(m.unmarked, id)
	return nil
}

type recordingPublisher struct {
	outcomes []Outcome
	err      error
}

func (p *recordingPublisher) EnqueuePayment(_ context.Context, o Outcome) error {
	if p.err != nil {
		return p.err
	}
	p.outcomes = append(p.outcomes, o)
	return nil
}

type stubSecrets map[int64]company.Company

func (s stubSecrets) ByID(_ context.Context, id int64) (company.Company, error) {
	co, ok := s[id]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	return co, nil
}

func newStripeHandler(pub *recordingPublisher, processed *memoryProcessed) *StripeWebhookHandler {
	return NewStripeWebhookHandler(WebhookConfig{
		Secret:    "whsec_global",
		Companies: stubSecrets{7: {ID: 7, StripeWebhookSecret: "whsec_company7"}},
		Processed: processed,
		Publisher: pub,
		Logger:    logging.NewWithWriter("error", io.Discard),
	})
}

func postStripe(h *StripeWebhookHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestStripeWebhookHandler_Success(t *testing.T) {
	pub := &recordingPublisher{}
	processed := &memoryProcessed{}
	h := newStripeHandler(pub, processed)

	payload := buildStripePayload(t, "evt_1", "checkout.session.completed", "pi_123", map[string]string{
		"company_id":      "7",
		"booking_id":      "42",
		"chat_session_id": "0b7f5a52-3f0e-4d8f-9d51-4b4c2f5a9e10",
		"phone":           "971501234567",
	})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(pub.outcomes))
	}
	got := pub.outcomes[0]
	if !got.Succeeded || got.CompanyID != 7 || got.BookingID != 42 || got.ChatSessionID != "0b7f5a52-3f0e-4d8f-9d51-4b4c2f5a9e10" {
		t.Fatalf("unexpected outcome %+v", got)
	}
	if got.Ref != "pi_123" || got.Amount != 60000 || got.Currency != "AED" || got.Phone != "971501234567" {
		t.Fatalf("unexpected outcome details %+v", got)
	}

	// Redelivery is acknowledged without a second job.
	rec = postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	if len(pub.outcomes) != 1 {
		t.Fatalf("expected duplicate to be skipped, got %d outcomes", len(pub.outcomes))
	}
}

func TestStripeWebhookHandler_FailureEvent(t *testing.T) {
	pub := &recordingPublisher{}
	h := newStripeHandler(pub, &memoryProcessed{})

	payload := buildStripePayload(t, "evt_2", "checkout.session.async_payment_failed", "", map[string]string{
		"company_id": "7",
		"booking_id": "42",
	})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.outcomes) != 1 || pub.outcomes[0].Succeeded {
		t.Fatalf("expected one failed outcome, got %+v", pub.outcomes)
	}
	if pub.outcomes[0].Ref != "cs_test_1" {
		t.Fatalf("expected session id as ref, got %q", pub.outcomes[0].Ref)
	}
}

func TestStripeWebhookHandler_RejectsWrongSecret(t *testing.T) {
	pub := &recordingPublisher{}
	h := newStripeHandler(pub, &memoryProcessed{})

	payload := buildStripePayload(t, "evt_3", "checkout.session.completed", "pi_1", map[string]string{
		"company_id": "7",
		"booking_id": "42",
	})
	// Company 7 has its own secret, so the global one must not verify.
	rec := postStripe(h, payload, stripeSign(payload, "whsec_global"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(pub.outcomes) != 0 {
		t.Fatalf("expected no outcomes")
	}
}

func TestStripeWebhookHandler_FallsBackToGlobalSecret(t *testing.T) {
	pub := &recordingPublisher{}
	h := newStripeHandler(pub, &memoryProcessed{})

	payload := buildStripePayload(t, "evt_4", "checkout.session.completed", "pi_1", map[string]string{
		"company_id": "99",
		"booking_id": "5",
	})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_global"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.outcomes) != 1 || pub.outcomes[0].CompanyID != 99 {
		t.Fatalf("unexpected outcomes %+v", pub.outcomes)
	}
}

func TestStripeWebhookHandler_IgnoresOtherEvents(t *testing.T) {
	pub := &recordingPublisher{}
	h := newStripeHandler(pub, &memoryProcessed{})

	payload := buildStripePayload(t, "evt_5", "customer.created", "", map[string]string{"company_id": "7"})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.outcomes) != 0 {
		t.Fatalf("expected no outcomes for ignored event")
	}
}

func TestStripeWebhookHandler_MissingMetadataAcknowledged(t *testing.T) {
	pub := &recordingPublisher{}
	h := newStripeHandler(pub, &memoryProcessed{})

	payload := buildStripePayload(t, "evt_6", "checkout.session.completed", "pi_1", map[string]string{})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_global"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.outcomes) != 0 {
		t.Fatalf("expected no outcomes without metadata")
	}
}

func TestStripeWebhookHandler_EnqueueFailureNotMarked(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue down")}
	processed := &memoryProcessed{}
	h := newStripeHandler(pub, processed)

	payload := buildStripePayload(t, "evt_7", "checkout.session.completed", "pi_1", map[string]string{
		"company_id": "7",
		"booking_id": "42",
	})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	done, _ := processed.AlreadyProcessed(context.Background(), "stripe", "evt_7")
	if done {
		t.Fatalf("event must stay unprocessed so Stripe retries it")
	}
	if len(processed.unmarked) != 1 || processed.unmarked[0] != "evt_7" {
		t.Fatalf("expected the claim to be released, got %v", processed.unmarked)
	}

	// Stripe's retry is handled once the queue recovers.
	pub.err = nil
	rec = postStripe(h, payload, stripeSign(payload, "whsec_company7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec.Code)
	}
	if len(pub.outcomes) != 1 {
		t.Fatalf("expected the retry to enqueue, got %d outcomes", len(pub.outcomes))
	}
}

// racingProcessed misses the lookup, as when a concurrent delivery claims the
// event between the lookup and the claim.
type racingProcessed struct {
	*memoryProcessed
}

func (racingProcessed) AlreadyProcessed(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestStripeWebhookHandler_ClaimedEventSkipped(t *testing.T) {
	pub := &recordingPublisher{}
	processed := &memoryProcessed{seen: map[string]bool{"stripe:evt_8": true}}
	h := NewStripeWebhookHandler(WebhookConfig{
		Secret:    "whsec_global",
		Processed: racingProcessed{processed},
		Publisher: pub,
		Logger:    logging.NewWithWriter("error", io.Discard),
	})

	payload := buildStripePayload(t, "evt_8", "checkout.session.completed", "pi_1", map[string]string{
		"company_id": "7",
		"booking_id": "42",
	})
	rec := postStripe(h, payload, stripeSign(payload, "whsec_global"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.outcomes) != 0 {
		t.Fatalf("expected no outcome for a claimed event")
	}
	if len(processed.unmarked) != 0 {
		t.Fatalf("another delivery's claim must not be released")
	}
}

func TestStripeWebhookHandler_BadJSON(t *testing.T) {
	h := newStripeHandler(&recordingPublisher{}, &memoryProcessed{})
	rec := postStripe(h, []byte("{"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
