package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func TestPublisher_EnqueueMessage(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	in := messaging.Inbound{CompanyID: 3, From: "+971 50 123 4567", MessageID: "wamid.1", Text: "hi"}
	if err := publisher.EnqueueMessage(context.Background(), in); err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Kind != jobTypeMessage {
		t.Fatalf("expected jobType message, got %s", payload.Kind)
	}
	if payload.ID == "" {
		t.Fatalf("expected generated job id")
	}
	if payload.Message == nil || payload.Message.MessageID != "wamid.1" {
		t.Fatalf("expected inbound message in payload, got %#v", payload.Message)
	}
	if queue.groups[0] != "3:971501234567" {
		t.Fatalf("expected per-guest group, got %q", queue.groups[0])
	}
}

func TestPublisher_EnqueuePayment(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, nil)

	o := payments.Outcome{EventID: "evt_1", CompanyID: 3, BookingID: 42, Succeeded: true, Ref: "pi_1"}
	if err := publisher.EnqueuePayment(context.Background(), o); err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Kind != jobTypePayment || payload.Payment == nil || payload.Payment.BookingID != 42 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if queue.groups[0] != "payment:42" {
		t.Fatalf("expected booking group without phone, got %q", queue.groups[0])
	}
}

func TestPublisher_WrapsQueueError(t *testing.T) {
	publisher := NewPublisher(&stubQueue{err: errors.New("queue down")}, nil)
	err := publisher.EnqueueMessage(context.Background(), messaging.Inbound{CompanyID: 1, From: "1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

type stubQueue struct {
	sent   []string
	groups []string
	err    error
}

func (s *stubQueue) Send(ctx context.Context, body, groupID string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	s.groups = append(s.groups, groupID)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	return nil, context.Canceled
}

func (s *stubQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}
