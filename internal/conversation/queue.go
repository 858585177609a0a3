package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
)

// Queue carries conversation jobs between the webhooks and the worker.
type Queue interface {
	// Send enqueues body. groupID orders messages on FIFO queues and is ignored elsewhere.
	Send(ctx context.Context, body, groupID string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received job.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeMessage jobType = "message"
	jobTypePayment jobType = "payment_outcome.v1"
)

type queuePayload struct {
	ID      string             `json:"id"`
	Kind    jobType            `json:"kind"`
	Message *messaging.Inbound `json:"message,omitempty"`
	Payment *payments.Outcome  `json:"payment,omitempty"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
