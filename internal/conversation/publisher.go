package conversation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// Publisher enqueues conversation jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes an inbound WhatsApp message.
func (p *Publisher) EnqueueMessage(ctx context.Context, in messaging.Inbound) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeMessage, Message: &in}, guestGroup(in.CompanyID, in.From))
}

// EnqueuePayment publishes a verified payment outcome.
func (p *Publisher) EnqueuePayment(ctx context.Context, o payments.Outcome) error {
	group := "payment:" + strconv.FormatInt(o.BookingID, 10)
	if o.Phone != "" {
		group = guestGroup(o.CompanyID, o.Phone)
	}
	return p.enqueue(ctx, queuePayload{Kind: jobTypePayment, Payment: &o}, group)
}

func guestGroup(companyID int64, from string) string {
	return sessionLockKey(companyID, phone.Sanitize(from))
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload, groupID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body, groupID); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
