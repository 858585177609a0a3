package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/notify"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// Processor is the part of the Engine the worker drives.
type Processor interface {
	Handle(ctx context.Context, in messaging.Inbound) ([]messaging.Message, error)
	ApplyPayment(ctx context.Context, o payments.Outcome) (Outbound, error)
}

// ReplySender delivers a message to a guest through the company's WhatsApp number.
type ReplySender interface {
	Send(ctx context.Context, companyID int64, to string, msg messaging.Message) error
}

// PaymentNotifier tells the operator about a paid booking.
type PaymentNotifier interface {
	NotifyBookingPaid(ctx context.Context, n notify.BookingPaid) error
}

type transcriptAppender interface {
	Append(ctx context.Context, msg TranscriptMessage) error
}

// Worker consumes conversation jobs from the queue and invokes the processor.
type Worker struct {
	processor  Processor
	queue      Queue
	sender     ReplySender
	notifier   PaymentNotifier
	transcript transcriptAppender
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	notifier         PaymentNotifier
	transcript       transcriptAppender
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5

	fallbackReply = "Sorry - I'm having trouble responding right now. Please reply again in a moment."
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithPaymentNotifier wires a notifier to alert operators on payment success.
func WithPaymentNotifier(notifier PaymentNotifier) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.notifier = notifier
	}
}

// WithTranscriptStore records every inbound and outbound message.
func WithTranscriptStore(store *TranscriptStore) WorkerOption {
	return func(cfg *workerConfig) {
		if store != nil {
			cfg.transcript = store
		}
	}
}

// NewWorker constructs a queue consumer around the provided processor.
func NewWorker(processor Processor, queue Queue, sender ReplySender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if sender == nil {
		panic("conversation: reply sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor:  processor,
		queue:      queue,
		sender:     sender,
		notifier:   cfg.notifier,
		transcript: cfg.transcript,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing job", "job_id", payload.ID, "kind", payload.Kind, "msg_id", msg.ID)

	switch {
	case payload.Kind == jobTypeMessage && payload.Message != nil:
		// Guest messages are never retried: a redelivered turn would be applied twice.
		w.handleInbound(ctx, *payload.Message)
	case payload.Kind == jobTypePayment && payload.Payment != nil:
		if err := w.handlePayment(ctx, *payload.Payment); err != nil {
			w.logger.Error("payment job failed, leaving for redelivery",
				"error", err, "job_id", payload.ID, "booking_id", payload.Payment.BookingID)
			return
		}
	default:
		w.logger.Warn("dropping unknown conversation job", "job_id", payload.ID, "kind", payload.Kind)
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleInbound(ctx context.Context, in messaging.Inbound) {
	w.record(ctx, TranscriptMessage{
		CompanyID:         in.CompanyID,
		Phone:             in.From,
		Direction:         DirectionInbound,
		Body:              in.Text,
		ProviderMessageID: in.MessageID,
	})

	replies, err := w.processor.Handle(ctx, in)
	if err != nil {
		w.logger.Error("conversation turn failed", "error", err, "company_id", in.CompanyID, "message_id", in.MessageID)
		replies = []messaging.Message{messaging.Text(fallbackReply)}
	}
	if err := w.sendAll(ctx, in.CompanyID, in.From, replies); err != nil {
		w.logger.Error("failed to send replies", "error", err, "company_id", in.CompanyID, "message_id", in.MessageID)
	}
}

func (w *Worker) handlePayment(ctx context.Context, o payments.Outcome) error {
	out, err := w.processor.ApplyPayment(ctx, o)
	if err != nil {
		return err
	}
	if out.To != "" && len(out.Replies) > 0 {
		if err := w.sendAll(ctx, out.CompanyID, out.To, out.Replies); err != nil {
			// The payment is already recorded; a retry would be ignored as a duplicate.
			w.logger.Error("failed to send payment replies", "error", err, "booking_id", o.BookingID)
		}
	}
	if out.Paid != nil && w.notifier != nil {
		if err := w.notifier.NotifyBookingPaid(ctx, *out.Paid); err != nil {
			w.logger.Warn("operator notification failed", "error", err, "booking_id", out.Paid.BookingID)
		}
	}
	return nil
}

// sendAll delivers replies in order and stops at the first failure.
func (w *Worker) sendAll(ctx context.Context, companyID int64, to string, replies []messaging.Message) error {
	for i, msg := range replies {
		if err := w.sender.Send(ctx, companyID, to, msg); err != nil {
			return fmt.Errorf("conversation: send reply %d/%d: %w", i+1, len(replies), err)
		}
		w.record(ctx, TranscriptMessage{
			CompanyID: companyID,
			Phone:     to,
			Direction: DirectionOutbound,
			Body:      msg.PlainText(),
		})
	}
	return nil
}

func (w *Worker) record(ctx context.Context, msg TranscriptMessage) {
	if w.transcript == nil {
		return
	}
	if err := w.transcript.Append(ctx, msg); err != nil {
		w.logger.Warn("failed to persist transcript message", "error", err, "company_id", msg.CompanyID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
