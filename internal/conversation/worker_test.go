package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/notify"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func testWorker(p Processor, q Queue, s ReplySender, opts ...WorkerOption) *Worker {
	opts = append([]WorkerOption{WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0)}, opts...)
	return NewWorker(p, q, s, logging.Default(), opts...)
}

func enqueueJob(t *testing.T, q *scriptedQueue, payload queuePayload, receipt string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	q.enqueue(QueueMessage{ID: "msg-" + receipt, Body: string(body), ReceiptHandle: receipt})
}

func TestWorkerSendsReplies(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{replies: []messaging.Message{messaging.Text("one"), messaging.Text("two")}}
	sender := &stubSender{}
	worker := testWorker(proc, queue, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	in := messaging.Inbound{CompanyID: 1, From: "971501234567", MessageID: "wamid.1", Text: "hi"}
	enqueueJob(t, queue, queuePayload{ID: "job-1", Kind: jobTypeMessage, Message: &in}, "rh-1")

	waitFor(func() bool { return sender.count() == 2 }, time.Second, t)
	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	sent := sender.all()
	if sent[0].msg.Body != "one" || sent[1].msg.Body != "two" {
		t.Fatalf("replies out of order: %#v", sent)
	}
	if sent[0].to != "971501234567" || sent[0].companyID != 1 {
		t.Fatalf("unexpected recipient %#v", sent[0])
	}
}

func TestWorkerSendsFallbackOnProcessingError(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{err: errors.New("db down")}
	sender := &stubSender{}
	worker := testWorker(proc, queue, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	in := messaging.Inbound{CompanyID: 1, From: "971501234567", Text: "hi"}
	enqueueJob(t, queue, queuePayload{ID: "job-err", Kind: jobTypeMessage, Message: &in}, "rh-err")

	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	sent := sender.all()
	if len(sent) != 1 || sent[0].msg.Body != fallbackReply {
		t.Fatalf("expected fallback reply, got %#v", sent)
	}
}

func TestWorkerAppliesPaymentAndNotifies(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{outbound: Outbound{
		CompanyID: 1,
		To:        "971501234567",
		Replies:   []messaging.Message{messaging.Text("✅ Payment received!")},
		Paid:      &notify.BookingPaid{BookingID: 42},
	}}
	sender := &stubSender{}
	notifier := &stubNotifier{}
	worker := testWorker(proc, queue, sender, WithPaymentNotifier(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	o := payments.Outcome{EventID: "evt_1", CompanyID: 1, BookingID: 42, Succeeded: true}
	enqueueJob(t, queue, queuePayload{ID: "job-pay", Kind: jobTypePayment, Payment: &o}, "rh-pay")

	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if sender.count() != 1 {
		t.Fatalf("expected confirmation to be sent, got %d sends", sender.count())
	}
	if notifier.count() != 1 {
		t.Fatalf("expected operator notification")
	}
	if got := proc.paymentCalls(); len(got) != 1 || got[0].EventID != "evt_1" {
		t.Fatalf("unexpected payment calls %#v", got)
	}
}

func TestWorkerKeepsFailedPaymentJobForRedelivery(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{paymentErr: errors.New("db down")}
	worker := testWorker(proc, queue, &stubSender{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	o := payments.Outcome{EventID: "evt_2", CompanyID: 1, BookingID: 7, Succeeded: true}
	enqueueJob(t, queue, queuePayload{ID: "job-pay", Kind: jobTypePayment, Payment: &o}, "rh-pay")

	waitFor(func() bool { return len(proc.paymentCalls()) == 1 }, time.Second, t)
	// Give the worker a moment to (not) delete.
	time.Sleep(50 * time.Millisecond)
	cancel()
	worker.Wait()

	if queue.deletedCount() != 0 {
		t.Fatalf("expected failed payment job to stay on the queue")
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{}
	worker := testWorker(proc, queue, &stubSender{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(QueueMessage{ID: "bad", Body: "{not json", ReceiptHandle: "rh-bad"})
	enqueueJob(t, queue, queuePayload{ID: "job-x", Kind: "mystery"}, "rh-x")

	waitFor(func() bool { return queue.deletedCount() == 2 }, time.Second, t)
	cancel()
	worker.Wait()

	if proc.handleCount() != 0 || len(proc.paymentCalls()) != 0 {
		t.Fatalf("processor should not be invoked for malformed jobs")
	}
}

func TestWorkerRecordsTranscript(t *testing.T) {
	queue := newScriptedQueue()
	proc := &stubProcessor{replies: []messaging.Message{messaging.Buttons("Pick one", messaging.Button{ID: "A", Title: "A"})}}
	transcript := &stubTranscript{}
	worker := testWorker(proc, queue, &stubSender{})
	worker.transcript = transcript

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	in := messaging.Inbound{CompanyID: 1, From: "971501234567", MessageID: "wamid.9", Text: "hi"}
	enqueueJob(t, queue, queuePayload{ID: "job-t", Kind: jobTypeMessage, Message: &in}, "rh-t")

	waitFor(func() bool { return transcript.count() == 2 }, time.Second, t)
	cancel()
	worker.Wait()

	msgs := transcript.all()
	if msgs[0].Direction != DirectionInbound || msgs[0].ProviderMessageID != "wamid.9" {
		t.Fatalf("unexpected inbound transcript %#v", msgs[0])
	}
	if msgs[1].Direction != DirectionOutbound || msgs[1].Body == "" {
		t.Fatalf("unexpected outbound transcript %#v", msgs[1])
	}
}

func TestWorkerConfigOptions(t *testing.T) {
	w := NewWorker(&stubProcessor{}, newScriptedQueue(), &stubSender{}, nil,
		WithWorkerCount(4), WithReceiveWaitSeconds(60), WithReceiveBatchSize(50), WithTranscriptStore(nil))
	if w.cfg.workers != 4 {
		t.Fatalf("expected 4 workers, got %d", w.cfg.workers)
	}
	if w.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait clamped to %d, got %d", maxWaitSeconds, w.cfg.receiveWaitSecs)
	}
	if w.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch clamped to %d, got %d", maxReceiveBatchSize, w.cfg.receiveBatchSize)
	}
	if w.transcript != nil {
		t.Fatalf("nil transcript store should leave transcript disabled")
	}
}

type stubProcessor struct {
	mu         sync.Mutex
	replies    []messaging.Message
	err        error
	outbound   Outbound
	paymentErr error
	handled    int
	payments   []payments.Outcome
}

func (s *stubProcessor) Handle(ctx context.Context, in messaging.Inbound) ([]messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled++
	return s.replies, s.err
}

func (s *stubProcessor) ApplyPayment(ctx context.Context, o payments.Outcome) (Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, o)
	if s.paymentErr != nil {
		return Outbound{}, s.paymentErr
	}
	return s.outbound, nil
}

func (s *stubProcessor) handleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}

func (s *stubProcessor) paymentCalls() []payments.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payments.Outcome(nil), s.payments...)
}

type sentReply struct {
	companyID int64
	to        string
	msg       messaging.Message
}

type stubSender struct {
	mu   sync.Mutex
	sent []sentReply
}

func (s *stubSender) Send(ctx context.Context, companyID int64, to string, msg messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentReply{companyID: companyID, to: to, msg: msg})
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubSender) all() []sentReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentReply(nil), s.sent...)
}

type stubNotifier struct {
	mu    sync.Mutex
	calls int
}

func (s *stubNotifier) NotifyBookingPaid(ctx context.Context, n notify.BookingPaid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubTranscript struct {
	mu   sync.Mutex
	msgs []TranscriptMessage
}

func (s *stubTranscript) Append(ctx context.Context, msg TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *stubTranscript) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *stubTranscript) all() []TranscriptMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptMessage(nil), s.msgs...)
}

type scriptedQueue struct {
	ch       chan QueueMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{
		ch: make(chan QueueMessage, 10),
	}
}

func (s *scriptedQueue) enqueue(msg QueueMessage) {
	s.ch <- msg
}

func (s *scriptedQueue) Send(ctx context.Context, body, groupID string) error {
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []QueueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
