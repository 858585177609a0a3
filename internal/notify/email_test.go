package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Tour Bookings" {
		t.Errorf("expected default from name 'Tour Bookings', got %q", sender.fromName)
	}
}

type fakeSendGrid struct {
	got    *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	fake := &fakeSendGrid{status: http.StatusAccepted}
	sender := newSendGridSender(fake, SendGridConfig{FromEmail: "ops@example.com"}, quietLogger())

	err := sender.Send(context.Background(), EmailMessage{To: "owner@example.com", Subject: "Hi", Body: "Body"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.got == nil || fake.got.Subject != "Hi" {
		t.Fatalf("expected message to be sent, got %+v", fake.got)
	}

	fake.status = http.StatusBadRequest
	if err := sender.Send(context.Background(), EmailMessage{To: "owner@example.com"}); err == nil {
		t.Error("expected error on 400 status")
	}

	fake.err = errors.New("network")
	if err := sender.Send(context.Background(), EmailMessage{To: "owner@example.com"}); err == nil {
		t.Error("expected transport error")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	sender := newSESSender(fake, SESConfig{FromEmail: "ops@example.com"}, quietLogger())

	err := sender.Send(context.Background(), EmailMessage{
		To: "owner@example.com", Subject: "Paid", Body: "text", HTML: "<p>x</p>",
		Tags: map[string]string{"booking_id": "42", "event": "booking paid!"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.input.EmailTags) != 2 {
		t.Fatalf("expected two tags, got %d", len(fake.input.EmailTags))
	}
	if got := aws.ToString(fake.input.EmailTags[1].Value); got != "booking_paid_" {
		t.Errorf("expected sanitized tag value, got %q", got)
	}
	if got := aws.ToString(fake.input.FromEmailAddress); got != "Tour Bookings <ops@example.com>" {
		t.Errorf("unexpected from address %q", got)
	}
	if fake.input.Content.Simple.Body.Text == nil || fake.input.Content.Simple.Body.Html == nil {
		t.Error("expected text and html bodies")
	}
}

func TestNewEmailSenderFallsBackToStub(t *testing.T) {
	if _, ok := NewEmailSender(ProviderConfig{Provider: "sendgrid"}, nil, quietLogger()).(*StubEmailSender); !ok {
		t.Error("sendgrid without key should fall back to stub")
	}
	if _, ok := NewEmailSender(ProviderConfig{Provider: "ses", SES: SESConfig{FromEmail: "a@b.c"}}, nil, quietLogger()).(*StubEmailSender); !ok {
		t.Error("ses without client should fall back to stub")
	}
	if _, ok := NewEmailSender(ProviderConfig{Provider: "sendgrid", SendGrid: SendGridConfig{APIKey: "k"}}, nil, quietLogger()).(*SendGridSender); !ok {
		t.Error("expected sendgrid sender")
	}
}

type recordingEmail struct {
	msgs []EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestNotifyBookingPaid(t *testing.T) {
	email := &recordingEmail{}
	svc := NewService(email, quietLogger())

	err := svc.NotifyBookingPaid(context.Background(), BookingPaid{
		CompanyName: "Desert Tours",
		To:          "ops@deserttours.example",
		BookingID:   42,
		GuestName:   "Sara <VIP>",
		Phone:       "+971501234567",
		Package:     "Desert Safari",
		TravelDate:  "2026-12-01",
		TravelTime:  "15:00",
		Adults:      2,
		Kids:        1,
		Paid:        "AED 600.00",
		Remaining:   "AED 0.00",
		PaymentRef:  "pi_123",
		PaidAt:      time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.msgs) != 1 {
		t.Fatalf("expected one email, got %d", len(email.msgs))
	}
	msg := email.msgs[0]
	if !strings.Contains(msg.Subject, "#42") || !strings.Contains(msg.Subject, "Desert Safari") {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"2 adults, 1 children", "AED 600.00", "pi_123", "2026-12-01 15:00"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if msg.Tags["booking_id"] != "42" || msg.Tags["event"] != "booking_paid" {
		t.Errorf("unexpected tags %v", msg.Tags)
	}
	if strings.Contains(msg.HTML, "<VIP>") || !strings.Contains(msg.HTML, "&lt;VIP&gt;") {
		t.Error("guest name must be escaped in html")
	}
}

func TestNotifyBookingPaidSkipsWithoutRecipient(t *testing.T) {
	email := &recordingEmail{}
	if err := NewService(email, quietLogger()).NotifyBookingPaid(context.Background(), BookingPaid{BookingID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.msgs) != 0 {
		t.Error("expected no email without recipient")
	}

	email.err = errors.New("down")
	if err := NewService(email, quietLogger()).NotifyBookingPaid(context.Background(), BookingPaid{BookingID: 1, To: "x@y.z"}); err == nil {
		t.Error("expected send error to propagate")
	}
}
