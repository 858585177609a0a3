package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// BookingPaid is what the operator needs to follow up on a paid booking.
// Amounts are preformatted in the company currency.
type BookingPaid struct {
	CompanyName string
	To          string
	BookingID   int64
	GuestName   string
	Phone       string
	Package     string
	TravelDate  string
	TravelTime  string
	Pickup      string
	Adults      int
	Kids        int
	Paid        string
	Remaining   string
	PaymentRef  string
	PaidAt      time.Time
}

// Service sends operator notifications.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// NotifyBookingPaid emails the company's notification address. A company
// without one is skipped.
func (s *Service) NotifyBookingPaid(ctx context.Context, n BookingPaid) error {
	if s == nil || s.email == nil {
		return nil
	}
	to := strings.TrimSpace(n.To)
	if to == "" {
		s.logger.Debug("notify: no notification email configured", "booking_id", n.BookingID)
		return nil
	}

	guest := n.GuestName
	if strings.TrimSpace(guest) == "" {
		guest = "A guest"
	}
	paidAt := n.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	msg := EmailMessage{
		To:      to,
		ToName:  n.CompanyName,
		Subject: fmt.Sprintf("💰 Booking #%d paid - %s", n.BookingID, n.Package),
		Body:    bookingPaidText(guest, paidAt, n),
		HTML:    bookingPaidHTML(guest, paidAt, n),
		Tags: map[string]string{
			"event":      "booking_paid",
			"booking_id": strconv.FormatInt(n.BookingID, 10),
		},
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to send booking email", "error", err, "to", to, "booking_id", n.BookingID)
		return fmt.Errorf("notify: booking %d: %w", n.BookingID, err)
	}
	s.logger.Info("notify: booking paid email sent", "to", to, "booking_id", n.BookingID)
	return nil
}

func bookingPaidText(guest string, paidAt time.Time, n BookingPaid) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has paid %s for booking #%d.\n\n", guest, n.Paid, n.BookingID)
	for _, row := range bookingRows(n) {
		fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
	}
	fmt.Fprintf(&b, "Paid at: %s\n", paidAt.Format("January 2, 2006 at 3:04 PM"))
	if n.PaymentRef != "" {
		fmt.Fprintf(&b, "Payment ID: %s\n", n.PaymentRef)
	}
	fmt.Fprintf(&b, "\n- %s bookings", n.CompanyName)
	return b.String()
}

func bookingPaidHTML(guest string, paidAt time.Time, n BookingPaid) string {
	const cell = `style="padding: 8px; border-bottom: 1px solid #e5e7eb;"`
	var rows strings.Builder
	for _, row := range bookingRows(n) {
		fmt.Fprintf(&rows, `<tr><td %s><strong>%s:</strong></td><td %s>%s</td></tr>`, cell, row[0], cell, html.EscapeString(row[1]))
	}
	fmt.Fprintf(&rows, `<tr><td %s><strong>Paid at:</strong></td><td %s>%s</td></tr>`, cell, cell, paidAt.Format("January 2, 2006 at 3:04 PM"))
	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #10b981;">💰 Booking #%d paid</h2>
<p><strong>%s</strong> has paid <strong>%s</strong>.</p>
<table style="border-collapse: collapse; margin: 20px 0;">%s</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">- %s bookings</p>
</div>`, n.BookingID, html.EscapeString(guest), html.EscapeString(n.Paid), rows.String(), html.EscapeString(n.CompanyName))
}

func bookingRows(n BookingPaid) [][2]string {
	rows := [][2]string{
		{"Guest", n.GuestName},
		{"Phone", n.Phone},
		{"Package", n.Package},
		{"Travel date", strings.TrimSpace(n.TravelDate + " " + n.TravelTime)},
		{"Guests", fmt.Sprintf("%d adults, %d children", n.Adults, n.Kids)},
	}
	if n.Pickup != "" {
		rows = append(rows, [2]string{"Pickup", n.Pickup})
	}
	rows = append(rows, [2]string{"Paid", n.Paid})
	if n.Remaining != "" {
		rows = append(rows, [2]string{"Remaining", n.Remaining})
	}
	return rows
}
