package payments

import "time"

// Outcome is a verified payment result for one booking.
type Outcome struct {
	EventID       string    `json:"event_id"`
	CompanyID     int64     `json:"company_id"`
	BookingID     int64     `json:"booking_id"`
	ChatSessionID string    `json:"chat_session_id,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Ref           string    `json:"ref"`
	Succeeded     bool      `json:"succeeded"`
	Amount        int64     `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
