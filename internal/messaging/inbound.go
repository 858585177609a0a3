package messaging

import "time"

// Inbound is a guest message normalized by a channel webhook. For interactive replies
// Text holds the tapped button or row id.
type Inbound struct {
	CompanyID   int64     `json:"company_id"`
	From        string    `json:"from"`
	ProfileName string    `json:"profile_name,omitempty"`
	MessageID   string    `json:"message_id"`
	Text        string    `json:"text"`
	Interactive bool      `json:"interactive,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}
