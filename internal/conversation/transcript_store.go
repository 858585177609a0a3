package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message directions stored in chat_messages.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// TranscriptMessage is one line of a guest conversation.
type TranscriptMessage struct {
	ID        uuid.UUID
	CompanyID int64
	Phone     string
	Direction string
	Body      string
	// ProviderMessageID is the WhatsApp message id for inbound messages.
	ProviderMessageID string
	CreatedAt         time.Time
}

// TranscriptStore keeps the full message history in chat_messages for operators.
type TranscriptStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTranscriptStore returns nil for a nil db so callers can treat the transcript as optional.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db, now: time.Now}
}

// Append stores one message. A nil store is a no-op.
func (s *TranscriptStore) Append(ctx context.Context, msg TranscriptMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	if msg.CompanyID <= 0 || strings.TrimSpace(msg.Phone) == "" {
		return errors.New("conversation: transcript message requires company and phone")
	}
	if msg.Direction != DirectionInbound && msg.Direction != DirectionOutbound {
		return fmt.Errorf("conversation: unknown transcript direction %q", msg.Direction)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	var providerID sql.NullString
	if msg.ProviderMessageID != "" {
		providerID = sql.NullString{String: msg.ProviderMessageID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, company_id, phone, direction, body, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.CompanyID, msg.Phone, msg.Direction, msg.Body, providerID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: append transcript message: %w", err)
	}
	return nil
}

// List returns the latest messages for a guest, oldest first.
func (s *TranscriptStore) List(ctx context.Context, companyID int64, phone string, limit int) ([]TranscriptMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, phone, direction, body, COALESCE(provider_message_id, ''), created_at
		FROM (
			SELECT * FROM chat_messages
			WHERE company_id = $1 AND phone = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, companyID, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list transcript: %w", err)
	}
	defer rows.Close()

	var out []TranscriptMessage
	for rows.Next() {
		var m TranscriptMessage
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Phone, &m.Direction, &m.Body, &m.ProviderMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan transcript message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate transcript: %w", err)
	}
	return out, nil
}
