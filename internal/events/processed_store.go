// Package events deduplicates provider webhooks: Stripe events durably in Postgres,
// WhatsApp message ids briefly in Redis.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider names the source of a webhook event.
const (
	ProviderStripe   = "stripe"
	ProviderWhatsApp = "whatsapp"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records webhook events that were already handled.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("events: check processed %s/%s: %w", provider, eventID, err)
	}
	return true, nil
}

// MarkProcessed claims an event id. It returns false when another delivery already claimed it.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed %s/%s: %w", provider, eventID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// Unmark releases a claim so the provider's redelivery is handled again.
func (s *ProcessedStore) Unmark(ctx context.Context, provider, eventID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID,
	); err != nil {
		return fmt.Errorf("events: unmark %s/%s: %w", provider, eventID, err)
	}
	return nil
}
