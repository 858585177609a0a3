// Package company resolves the tenant a WhatsApp number or payment belongs to.
package company

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// ErrNotFound is returned when no active company matches.
var ErrNotFound = errors.New("company: not found")

// Company carries the per-tenant credentials and locale used by the bot.
type Company struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	PhoneNumberID       string `json:"phone_number_id"`
	WhatsAppToken       string `json:"whatsapp_token,omitempty"`
	StripeSecretKey     string `json:"stripe_secret_key,omitempty"`
	StripeWebhookSecret string `json:"stripe_webhook_secret,omitempty"`
	Currency            string `json:"currency"`
	Timezone            string `json:"timezone"`
	NotificationEmail   string `json:"notification_email,omitempty"`
}

// Location returns the company's timezone, falling back to the given default and then UTC.
func (c Company) Location(fallback string) *time.Location {
	for _, name := range []string{c.Timezone, fallback} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads companies from Postgres.
type Repository struct {
	db rowQuerier
}

// NewRepository creates a repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("company: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q rowQuerier) *Repository {
	return &Repository{db: q}
}

const selectCompany = `
	SELECT id, name, COALESCE(whatsapp_phone_number_id, ''), COALESCE(whatsapp_access_token, ''),
	       COALESCE(stripe_secret_key, ''), COALESCE(stripe_webhook_secret, ''),
	       COALESCE(currency, ''), COALESCE(timezone, ''), COALESCE(notification_email, '')
	FROM companies
`

func (r *Repository) ByID(ctx context.Context, id int64) (Company, error) {
	return r.scan(r.db.QueryRow(ctx, selectCompany+`WHERE id = $1 AND is_active`, id))
}

func (r *Repository) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (Company, error) {
	return r.scan(r.db.QueryRow(ctx, selectCompany+`WHERE whatsapp_phone_number_id = $1 AND is_active`, strings.TrimSpace(phoneNumberID)))
}

func (r *Repository) scan(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumberID, &c.WhatsAppToken,
		&c.StripeSecretKey, &c.StripeWebhookSecret, &c.Currency, &c.Timezone, &c.NotificationEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("company: load: %w", err)
	}
	return c, nil
}

// Source is the uncached lookup the directory falls back to.
type Source interface {
	ByID(ctx context.Context, id int64) (Company, error)
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (Company, error)
}

// Directory caches company lookups in Redis.
type Directory struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewDirectory wires a cache in front of source. A nil redis client disables caching.
func NewDirectory(source Source, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Directory {
	if source == nil {
		panic("company: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

func idKey(id int64) string { return fmt.Sprintf("company:id:%d", id) }
func phoneKey(phoneNumberID string) string { return "company:phone:" + phoneNumberID }

// ByID returns the company with the given id.
func (d *Directory) ByID(ctx context.Context, id int64) (Company, error) {
	return d.cached(ctx, idKey(id), func() (Company, error) { return d.source.ByID(ctx, id) })
}

// ByPhoneNumberID returns the company that owns the WhatsApp business number.
func (d *Directory) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (Company, error) {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return Company{}, ErrNotFound
	}
	return d.cached(ctx, phoneKey(phoneNumberID), func() (Company, error) { return d.source.ByPhoneNumberID(ctx, phoneNumberID) })
}

func (d *Directory) cached(ctx context.Context, key string, load func() (Company, error)) (Company, error) {
	if d.redis != nil {
		data, err := d.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var c Company
			if jerr := json.Unmarshal(data, &c); jerr == nil {
				return c, nil
			}
			d.logger.Warn("company cache entry unreadable", "key", key)
		case !errors.Is(err, redis.Nil):
			d.logger.Warn("company cache read failed", "key", key, "error", err)
		}
	}

	c, err := load()
	if err != nil {
		return Company{}, err
	}
	if d.redis != nil {
		if data, merr := json.Marshal(c); merr == nil {
			if serr := d.redis.Set(ctx, key, data, d.ttl).Err(); serr != nil {
				d.logger.Warn("company cache write failed", "key", key, "error", serr)
			}
		}
	}
	return c, nil
}
