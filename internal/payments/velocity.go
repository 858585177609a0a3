package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// LinkVelocity caps how many payment links a single booking may request per window.
type LinkVelocity struct {
	redis  *redis.Client
	max    int
	window time.Duration
	logger *logging.Logger
}

func NewLinkVelocity(client *redis.Client, max int, window time.Duration, logger *logging.Logger) *LinkVelocity {
	if client == nil {
		panic("payments: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &LinkVelocity{redis: client, max: max, window: window, logger: logger}
}

// Allow counts one attempt and reports whether it is within the limit.
// A nil checker or a non-positive max allows everything; Redis errors fail open.
func (v *LinkVelocity) Allow(ctx context.Context, companyID, bookingID int64) bool {
	if v == nil || v.max <= 0 {
		return true
	}
	key := velocityKey(companyID, bookingID)
	count, err := v.incrementAndGet(ctx, key)
	if err != nil {
		v.logger.Error("payment link velocity check failed", "error", err, "key", key)
		return true
	}
	if count > v.max {
		v.logger.Warn("payment link velocity exceeded",
			"company_id", companyID,
			"booking_id", bookingID,
			"count", count,
			"max", v.max,
		)
		return false
	}
	return true
}

// Reset clears the counter for a booking. A nil checker has nothing to clear.
func (v *LinkVelocity) Reset(ctx context.Context, companyID, bookingID int64) error {
	if v == nil {
		return nil
	}
	return v.redis.Del(ctx, velocityKey(companyID, bookingID)).Err()
}

func (v *LinkVelocity) incrementAndGet(ctx context.Context, key string) (int, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		v.redis.Expire(ctx, key, v.window)
	}
	return int(count), nil
}

func velocityKey(companyID, bookingID int64) string {
	return fmt.Sprintf("velocity:payment_link:%d:%d", companyID, bookingID)
}
