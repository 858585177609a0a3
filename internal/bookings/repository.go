package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
)

const selectBooking = `
	SELECT b.id, b.company_id, COALESCE(b.chat_session_id::text, ''), b.tour_package_id,
	       b.travel_date, COALESCE(to_char(b.travel_time, 'HH12:MI AM'), ''), b.adults, b.kids,
	       COALESCE(b.pickup_location, ''), COALESCE(b.transport_type, ''), b.currency,
	       (b.total_amount * 100)::bigint, (b.advance_amount * 100)::bigint, (b.remaining_amount * 100)::bigint,
	       b.payment_type, b.payment_status, COALESCE(b.payment_ref, ''), b.paid_at, b.created_at,
	       c.id, COALESCE(c.name, ''), COALESCE(c.email, ''), c.country_code, c.phone
	FROM bookings b
	JOIN customers c ON c.id = b.customer_id
`

func getBooking(ctx context.Context, q fleet.Querier, companyID, bookingID int64) (Booking, error) {
	var (
		b         Booking
		sessionID string
		payType   string
		status    string
	)
	err := q.QueryRow(ctx, selectBooking+`WHERE b.company_id = $1 AND b.id = $2 AND NOT b.is_deleted`, companyID, bookingID).Scan(
		&b.ID, &b.CompanyID, &sessionID, &b.PackageID,
		&b.TravelDate, &b.TravelTime, &b.Adults, &b.Kids,
		&b.PickupLocation, &b.TransportType, &b.Currency,
		&b.TotalAmount, &b.AdvanceAmount, &b.RemainingAmount,
		&payType, &status, &b.PaymentRef, &b.PaidAt, &b.CreatedAt,
		&b.Customer.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.CountryCode, &b.Customer.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("bookings: load booking: %w", err)
	}
	if sessionID != "" {
		if parsed, perr := uuid.Parse(sessionID); perr == nil {
			b.ChatSessionID = parsed
		}
	}
	b.PaymentType = PaymentType(payType)
	b.PaymentStatus = PaymentStatus(status)
	b.Customer.CompanyID = b.CompanyID
	return b, nil
}

func bookingIDForSession(ctx context.Context, q fleet.Querier, companyID int64, sessionID uuid.UUID) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx, `
		SELECT id FROM bookings
		WHERE company_id = $1 AND chat_session_id = $2 AND NOT is_deleted
	`, companyID, sessionID.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("bookings: lookup by session: %w", err)
	}
	return id, true, nil
}

// upsertCustomer finds the customer by (company, country code, phone) or creates it.
// Name and email are refreshed in place when supplied.
func upsertCustomer(ctx context.Context, q fleet.Querier, companyID int64, name, email string, num phone.Number) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO customers (company_id, country_code, phone, name, email)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (company_id, country_code, phone) WHERE NOT is_deleted
		DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			email = COALESCE(EXCLUDED.email, customers.email),
			updated_at = now()
		RETURNING id
	`, companyID, num.CountryCode, num.National, strings.TrimSpace(name), strings.TrimSpace(email)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("bookings: upsert customer: %w", err)
	}
	return id, nil
}

func insertBooking(ctx context.Context, q fleet.Querier, b *Booking) error {
	err := q.QueryRow(ctx, `
		INSERT INTO bookings (
			company_id, customer_id, tour_package_id, chat_session_id, travel_date, travel_time,
			adults, kids, pickup_location, transport_type, currency,
			total_amount, advance_amount, remaining_amount, payment_type, payment_status
		)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8, $9, $10, $11,
			$12::numeric / 100, $13::numeric / 100, $14::numeric / 100, $15, $16)
		RETURNING id, created_at
	`,
		b.CompanyID, b.Customer.ID, b.PackageID, b.ChatSessionID.String(), b.TravelDate.Format("2006-01-02"), b.TravelTime,
		b.Adults, b.Kids, b.PickupLocation, b.TransportType, b.Currency,
		b.TotalAmount, b.AdvanceAmount, b.RemainingAmount, string(b.PaymentType), string(b.PaymentStatus),
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("bookings: insert booking: %w", err)
	}
	return nil
}

func insertAssignment(ctx context.Context, q fleet.Querier, a fleet.Assignment) error {
	var driver any
	if a.DriverID != nil {
		driver = *a.DriverID
	}
	var vehicle any
	if a.VehicleID != nil {
		vehicle = *a.VehicleID
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO booking_assignments (booking_id, vehicle_id, driver_id, seats)
		VALUES ($1, $2, $3, $4)
	`, a.BookingID, vehicle, driver, a.Seats); err != nil {
		return fmt.Errorf("bookings: insert assignment: %w", err)
	}
	return nil
}

func lockTravelDate(ctx context.Context, q fleet.Querier, companyID int64, date time.Time) error {
	key := fmt.Sprintf("bookings:%d:%s", companyID, date.Format("2006-01-02"))
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("bookings: lock travel date: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
