package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("tourbot.internal.bookings")

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	fleet.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Finalizer creates bookings and applies the edits allowed after confirmation.
type Finalizer struct {
	db     DB
	logger *logging.Logger
}

// NewFinalizer constructs a finalizer.
func NewFinalizer(db DB, logger *logging.Logger) *Finalizer {
	if db == nil {
		panic("bookings: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Finalizer{db: db, logger: logger}
}

// Finalize persists the booking described by req exactly once per chat session.
// The customer, the authoritative availability check, the booking row and its
// assignments are written in one transaction serialized per company and travel date.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.finalize")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("tourbot.company_id", req.CompanyID),
		attribute.String("tourbot.chat_session_id", req.ChatSessionID.String()),
	)

	if req.ExistingBookingID != nil {
		return f.Get(ctx, req.CompanyID, *req.ExistingBookingID)
	}
	if len(req.Vehicles) == 0 {
		return Booking{}, ErrNoVehicles
	}
	advance, remaining, err := Split(req.TotalAmount, req.PaymentType)
	if err != nil {
		return Booking{}, err
	}

	tx, err := f.db.Begin(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockTravelDate(ctx, tx, req.CompanyID, req.TravelDate); err != nil {
		return Booking{}, err
	}

	existingID, found, err := bookingIDForSession(ctx, tx, req.CompanyID, req.ChatSessionID)
	if err != nil {
		return Booking{}, err
	}
	if found {
		existing, err := getBooking(ctx, tx, req.CompanyID, existingID)
		if err != nil {
			return Booking{}, err
		}
		f.logger.Info("booking already exists for session", "company_id", req.CompanyID, "booking_id", existingID)
		return existing, nil
	}

	customerID, err := upsertCustomer(ctx, tx, req.CompanyID, req.CustomerName, req.CustomerEmail, req.CustomerPhone)
	if err != nil {
		return Booking{}, err
	}

	resolver := fleet.NewResolver(fleet.NewPostgresStoreWithQuerier(tx))
	pool, err := resolver.Available(ctx, req.CompanyID, req.TravelDate, nil)
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: resolve availability: %w", err)
	}
	vehicleIDs := make([]int64, 0, len(req.Vehicles))
	for _, v := range req.Vehicles {
		vehicleIDs = append(vehicleIDs, v.ID)
	}
	if taken := pool.Conflicts(vehicleIDs); len(taken) > 0 {
		span.SetAttributes(attribute.Bool("tourbot.conflict", true))
		return Booking{}, &AvailabilityConflictError{Date: req.TravelDate, VehicleIDs: taken}
	}

	booking := Booking{
		CompanyID:     req.CompanyID,
		ChatSessionID: req.ChatSessionID,
		PackageID:     req.PackageID,
		Customer: Customer{
			ID:          customerID,
			CompanyID:   req.CompanyID,
			Name:        strings.TrimSpace(req.CustomerName),
			Email:       strings.TrimSpace(req.CustomerEmail),
			CountryCode: req.CustomerPhone.CountryCode,
			Phone:       req.CustomerPhone.National,
		},
		TravelDate:      req.TravelDate,
		TravelTime:      req.TravelTime,
		Adults:          req.Adults,
		Kids:            req.Kids,
		PickupLocation:  req.PickupLocation,
		TransportType:   req.TransportType,
		Currency:        req.Currency,
		TotalAmount:     req.TotalAmount,
		AdvanceAmount:   advance,
		RemainingAmount: remaining,
		PaymentType:     req.PaymentType,
		PaymentStatus:   StatusFor(advance, remaining),
	}
	if err := insertBooking(ctx, tx, &booking); err != nil {
		return Booking{}, err
	}

	booking.Assignments = pairDrivers(booking.ID, req.Vehicles, pool.Drivers)
	for _, a := range booking.Assignments {
		if err := insertAssignment(ctx, tx, a); err != nil {
			return Booking{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, fmt.Errorf("bookings: commit: %w", err)
	}
	span.SetAttributes(attribute.Int64("tourbot.booking_id", booking.ID))
	f.logger.Info("booking created",
		"company_id", booking.CompanyID,
		"booking_id", booking.ID,
		"customer_id", customerID,
		"vehicles", vehicleIDs,
		"payment_status", booking.PaymentStatus,
	)
	return booking, nil
}

// pairDrivers assigns free drivers to vehicles in order; vehicles beyond the
// driver supply are stored without a driver.
func pairDrivers(bookingID int64, vehicles []fleet.Vehicle, drivers []fleet.Driver) []fleet.Assignment {
	out := make([]fleet.Assignment, 0, len(vehicles))
	for i, v := range vehicles {
		vehicleID := v.ID
		a := fleet.Assignment{BookingID: bookingID, VehicleID: &vehicleID, Seats: v.Seats}
		if i < len(drivers) {
			driverID := drivers[i].ID
			a.DriverID = &driverID
		}
		out = append(out, a)
	}
	return out
}

// Get loads a live booking with its customer.
func (f *Finalizer) Get(ctx context.Context, companyID, bookingID int64) (Booking, error) {
	return getBooking(ctx, f.db, companyID, bookingID)
}

// UpdateTravelTime stores a new canonical travel time on the booking.
func (f *Finalizer) UpdateTravelTime(ctx context.Context, companyID, bookingID int64, travelTime string) error {
	ct, err := f.db.Exec(ctx, `
		UPDATE bookings SET travel_time = $3::time, updated_at = now()
		WHERE company_id = $1 AND id = $2 AND NOT is_deleted
	`, companyID, bookingID, travelTime)
	if err != nil {
		return fmt.Errorf("bookings: update travel time: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCustomerName renames the customer in place.
func (f *Finalizer) UpdateCustomerName(ctx context.Context, companyID, customerID int64, name string) error {
	ct, err := f.db.Exec(ctx, `
		UPDATE customers SET name = $3, updated_at = now()
		WHERE company_id = $1 AND id = $2 AND NOT is_deleted
	`, companyID, customerID, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("bookings: update customer name: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCustomerPhone moves the customer to a new number, rejecting collisions.
func (f *Finalizer) UpdateCustomerPhone(ctx context.Context, companyID, customerID int64, num phone.Number) error {
	ct, err := f.db.Exec(ctx, `
		UPDATE customers SET country_code = $3, phone = $4, updated_at = now()
		WHERE company_id = $1 AND id = $2 AND NOT is_deleted
	`, companyID, customerID, num.CountryCode, num.National)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCustomerConflict
		}
		return fmt.Errorf("bookings: update customer phone: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPayment stores the provider reference the first time a payment succeeds.
// It returns false when the booking was already marked paid.
func (f *Finalizer) RecordPayment(ctx context.Context, companyID, bookingID int64, providerRef string, paidAt time.Time) (bool, error) {
	ct, err := f.db.Exec(ctx, `
		UPDATE bookings SET payment_ref = $3, paid_at = $4, updated_at = now()
		WHERE company_id = $1 AND id = $2 AND paid_at IS NULL AND NOT is_deleted
	`, companyID, bookingID, providerRef, paidAt.UTC())
	if err != nil {
		return false, fmt.Errorf("bookings: record payment: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
