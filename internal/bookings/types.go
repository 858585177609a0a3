// Package bookings turns a completed conversation into a persisted booking with its
// customer, amount split and vehicle/driver assignments.
package bookings

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
)

var (
	// ErrNotFound is returned when a booking id does not resolve to a live booking.
	ErrNotFound = errors.New("bookings: booking not found")
	// ErrAvailabilityConflict marks a commit-time double-booking.
	ErrAvailabilityConflict = errors.New("bookings: vehicles already booked for date")
	// ErrCustomerConflict is returned when a phone change collides with another customer.
	ErrCustomerConflict = errors.New("bookings: phone number belongs to another customer")
	// ErrNoVehicles is returned when a request carries no vehicles.
	ErrNoVehicles = errors.New("bookings: at least one vehicle required")
)

// AvailabilityConflictError lists the vehicles that were taken between offer and commit.
type AvailabilityConflictError struct {
	Date       time.Time
	VehicleIDs []int64
}

func (e *AvailabilityConflictError) Error() string {
	return fmt.Sprintf("bookings: vehicles %v already booked on %s", e.VehicleIDs, e.Date.Format("2006-01-02"))
}

func (e *AvailabilityConflictError) Unwrap() error { return ErrAvailabilityConflict }

// Customer is keyed by (company, country code, national phone).
type Customer struct {
	ID          int64
	CompanyID   int64
	Name        string
	Email       string
	CountryCode string
	Phone       string
}

// Booking is the persisted result of a conversation.
type Booking struct {
	ID              int64
	CompanyID       int64
	ChatSessionID   uuid.UUID
	PackageID       int64
	Customer        Customer
	TravelDate      time.Time
	TravelTime      string
	Adults          int
	Kids            int
	PickupLocation  string
	TransportType   string
	Currency        string
	TotalAmount     int64
	AdvanceAmount   int64
	RemainingAmount int64
	PaymentType     PaymentType
	PaymentStatus   PaymentStatus
	PaymentRef      string
	PaidAt          *time.Time
	Assignments     []fleet.Assignment
	CreatedAt       time.Time
}

// Request carries everything needed to create a booking.
type Request struct {
	CompanyID     int64
	ChatSessionID uuid.UUID
	// ExistingBookingID short-circuits creation when the session already produced a booking.
	ExistingBookingID *int64

	CustomerName  string
	CustomerEmail string
	CustomerPhone phone.Number

	PackageID      int64
	TravelDate     time.Time
	TravelTime     string
	Adults         int
	Kids           int
	PickupLocation string
	TransportType  string
	Vehicles       []fleet.Vehicle

	Currency    string
	TotalAmount int64
	PaymentType PaymentType
}
