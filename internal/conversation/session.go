package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/catalog"
	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
)

// CurrentSchemaVersion is the version of Data this build reads and writes.
const CurrentSchemaVersion = 1

// Session is one booking conversation with a guest.
type Session struct {
	ID        uuid.UUID
	CompanyID int64
	Phone     string
	State     State
	Data      Data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PackageRef is the slice of a package the conversation keeps between turns.
type PackageRef struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Currency string `json:"currency,omitempty"`
}

func refFor(p catalog.Package) PackageRef {
	return PackageRef{ID: p.ID, Title: p.Title, Price: p.Price, Currency: p.Currency}
}

// Data accumulates the guest's answers. Fields are filled in state order.
type Data struct {
	SchemaVersion int    `json:"schema_version"`
	GuestName     string `json:"guest_name,omitempty"`
	Email         string `json:"email,omitempty"`

	City     string       `json:"city,omitempty"`
	Packages []PackageRef `json:"packages,omitempty"`
	Package  *PackageRef  `json:"package,omitempty"`

	// TravelDate is stored as YYYY-MM-DD.
	TravelDate string `json:"travel_date,omitempty"`
	TravelTime string `json:"travel_time,omitempty"`
	Adults     *int   `json:"adults,omitempty"`
	Kids       *int   `json:"kids,omitempty"`

	TotalAmount    int64           `json:"total_amount,omitempty"`
	VehicleOptions []fleet.Option  `json:"vehicle_options,omitempty"`
	Vehicles       []fleet.Vehicle `json:"vehicles,omitempty"`
	PickupLocation string          `json:"pickup_location,omitempty"`
	TransportType  string          `json:"transport_type,omitempty"`

	PaymentType     bookings.PaymentType `json:"payment_type,omitempty"`
	PayableAmount   int64                `json:"payable_amount,omitempty"`
	RemainingAmount int64                `json:"remaining_amount,omitempty"`
	BookingID       *int64               `json:"booking_id,omitempty"`
	CustomerID      int64                `json:"customer_id,omitempty"`
	PaymentLink     string               `json:"payment_link,omitempty"`
}

// TotalPax is adults plus kids, zero until both are known.
func (d Data) TotalPax() int {
	if d.Adults == nil || d.Kids == nil {
		return 0
	}
	return *d.Adults + *d.Kids
}

// Currency returns the selected package's currency or the fallback.
func (d Data) Currency(fallback string) string {
	if d.Package != nil && d.Package.Currency != "" {
		return d.Package.Currency
	}
	return fallback
}

// Date parses TravelDate in loc.
func (d Data) Date(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(storedDateLayout, d.TravelDate, loc)
}

// Validate checks the invariants later states rely on.
func (d Data) Validate(state State) error {
	if d.SchemaVersion != CurrentSchemaVersion {
		return &DataIntegrityError{ResetTo: StateCityList, Reason: fmt.Sprintf("unknown schema version %d", d.SchemaVersion)}
	}
	needsPackage := false
	switch state {
	case StateAskTravelDate, StateAskCustomDate, StateAskTravelTime, StateAskPax, StateAskVehicle,
		StateAskPickupLocation, StateAskTransportType, StateAskPaymentType:
		needsPackage = true
	case StatePackageList, StatePackageDetail:
		if d.City == "" {
			return &DataIntegrityError{ResetTo: StateCityList, Reason: "city missing"}
		}
	}
	if needsPackage && d.Package == nil {
		return &DataIntegrityError{ResetTo: StatePackageList, Reason: "package missing"}
	}
	if state.Booked() && d.BookingID == nil {
		return &DataIntegrityError{ResetTo: StateCityList, Reason: "booking missing"}
	}
	return nil
}

// freshData starts a new conversation. Only the guest's name carries over.
func freshData(prev Data) Data {
	return Data{SchemaVersion: CurrentSchemaVersion, GuestName: prev.GuestName}
}

// resetTo drops everything collected after the given state. The guest's
// contact details stay for the rest of this conversation.
func (d *Data) resetTo(state State) {
	keep := Data{SchemaVersion: CurrentSchemaVersion, GuestName: d.GuestName, Email: d.Email}
	switch state {
	case StateCityList, StateCitySelect, StateGreeting, StateAskGuestName:
		*d = keep
	case StatePackageList:
		keep.City, keep.Packages = d.City, d.Packages
		*d = keep
	}
}

// clearTrip drops every answer that depends on the travel date.
func (d *Data) clearTrip() {
	d.TravelTime = ""
	d.Adults, d.Kids = nil, nil
	d.TotalAmount = 0
	d.VehicleOptions, d.Vehicles = nil, nil
}

// changeDate sends the guest back to the date question, keeping the package.
func (d *Data) changeDate() {
	d.TravelDate = ""
	d.clearTrip()
	d.PickupLocation, d.TransportType = "", ""
}

// Clone deep-copies the session so a failed turn can be discarded.
func (s *Session) Clone() *Session {
	out := *s
	raw, err := json.Marshal(s.Data)
	if err != nil {
		panic(fmt.Sprintf("conversation: clone session data: %v", err))
	}
	out.Data = Data{}
	if err := json.Unmarshal(raw, &out.Data); err != nil {
		panic(fmt.Sprintf("conversation: clone session data: %v", err))
	}
	return &out
}

func parseStoredDate(s string) (time.Time, error) {
	return time.Parse(storedDateLayout, s)
}
