package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	httpmiddleware "github.com/wolfman30/whatsapp-tour-booking/internal/http/middleware"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// BookingReader loads a single booking.
type BookingReader interface {
	Get(ctx context.Context, companyID, bookingID int64) (bookings.Booking, error)
}

// TranscriptReader lists a guest's message history.
type TranscriptReader interface {
	List(ctx context.Context, companyID int64, phone string, limit int) ([]conversation.TranscriptMessage, error)
}

// OperatorHandler serves the read-only operator API.
type OperatorHandler struct {
	bookings   BookingReader
	transcript TranscriptReader
	logger     *logging.Logger
}

func NewOperatorHandler(bookings BookingReader, transcript TranscriptReader, logger *logging.Logger) *OperatorHandler {
	if bookings == nil {
		panic("handlers: booking reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorHandler{bookings: bookings, transcript: transcript, logger: logger}
}

// BookingResponse is the operator view of a booking. Amounts are in minor units.
type BookingResponse struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	PackageID       int64      `json:"package_id"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone"`
	TravelDate      string     `json:"travel_date"`
	TravelTime      string     `json:"travel_time,omitempty"`
	Adults          int        `json:"adults"`
	Kids            int        `json:"kids"`
	PickupLocation  string     `json:"pickup_location,omitempty"`
	TransportType   string     `json:"transport_type,omitempty"`
	Currency        string     `json:"currency"`
	TotalAmount     int64      `json:"total_amount"`
	PayableAmount   int64      `json:"payable_amount"`
	RemainingAmount int64      `json:"remaining_amount"`
	PaymentType     string     `json:"payment_type"`
	PaymentStatus   string     `json:"payment_status"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// MessageResponse is one transcript line.
type MessageResponse struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	MessageID string    `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetBooking returns one booking.
// GET /operator/companies/{companyID}/bookings/{bookingID}
func (h *OperatorHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyParam(w, r)
	if !ok {
		return
	}
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil || bookingID <= 0 {
		jsonError(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	b, err := h.bookings.Get(r.Context(), companyID, bookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		jsonError(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load booking", "error", err, "company_id", companyID, "booking_id", bookingID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, BookingResponse{
		ID:              b.ID,
		CompanyID:       b.CompanyID,
		PackageID:       b.PackageID,
		CustomerName:    b.Customer.Name,
		CustomerPhone:   phone.FromParts(b.Customer.CountryCode, b.Customer.Phone).E164(),
		TravelDate:      b.TravelDate.Format("2006-01-02"),
		TravelTime:      b.TravelTime,
		Adults:          b.Adults,
		Kids:            b.Kids,
		PickupLocation:  b.PickupLocation,
		TransportType:   b.TransportType,
		Currency:        b.Currency,
		TotalAmount:     b.TotalAmount,
		PayableAmount:   b.AdvanceAmount,
		RemainingAmount: b.RemainingAmount,
		PaymentType:     string(b.PaymentType),
		PaymentStatus:   string(b.PaymentStatus),
		Paid:            b.PaidAt != nil,
		PaidAt:          b.PaidAt,
		CreatedAt:       b.CreatedAt,
	})
}

// ListMessages returns the latest transcript lines for a guest, oldest first.
// GET /operator/companies/{companyID}/guests/{phone}/messages?limit=50
func (h *OperatorHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyParam(w, r)
	if !ok {
		return
	}
	if h.transcript == nil {
		jsonError(w, "transcripts disabled", http.StatusNotFound)
		return
	}
	guest := phone.Sanitize(chi.URLParam(r, "phone"))
	if guest == "" {
		jsonError(w, "invalid phone", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	msgs, err := h.transcript.List(r.Context(), companyID, guest, limit)
	if err != nil {
		h.logger.Error("failed to list transcript", "error", err, "company_id", companyID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			Direction: m.Direction,
			Body:      m.Body,
			MessageID: m.ProviderMessageID,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// companyParam parses {companyID} and checks it against the caller's token scope.
func (h *OperatorHandler) companyParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "companyID")), 10, 64)
	if err != nil || companyID <= 0 {
		jsonError(w, "invalid company id", http.StatusBadRequest)
		return 0, false
	}
	if claims, ok := httpmiddleware.OperatorClaimsFromContext(r.Context()); ok && !claims.CanAccess(companyID) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return 0, false
	}
	return companyID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
