package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

type stubBookings struct {
	booking bookings.Booking
	err     error
}

func (s stubBookings) Get(_ context.Context, companyID, bookingID int64) (bookings.Booking, error) {
	if s.err != nil {
		return bookings.Booking{}, s.err
	}
	if companyID != s.booking.CompanyID || bookingID != s.booking.ID {
		return bookings.Booking{}, bookings.ErrNotFound
	}
	return s.booking, nil
}

type stubTranscript struct {
	msgs      []conversation.TranscriptMessage
	gotPhone  string
	gotLimit  int
	gotCompID int64
}

func (s *stubTranscript) List(_ context.Context, companyID int64, phone string, limit int) ([]conversation.TranscriptMessage, error) {
	s.gotCompID, s.gotPhone, s.gotLimit = companyID, phone, limit
	return s.msgs, nil
}

func newOperatorRouter(h *OperatorHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/operator/companies/{companyID}/bookings/{bookingID}", h.GetBooking)
	r.Get("/operator/companies/{companyID}/guests/{phone}/messages", h.ListMessages)
	return r
}

func TestOperatorGetBooking(t *testing.T) {
	paidAt := time.Date(2026, 2, 10, 7, 0, 0, 0, time.UTC)
	h := NewOperatorHandler(stubBookings{booking: bookings.Booking{
		ID:              12,
		CompanyID:       1,
		PackageID:       3,
		Customer:        bookings.Customer{Name: "Sara Khan", CountryCode: "+971", Phone: "501234567"},
		TravelDate:      time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		TravelTime:      "09:30 AM",
		Adults:          2,
		Currency:        "AED",
		TotalAmount:     30000,
		AdvanceAmount:   30000,
		PaymentType:     bookings.PaymentFull,
		PaymentStatus:   bookings.StatusPaid,
		PaidAt:          &paidAt,
		RemainingAmount: 0,
	}}, nil, logging.NewWithWriter("error", io.Discard))

	rec := httptest.NewRecorder()
	newOperatorRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operator/companies/1/bookings/12", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(12), got.ID)
	assert.Equal(t, "+971501234567", got.CustomerPhone)
	assert.Equal(t, "2026-02-12", got.TravelDate)
	assert.Equal(t, int64(30000), got.PayableAmount)
	assert.True(t, got.Paid)
}

func TestOperatorGetBookingErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  stubBookings
		path   string
		status int
	}{
		{"bad company", stubBookings{}, "/operator/companies/abc/bookings/1", http.StatusBadRequest},
		{"bad booking", stubBookings{}, "/operator/companies/1/bookings/0", http.StatusBadRequest},
		{"missing", stubBookings{booking: bookings.Booking{ID: 5, CompanyID: 1}}, "/operator/companies/1/bookings/6", http.StatusNotFound},
		{"db error", stubBookings{err: errors.New("boom")}, "/operator/companies/1/bookings/6", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOperatorHandler(tt.store, nil, logging.NewWithWriter("error", io.Discard))
			rec := httptest.NewRecorder()
			newOperatorRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOperatorListMessages(t *testing.T) {
	at := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	transcript := &stubTranscript{msgs: []conversation.TranscriptMessage{
		{Direction: conversation.DirectionInbound, Body: "hi", ProviderMessageID: "wamid.1", CreatedAt: at},
		{Direction: conversation.DirectionOutbound, Body: "Welcome!", CreatedAt: at.Add(time.Second)},
	}}
	h := NewOperatorHandler(stubBookings{}, transcript, logging.NewWithWriter("error", io.Discard))

	rec := httptest.NewRecorder()
	newOperatorRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operator/companies/1/guests/+971501234567/messages?limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []MessageResponse `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "wamid.1", body.Messages[0].MessageID)
	assert.Equal(t, "971501234567", transcript.gotPhone)
	assert.Equal(t, 50, transcript.gotLimit)
	assert.Equal(t, int64(1), transcript.gotCompID)
}

func TestOperatorListMessagesDisabled(t *testing.T) {
	h := NewOperatorHandler(stubBookings{}, nil, logging.NewWithWriter("error", io.Discard))
	rec := httptest.NewRecorder()
	newOperatorRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operator/companies/1/guests/971501234567/messages", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
