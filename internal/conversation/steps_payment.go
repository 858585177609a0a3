package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
)

const (
	vehicleTakenText = "😔 Sorry, the vehicle you selected was just booked by another guest. Please choose another option:"
	dateTakenText    = "😔 Sorry, the vehicles for your date were just booked by another guest and no other option fits your group. Please pick another date."
	linkLimitText    = "You've requested too many payment links in a short time. Please wait a few minutes and try again."
)

var summaryTemplates = nlu.NewTemplateGenerator()

func (e *Engine) stepPaymentType(ctx context.Context, t *turn) ([]messaging.Message, error) {
	d := &t.sess.Data
	if d.BookingID == nil {
		if replies, ok, err := e.dateEscape(ctx, t); ok {
			return replies, err
		}
	}
	var pt bookings.PaymentType
	switch t.input {
	case tokenPayFull:
		pt = bookings.PaymentFull
	case tokenPayAdvance:
		pt = bookings.PaymentAdvance
	default:
		return nil, inputError(ErrUnrecognized, paymentTypeMessage("Please select a valid payment option.", *d, t.currency(e.defaultCurrency)))
	}

	created := d.BookingID == nil
	booking, err := e.finalize(ctx, t, pt)
	var conflict *bookings.AvailabilityConflictError
	if errors.As(err, &conflict) {
		e.logger.Info("vehicles taken before commit",
			"session_id", t.sess.ID, "vehicles", conflict.VehicleIDs)
		return e.reallocate(ctx, t)
	}
	if !created && errors.Is(err, bookings.ErrNotFound) {
		return nil, &DataIntegrityError{ResetTo: StateCityList, Reason: "booking no longer exists"}
	}
	if err != nil {
		return nil, err
	}
	id := booking.ID
	d.BookingID = &id
	d.CustomerID = booking.Customer.ID
	d.PaymentType = booking.PaymentType
	d.PayableAmount = booking.AdvanceAmount
	d.RemainingAmount = booking.RemainingAmount
	if created {
		e.metrics.ObserveBookingCreated(string(booking.PaymentType))
		// The booking exists now; keep its id even if the link request fails below.
		if err := e.sessions.Save(ctx, t.sess); err != nil {
			return nil, err
		}
	}

	if d.PayableAmount <= 0 {
		booking, err := e.bookings.Get(ctx, t.sess.CompanyID, *d.BookingID)
		if err != nil {
			return nil, externalError("bookings", err)
		}
		msg, err := e.summary(ctx, t, booking, "✅ Your booking is confirmed.")
		if err != nil {
			return nil, err
		}
		t.sess.State = StateConfirmed
		return []messaging.Message{msg}, nil
	}

	link, err := e.createLink(ctx, t)
	if err != nil {
		return nil, err
	}
	d.PaymentLink = link.URL
	t.sess.State = StateWaitingForPayment
	return []messaging.Message{paymentLinkMessage(d.Package.Title, d.PayableAmount, d.RemainingAmount, t.currency(e.defaultCurrency), link.URL)}, nil
}

// finalize turns the collected answers into a booking. Once the session holds a
// booking id the finalizer returns that booking instead of writing a new one.
func (e *Engine) finalize(ctx context.Context, t *turn, pt bookings.PaymentType) (bookings.Booking, error) {
	d := t.sess.Data
	if d.Adults == nil || d.Kids == nil || len(d.Vehicles) == 0 || d.TravelTime == "" {
		return bookings.Booking{}, &DataIntegrityError{ResetTo: StatePackageList, Reason: "trip details incomplete"}
	}
	date, err := e.travelDate(t)
	if err != nil {
		return bookings.Booking{}, err
	}
	num, err := phone.Parse(t.sess.Phone)
	if err != nil {
		return bookings.Booking{}, fmt.Errorf("conversation: session phone %q: %w", t.sess.Phone, err)
	}
	return e.bookings.Finalize(ctx, bookings.Request{
		CompanyID:      t.sess.CompanyID,
		ChatSessionID:  t.sess.ID,
		CustomerName:   d.GuestName,
		CustomerEmail:  d.Email,
		CustomerPhone:  num,
		PackageID:      d.Package.ID,
		TravelDate:     date,
		TravelTime:     d.TravelTime,
		Adults:         *d.Adults,
		Kids:           *d.Kids,
		PickupLocation: d.PickupLocation,
		TransportType:  d.TransportType,
		Vehicles:       d.Vehicles,
		Currency:       t.currency(e.defaultCurrency),
		TotalAmount:    d.TotalAmount,
		PaymentType:    pt,

		ExistingBookingID: d.BookingID,
	})
}

// reallocate re-offers vehicles after the chosen ones were booked by someone else.
// With nothing left for the group the guest goes back to the date question.
func (e *Engine) reallocate(ctx context.Context, t *turn) ([]messaging.Message, error) {
	options, err := e.offerVehicles(ctx, t)
	if errors.Is(err, ErrNoAvailability) {
		return e.changeDate(t, dateTakenText), nil
	}
	if err != nil {
		return nil, err
	}
	d := &t.sess.Data
	d.VehicleOptions = options
	d.Vehicles = nil
	t.sess.State = StateAskVehicle
	return []messaging.Message{vehicleOptionsMessage(vehicleTakenText, options)}, nil
}

func (e *Engine) createLink(ctx context.Context, t *turn) (payments.Link, error) {
	d := t.sess.Data
	title := ""
	if d.Package != nil {
		title = d.Package.Title
	}
	link, err := e.payments.CreateLink(ctx, payments.LinkRequest{
		CompanyID:     t.sess.CompanyID,
		BookingID:     *d.BookingID,
		ChatSessionID: t.sess.ID.String(),
		Phone:         t.sess.Phone,
		PackageName:   title,
		Amount:        d.PayableAmount,
		Currency:      t.currency(e.defaultCurrency),
		SecretKey:     t.company.StripeSecretKey,
	})
	switch {
	case errors.Is(err, payments.ErrLinkLimitExceeded):
		e.metrics.ObservePaymentLink("limited")
		return payments.Link{}, inputError(err, messaging.Text(linkLimitText))
	case err != nil:
		e.metrics.ObservePaymentLink("error")
		return payments.Link{}, externalError("payments", err)
	}
	e.metrics.ObservePaymentLink("created")
	return link, nil
}

func (e *Engine) stepWaitingForPayment(ctx context.Context, t *turn) ([]messaging.Message, error) {
	d := &t.sess.Data
	cur := t.currency(e.defaultCurrency)
	title := ""
	if d.Package != nil {
		title = d.Package.Title
	}

	if raw, ok := strings.CutPrefix(t.input, tokenRetryPrefix); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id != *d.BookingID {
			return nil, inputError(ErrUnrecognized, messaging.Text(bookingMissingText))
		}
		link, err := e.createLink(ctx, t)
		if err != nil {
			return nil, err
		}
		d.PaymentLink = link.URL
		return []messaging.Message{retryPaymentMessage(title, d.PayableAmount, cur, link.URL)}, nil
	}

	if d.PaymentLink == "" {
		link, err := e.createLink(ctx, t)
		if err != nil {
			return nil, err
		}
		d.PaymentLink = link.URL
	}
	return []messaging.Message{waitingMessage(*d.BookingID, d.PayableAmount, cur, d.PaymentLink)}, nil
}

func (e *Engine) stepConfirmed(ctx context.Context, t *turn) ([]messaging.Message, error) {
	switch t.input {
	case tokenConfirmDone:
		t.sess.State = StateDone
		name := t.company.Name
		if name == "" {
			name = "us"
		}
		return []messaging.Message{messaging.Text(fmt.Sprintf(
			"🙏 Thank you for booking with %s! We look forward to hosting you.\n\nSend *Hi* anytime to plan another tour.", name))}, nil
	case tokenChangeDetails:
		t.sess.State = StateDetailsUpdate
		return []messaging.Message{detailsUpdateMessage("")}, nil
	}
	if t.interactive || t.input == "" {
		return nil, inputError(ErrUnrecognized, confirmedMessage("Tap *Change Details* to update your booking or *Done* to finish."))
	}
	return e.applyDetailsUpdate(ctx, t)
}

func (e *Engine) stepDetailsUpdate(ctx context.Context, t *turn) ([]messaging.Message, error) {
	if t.input == tokenCancelUpdate {
		booking, err := e.bookings.Get(ctx, t.sess.CompanyID, *t.sess.Data.BookingID)
		if err != nil {
			return nil, externalError("bookings", err)
		}
		msg, err := e.summary(ctx, t, booking, "")
		if err != nil {
			return nil, err
		}
		t.sess.State = StateConfirmed
		return []messaging.Message{msg}, nil
	}
	if t.interactive || t.input == "" {
		return nil, inputError(ErrUnrecognized, detailsUpdateMessage(""))
	}
	return e.applyDetailsUpdate(ctx, t)
}

// applyDetailsUpdate edits one field of a confirmed booking from free text.
func (e *Engine) applyDetailsUpdate(ctx context.Context, t *turn) ([]messaging.Message, error) {
	fields, err := e.extract(ctx, t, nlu.SchemaDetailsUpdate)
	if err != nil {
		return nil, err
	}
	field, _ := fields.Get(nlu.FieldUpdate)
	value, hasValue := fields.Get(nlu.FieldValue)
	if field == "" || !hasValue {
		return nil, inputError(ErrUnrecognized, detailsUpdateMessage("Sorry, I didn't catch what to change."))
	}

	companyID := t.sess.CompanyID
	booking, err := e.bookings.Get(ctx, companyID, *t.sess.Data.BookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		return nil, &DataIntegrityError{ResetTo: StateCityList, Reason: "booking no longer exists"}
	}
	if err != nil {
		return nil, externalError("bookings", err)
	}
	customerID := booking.Customer.ID

	switch field {
	case "guest_name":
		name, err := ValidateGuestName(value)
		if err != nil {
			return nil, err
		}
		if err := e.bookings.UpdateCustomerName(ctx, companyID, customerID, name); err != nil {
			return nil, externalError("bookings", err)
		}
		t.sess.Data.GuestName = name
	case "phone":
		national, err := ValidateNationalPhone(value)
		if err != nil {
			return nil, err
		}
		if err := e.updatePhone(ctx, companyID, customerID, phone.FromParts(booking.Customer.CountryCode, national)); err != nil {
			return nil, err
		}
	case "country_code":
		cc, err := ValidateCountryCode(value)
		if err != nil {
			return nil, err
		}
		if err := e.updatePhone(ctx, companyID, customerID, phone.FromParts(cc, booking.Customer.Phone)); err != nil {
			return nil, err
		}
	case "travel_time":
		y, m, day := booking.TravelDate.Date()
		date := time.Date(y, m, day, 0, 0, 0, 0, t.loc())
		canonical, err := ValidateTravelTime(value, date, t.now)
		if err != nil {
			return nil, e.timeError(ctx, t, err)
		}
		if err := e.bookings.UpdateTravelTime(ctx, companyID, booking.ID, canonical); err != nil {
			return nil, externalError("bookings", err)
		}
		t.sess.Data.TravelTime = canonical
	default:
		return nil, inputError(ErrUnrecognized, detailsUpdateMessage("Sorry, that detail can't be changed here."))
	}

	updated, err := e.bookings.Get(ctx, companyID, booking.ID)
	if err != nil {
		return nil, externalError("bookings", err)
	}
	msg, err := e.summary(ctx, t, updated, "✅ Your booking has been updated.")
	if err != nil {
		return nil, err
	}
	t.sess.State = StateConfirmed
	return []messaging.Message{msg}, nil
}

func (e *Engine) updatePhone(ctx context.Context, companyID, customerID int64, num phone.Number) error {
	err := e.bookings.UpdateCustomerPhone(ctx, companyID, customerID, num)
	switch {
	case errors.Is(err, bookings.ErrCustomerConflict):
		return inputError(err, detailsUpdateMessage("That phone number is already linked to another customer. Please use a different number."))
	case err != nil:
		return externalError("bookings", err)
	}
	return nil
}

// summary renders the confirmed booking. A generator outage falls back to the
// fixed template instead of failing the turn.
func (e *Engine) summary(ctx context.Context, t *turn, b bookings.Booking, header string) (messaging.Message, error) {
	title := fmt.Sprintf("Package #%d", b.PackageID)
	if p := t.sess.Data.Package; p != nil && p.ID == b.PackageID {
		title = p.Title
	}
	name := b.Customer.Name
	if name == "" {
		name = t.sess.Data.GuestName
	}
	cur := b.Currency
	if cur == "" {
		cur = t.currency(e.defaultCurrency)
	}
	paid := int64(0)
	if b.PaidAt != nil {
		paid = b.TotalAmount - b.RemainingAmount
	}
	pickup := b.PickupLocation
	if b.TransportType != "" {
		pickup = fmt.Sprintf("%s (%s)", pickup, transportLabel(b.TransportType))
	}
	vars := map[string]any{
		"BookingID": b.ID,
		"GuestName": name,
		"Package":   title,
		"Date":      b.TravelDate.Format(displayDateLayout),
		"Time":      b.TravelTime,
		"Adults":    b.Adults,
		"Kids":      b.Kids,
		"Pickup":    pickup,
		"Total":     bookings.Format(b.TotalAmount, cur),
		"Paid":      bookings.Format(paid, cur),
		"Remaining": bookings.Format(b.TotalAmount-paid, cur),
	}

	text, err := e.generator.Generate(ctx, "", vars, nlu.StyleBookingSummary)
	if err != nil {
		e.logger.Warn("booking summary generation failed, using template", "booking_id", b.ID, "error", err)
		if text, err = summaryTemplates.Generate(ctx, "", vars, nlu.StyleBookingSummary); err != nil {
			return messaging.Message{}, fmt.Errorf("conversation: render booking summary: %w", err)
		}
	}
	return confirmedMessage(withLead(header, text)), nil
}
