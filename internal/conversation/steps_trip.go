package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
)

func (e *Engine) stepTravelDate(ctx context.Context, t *turn) ([]messaging.Message, error) {
	switch t.input {
	case tokenDateToday:
		return e.setTravelDate(ctx, t, t.today())
	case tokenDateTomorrow:
		return e.setTravelDate(ctx, t, t.today().AddDate(0, 0, 1))
	case tokenDateCustom:
		t.sess.State = StateAskCustomDate
		return []messaging.Message{messaging.Text(fmt.Sprintf(
			"🗓️ Please type your travel date in DD-MM-YYYY format. Example: *%s*", t.today().Format(DateLayout)))}, nil
	}

	fields, err := e.extract(ctx, t, nlu.SchemaTravelDate)
	if err != nil {
		return nil, err
	}
	raw, ok := fields.Get(nlu.FieldTravelDate)
	if !ok {
		return nil, inputError(ErrUnrecognized, travelDateMessage("Please choose a valid option."))
	}
	date, err := ValidateTravelDate(raw, t.now)
	if err != nil {
		return nil, err
	}
	return e.setTravelDate(ctx, t, date)
}

func (e *Engine) stepCustomDate(ctx context.Context, t *turn) ([]messaging.Message, error) {
	fields, err := e.extract(ctx, t, nlu.SchemaTravelDate)
	if err != nil {
		return nil, err
	}
	raw, ok := fields.Get(nlu.FieldTravelDate)
	if !ok {
		raw = t.input
	}
	date, err := ValidateTravelDate(raw, t.now)
	if err != nil {
		return nil, err
	}
	return e.setTravelDate(ctx, t, date)
}

// changeDate rewinds to the date question. The package and guest details stay.
func (e *Engine) changeDate(t *turn, lead string) []messaging.Message {
	d := &t.sess.Data
	d.changeDate()
	t.sess.State = StateAskTravelDate
	return []messaging.Message{travelDateMessage(withLead(lead, travelDateBody(d.Package.Title)))}
}

// dateEscape lets a guest leave a later trip step for the date question, either
// through the Change Date button or a date button from an earlier message.
func (e *Engine) dateEscape(ctx context.Context, t *turn) ([]messaging.Message, bool, error) {
	switch t.input {
	case tokenChangeDate:
		return e.changeDate(t, ""), true, nil
	case tokenDateToday, tokenDateTomorrow, tokenDateCustom:
		replies, err := e.stepTravelDate(ctx, t)
		return replies, true, err
	}
	return nil, false, nil
}

func (e *Engine) setTravelDate(ctx context.Context, t *turn, date time.Time) ([]messaging.Message, error) {
	prompt, err := e.phrase(ctx, t, nlu.StyleAskTravelTime, map[string]any{"Date": date.Format(displayDateLayout)})
	if err != nil {
		return nil, err
	}
	t.sess.Data.TravelDate = date.Format(storedDateLayout)
	t.sess.Data.clearTrip()
	t.sess.State = StateAskTravelTime
	return []messaging.Message{messaging.Text(prompt)}, nil
}

func (e *Engine) travelDate(t *turn) (time.Time, error) {
	date, err := t.sess.Data.Date(t.loc())
	if err != nil {
		return time.Time{}, &DataIntegrityError{ResetTo: StatePackageList, Reason: "travel date unreadable"}
	}
	return date, nil
}

// timeError rephrases a travel time rejection through the generator.
func (e *Engine) timeError(ctx context.Context, t *turn, err error) error {
	var uie *UserInputError
	if !errors.As(err, &uie) {
		return err
	}
	text, genErr := e.phrase(ctx, t, nlu.StyleInvalidTravelTime, map[string]any{"Reason": uie.Prompt()})
	if genErr != nil {
		return genErr
	}
	return inputError(uie.Cause, messaging.Text(text))
}

func (e *Engine) stepTravelTime(ctx context.Context, t *turn) ([]messaging.Message, error) {
	date, err := e.travelDate(t)
	if err != nil {
		return nil, err
	}
	fields, err := e.extract(ctx, t, nlu.SchemaTravelTime)
	if err != nil {
		return nil, err
	}
	raw, ok := fields.Get(nlu.FieldTravelTime)
	if !ok {
		raw = t.input
	}
	canonical, err := ValidateTravelTime(raw, date, t.now)
	if err != nil {
		return nil, e.timeError(ctx, t, err)
	}
	prompt, err := e.phrase(ctx, t, nlu.StyleAskPax, nil)
	if err != nil {
		return nil, err
	}
	t.sess.Data.TravelTime = canonical
	t.sess.State = StateAskPax
	return []messaging.Message{messaging.Text(prompt)}, nil
}

func (e *Engine) stepPax(ctx context.Context, t *turn) ([]messaging.Message, error) {
	if replies, ok, err := e.dateEscape(ctx, t); ok {
		return replies, err
	}
	d := &t.sess.Data
	if n, err := strconv.Atoi(t.input); err == nil && !t.interactive {
		// A bare number answers whichever count was asked for last.
		switch {
		case d.Adults == nil:
			d.Adults = &n
		case d.Kids == nil:
			d.Kids = &n
		default:
			return nil, e.paxPrompt(ctx, t)
		}
	} else {
		fields, err := e.extract(ctx, t, nlu.SchemaPax)
		if err != nil {
			return nil, err
		}
		adults, hasAdults := fields.Int(nlu.FieldAdults)
		kids, hasKids := fields.Int(nlu.FieldKids)
		if !hasAdults && !hasKids {
			return nil, e.paxPrompt(ctx, t)
		}
		if hasAdults {
			d.Adults = &adults
		}
		if hasKids {
			d.Kids = &kids
		}
	}

	if d.Adults == nil {
		if d.Kids != nil {
			// Kids came first; at least one adult still has to join them.
			if err := ValidatePax(1, *d.Kids); err != nil {
				return nil, err
			}
		}
		return []messaging.Message{messaging.Text(askAdultsPrompt)}, nil
	}
	if d.Kids == nil {
		if err := ValidatePax(*d.Adults, 0); err != nil {
			return nil, err
		}
		return []messaging.Message{messaging.Text(askKidsPrompt)}, nil
	}
	if err := ValidatePax(*d.Adults, *d.Kids); err != nil {
		return nil, err
	}

	options, err := e.offerVehicles(ctx, t)
	if err != nil {
		return nil, err
	}
	d.TotalAmount = bookings.TotalAmount(d.Package.Price, *d.Adults, *d.Kids)
	d.VehicleOptions = options
	d.Vehicles = nil
	t.sess.State = StateAskVehicle
	return []messaging.Message{vehicleOptionsMessage(vehiclesBody(d.TotalPax()), options)}, nil
}

func (e *Engine) paxPrompt(ctx context.Context, t *turn) error {
	text, err := e.phrase(ctx, t, nlu.StyleAskPax, nil)
	if err != nil {
		return err
	}
	return inputError(ErrInvalidPax, messaging.Text(text))
}

// offerVehicles resolves the free fleet for the travel date and groups it for the party.
func (e *Engine) offerVehicles(ctx context.Context, t *turn) ([]fleet.Option, error) {
	date, err := e.travelDate(t)
	if err != nil {
		return nil, err
	}
	pool, err := e.fleet.Available(ctx, t.sess.CompanyID, date, nil)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve availability: %w", err)
	}
	if len(pool.Vehicles) == 0 {
		e.metrics.ObserveVehicleOptions(0)
		return nil, inputError(ErrNoAvailability, noVehiclesMessage("😔 No vehicles available for your selected travel date."))
	}
	options, err := fleet.Allocate(pool.Vehicles, t.sess.Data.TotalPax())
	if err != nil {
		return nil, fmt.Errorf("conversation: allocate vehicles: %w", err)
	}
	e.metrics.ObserveVehicleOptions(len(options))
	if len(options) == 0 {
		return nil, inputError(ErrNoAvailability, noVehiclesMessage("😔 No suitable vehicle combinations available for your group size."))
	}
	return options, nil
}

func (e *Engine) stepVehicle(ctx context.Context, t *turn) ([]messaging.Message, error) {
	if replies, ok, err := e.dateEscape(ctx, t); ok {
		return replies, err
	}
	d := &t.sess.Data
	if len(d.VehicleOptions) == 0 || d.TotalPax() == 0 {
		return nil, &DataIntegrityError{ResetTo: StatePackageList, Reason: "vehicle options missing"}
	}
	raw, ok := strings.CutPrefix(t.input, tokenVehiclePrefix)
	if !ok {
		return nil, inputError(ErrUnrecognized, vehicleOptionsMessage("Please select a vehicle option from the list.", d.VehicleOptions))
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(d.VehicleOptions) {
		return nil, inputError(ErrUnrecognized, vehicleOptionsMessage("Invalid vehicle option selected.", d.VehicleOptions))
	}
	d.Vehicles = d.VehicleOptions[n-1].Vehicles
	t.sess.State = StateAskPickupLocation
	return []messaging.Message{messaging.Text(pickupPrompt)}, nil
}

func (e *Engine) stepPickup(ctx context.Context, t *turn) ([]messaging.Message, error) {
	location, err := ValidatePickupLocation(t.input)
	if t.interactive || err != nil {
		text, genErr := e.phrase(ctx, t, nlu.StyleInvalidPickup, nil)
		if genErr != nil {
			return nil, genErr
		}
		return nil, inputError(ErrInvalidPickup, messaging.Text(text))
	}
	t.sess.Data.PickupLocation = location
	t.sess.State = StateAskTransportType
	return []messaging.Message{transportMessage("🚗 Select transport type:")}, nil
}

func (e *Engine) stepTransport(_ context.Context, t *turn) ([]messaging.Message, error) {
	d := &t.sess.Data
	switch t.input {
	case tokenOneWay:
		d.TransportType = TransportOneWay
	case tokenRoundTrip:
		d.TransportType = TransportRoundTrip
	default:
		return nil, inputError(ErrUnrecognized, transportMessage("Please select a valid transport type."))
	}
	t.sess.State = StateAskPaymentType
	return []messaging.Message{paymentTypeMessage("", *d, t.currency(e.defaultCurrency))}, nil
}
