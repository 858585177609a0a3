package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/catalog"
	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
)

const (
	pickupPrompt       = "📍 Please share your *pickup location* (hotel name / address)."
	askAdultsPrompt    = "How many adults will be traveling?"
	askKidsPrompt      = "How many children will be traveling?"
	bookingMissingText = "Booking not found. Please contact support."
)

var (
	bookButton    = messaging.Button{ID: tokenBookPackage, Title: "📅 Book Now"}
	backButton    = messaging.Button{ID: tokenBackPackage, Title: "⬅️ Back"}
	changeButton  = messaging.Button{ID: tokenChangeDetails, Title: "✏️ Change Details"}
	doneButton    = messaging.Button{ID: tokenConfirmDone, Title: "✅ Done"}
	cancelButton  = messaging.Button{ID: tokenCancelUpdate, Title: "❌ Cancel"}
	payFullButton = messaging.Button{ID: tokenPayFull, Title: "💳 Pay Full"}
	payPartButton = messaging.Button{ID: tokenPayAdvance, Title: "💰 Pay 40% Advance"}
	dateButton    = messaging.Button{ID: tokenChangeDate, Title: "📅 Change Date"}
)

func withLead(lead, body string) string {
	if lead == "" {
		return body
	}
	return lead + "\n\n" + body
}

func cityListMessage(body string, cities []string) messaging.Message {
	rows := make([]messaging.Row, 0, len(cities))
	for _, c := range cities {
		rows = append(rows, messaging.Row{ID: tokenCityPrefix + c, Title: c})
	}
	return messaging.List(body, "Select City", rows...)
}

func packageListMessage(body string, pkgs []PackageRef, currency string) messaging.Message {
	rows := make([]messaging.Row, 0, len(pkgs))
	for _, p := range pkgs {
		cur := p.Currency
		if cur == "" {
			cur = currency
		}
		rows = append(rows, messaging.Row{
			ID:          tokenPackagePrefix + strconv.FormatInt(p.ID, 10),
			Title:       p.Title,
			Description: bookings.Format(p.Price, cur) + " per person",
		})
	}
	return messaging.List(body, "View Packages", rows...)
}

func packagesBody(city string) string {
	return fmt.Sprintf("🌍 Here are the tours available in *%s*. Tap one to see the details.", city)
}

func packageDetailMessage(p catalog.Package, currency string) messaging.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n💰 %s per person", p.Title, bookings.Format(p.Price, currency))
	if d := strings.TrimSpace(p.Description); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	writeBullets(&b, "🗺️ *Itinerary*", p.Itinerary)
	writeBullets(&b, "🚫 *Excludes*", p.Excludes)
	return messaging.Buttons(b.String(), bookButton, backButton).WithImage(p.CoverImageURL)
}

func writeBullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(title)
	for _, it := range items {
		b.WriteString("\n• ")
		b.WriteString(it)
	}
}

func packageDetailCorrection() messaging.Message {
	return messaging.Buttons("You can select another package or tap *Book Now* to continue.", bookButton, backButton)
}

func travelDateBody(title string) string {
	return fmt.Sprintf("🗓️ When would you like to go on *%s*?", title)
}

func travelDateMessage(body string) messaging.Message {
	return messaging.Buttons(body,
		messaging.Button{ID: tokenDateToday, Title: "Today"},
		messaging.Button{ID: tokenDateTomorrow, Title: "Tomorrow"},
		messaging.Button{ID: tokenDateCustom, Title: "📆 Other Date"},
	)
}

func noVehiclesMessage(body string) messaging.Message {
	return messaging.Buttons(body, dateButton).WithFooter("Tap Change Date to try another day.")
}

func vehicleOptionsMessage(body string, options []fleet.Option) messaging.Message {
	rows := make([]messaging.Row, 0, len(options))
	for i, opt := range options {
		rows = append(rows, messaging.Row{
			ID:          tokenVehiclePrefix + strconv.Itoa(i+1),
			Title:       fmt.Sprintf("Option %d · %d seats", i+1, opt.TotalSeats),
			Description: opt.Describe(),
		})
	}
	return messaging.List(body, "Choose Vehicle", rows...)
}

func vehiclesBody(pax int) string {
	return fmt.Sprintf("🚐 Select a vehicle option for your group of *%d*:", pax)
}

func transportMessage(body string) messaging.Message {
	return messaging.Buttons(body,
		messaging.Button{ID: tokenOneWay, Title: "One Way"},
		messaging.Button{ID: tokenRoundTrip, Title: "Round Trip"},
	)
}

func transportLabel(t string) string {
	if t == TransportRoundTrip {
		return "Round Trip"
	}
	return "One Way"
}

// paymentTypeMessage previews the booking before anything is written.
func paymentTypeMessage(lead string, d Data, currency string) messaging.Message {
	var b strings.Builder
	b.WriteString("🧾 *Booking Summary*\n")
	if d.Package != nil {
		fmt.Fprintf(&b, "\n📦 Package: *%s*", d.Package.Title)
	}
	fmt.Fprintf(&b, "\n📅 Date: *%s* at *%s*", displayDate(d.TravelDate), d.TravelTime)
	if d.Adults != nil && d.Kids != nil {
		fmt.Fprintf(&b, "\n👥 Guests: %d adults, %d children", *d.Adults, *d.Kids)
	}
	if len(d.Vehicles) > 0 {
		fmt.Fprintf(&b, "\n🚐 Vehicle: %s", fleet.Option{Vehicles: d.Vehicles}.Describe())
	}
	fmt.Fprintf(&b, "\n📍 Pickup: %s (%s)", d.PickupLocation, transportLabel(d.TransportType))
	fmt.Fprintf(&b, "\n\n💰 Total: *%s*", bookings.Format(d.TotalAmount, currency))
	fmt.Fprintf(&b, "\n40%% advance: *%s*", bookings.Format(bookings.AdvanceAmount(d.TotalAmount), currency))
	b.WriteString("\n\nHow would you like to pay?")
	return messaging.Buttons(withLead(lead, b.String()), payFullButton, payPartButton)
}

func paymentLinkMessage(title string, payable, remaining int64, currency, url string) messaging.Message {
	body := fmt.Sprintf("💳 *Complete your payment*\n\n📦 Package: *%s*\n💰 Payable now: *%s*", title, bookings.Format(payable, currency))
	if remaining > 0 {
		body += fmt.Sprintf("\n🧾 Balance on the tour day: *%s*", bookings.Format(remaining, currency))
	}
	body += "\n\nOnce payment is done, we'll confirm your booking ✅"
	return messaging.Link(body, "Pay Now", url)
}

func retryButton(bookingID int64) messaging.Button {
	return messaging.Button{ID: tokenRetryPrefix + strconv.FormatInt(bookingID, 10), Title: "🔁 Retry Payment"}
}

func retryPaymentMessage(title string, payable int64, currency, url string) messaging.Message {
	return messaging.Text(fmt.Sprintf(
		"💳 *Retry Payment*\n\n📦 Package: *%s*\n💰 Payable Amount: *%s*\n\n👉 Click to pay:\n%s\n\nOnce payment is done, we'll confirm your booking ✅",
		title, bookings.Format(payable, currency), url))
}

func waitingMessage(bookingID, payable int64, currency, url string) messaging.Message {
	return messaging.Buttons(fmt.Sprintf(
		"⏳ We're still waiting for your payment of *%s*.\n\n👉 Click to pay:\n%s\n\nIf the link has expired, tap *Retry Payment*.",
		bookings.Format(payable, currency), url), retryButton(bookingID))
}

func paymentFailedMessage(bookingID int64) messaging.Message {
	return messaging.Buttons("❌ Your payment didn't go through.\nTap *Retry Payment* to get a new payment link.", retryButton(bookingID))
}

func confirmedMessage(body string) messaging.Message {
	return messaging.Buttons(body, changeButton, doneButton)
}

func detailsUpdateMessage(lead string) messaging.Message {
	return messaging.Buttons(withLead(lead,
		"✏️ What would you like to change? You can update your *name*, *phone number*, *country code* or *pickup time*.\nFor example: _change my name to Sara_"),
		cancelButton)
}

func displayDate(stored string) string {
	d, err := parseStoredDate(stored)
	if err != nil {
		return stored
	}
	return d.Format(displayDateLayout)
}
