package bookings

import (
	"errors"
	"fmt"
	"strings"
)

// PaymentType selects how much of the total is collected up front.
type PaymentType string

const (
	PaymentFull    PaymentType = "full"
	PaymentAdvance PaymentType = "advance_40"
)

// AdvancePercent is the share of the total collected for an advance payment.
const AdvancePercent = 40

// PaymentStatus is derived from the amount split, never set directly.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusPending PaymentStatus = "pending"
)

// ErrUnknownPaymentType is returned by Split for anything other than full or advance.
var ErrUnknownPaymentType = errors.New("bookings: unknown payment type")

// TotalAmount bills every traveler, adults and kids alike, at the package price.
// Amounts are minor currency units.
func TotalAmount(unitPrice int64, adults, kids int) int64 {
	return unitPrice * int64(adults+kids)
}

// AdvanceAmount is AdvancePercent of total, rounded half up to the minor unit.
func AdvanceAmount(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return (total*AdvancePercent + 50) / 100
}

// Split returns what the guest pays now and what is left for later.
// payable + remaining always equals total.
func Split(total int64, pt PaymentType) (payable, remaining int64, err error) {
	switch pt {
	case PaymentFull:
		return total, 0, nil
	case PaymentAdvance:
		payable = AdvanceAmount(total)
		return payable, total - payable, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownPaymentType, pt)
	}
}

// StatusFor derives the payment status from the split.
func StatusFor(advance, remaining int64) PaymentStatus {
	switch {
	case remaining == 0:
		return StatusPaid
	case advance > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// Format renders minor units as "AED 150.00".
func Format(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	value := fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
	if cur == "" {
		return value
	}
	return cur + " " + value
}
