// Package phone centralizes parsing and formatting of guest phone numbers.
package phone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

var (
	// ErrEmpty indicates no phone number was supplied.
	ErrEmpty = errors.New("phone: number cannot be empty")
	// ErrInvalid indicates the number could not be parsed into a country code and national number.
	ErrInvalid = errors.New("phone: invalid number")
)

// Number is a phone number split the way customers are keyed: "+971" and "501234567".
type Number struct {
	CountryCode string
	National    string
}

// Parse normalizes a raw number (WhatsApp sends digits without "+") into its parts.
func Parse(raw string) (Number, error) {
	cleaned := Sanitize(raw)
	if cleaned == "" {
		return Number{}, ErrEmpty
	}
	parsed, err := phonenumbers.Parse("+"+cleaned, "")
	if err != nil {
		return Number{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if parsed.GetCountryCode() == 0 || parsed.GetNationalNumber() == 0 {
		return Number{}, ErrInvalid
	}
	return Number{
		CountryCode: "+" + strconv.Itoa(int(parsed.GetCountryCode())),
		National:    strconv.FormatUint(parsed.GetNationalNumber(), 10),
	}, nil
}

// FromParts builds a Number from a stored country code and national number.
func FromParts(countryCode, national string) Number {
	cc := Sanitize(countryCode)
	nat := strings.TrimLeft(Sanitize(national), "0")
	if cc != "" {
		cc = "+" + cc
	}
	return Number{CountryCode: cc, National: nat}
}

// E164 renders the number as +<country><national>.
func (n Number) E164() string {
	if n.CountryCode == "" || n.National == "" {
		return ""
	}
	return n.CountryCode + n.National
}

// WhatsAppID renders the number the way the Cloud API addresses recipients (digits only).
func (n Number) WhatsAppID() string {
	return strings.TrimPrefix(n.E164(), "+")
}

// IsZero reports whether the number is empty.
func (n Number) IsZero() bool {
	return n.CountryCode == "" && n.National == ""
}

// Sanitize strips everything but digits.
func Sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
