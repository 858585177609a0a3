package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
)

const (
	// DateLayout is how dates are shown to and typed by guests.
	DateLayout = "02-01-2006"
	// TimeLayout is the canonical stored travel time.
	TimeLayout = "03:04 PM"

	storedDateLayout  = "2006-01-02"
	displayDateLayout = "02 Jan 2006"

	MaxGroupSize = 100
)

var (
	dateLayouts = []string{"2-1-2006", "2/1/2006", "2.1.2006", "2006-1-2"}

	timePattern = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)

	namedTimes = map[string][2]int{
		"morning":   {9, 0},
		"afternoon": {14, 0},
		"evening":   {18, 0},
		"night":     {20, 0},
		"noon":      {12, 0},
	}

	countryCodePattern = regexp.MustCompile(`^\+?(\d{1,4})$`)
	phoneStrip         = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

func invalidDatePrompt(today time.Time) string {
	return fmt.Sprintf("Invalid date format. Please enter DD-MM-YYYY. Example: *%s*", today.Format(DateLayout))
}

// ValidateTravelDate parses a guest date and rejects days before today.
// The result is midnight of that day in today's location.
func ValidateTravelDate(raw string, today time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, inputError(ErrInvalidDate, messaging.Text(invalidDatePrompt(today)))
	}
	loc := today.Location()
	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if d.Before(startOfDay(today)) {
			return time.Time{}, inputError(ErrPastDate,
				messaging.Text("It looks like you've entered a past date. Please select a future date to continue."))
		}
		return d, nil
	}
	return time.Time{}, inputError(ErrInvalidDate, messaging.Text(invalidDatePrompt(today)))
}

// ValidateTravelTime accepts 24h, 12h and named-period times and returns the
// canonical form. On the current day the time must be after now.
func ValidateTravelTime(raw string, date, now time.Time) (string, error) {
	hour, minute, ok := parseClock(raw)
	if !ok {
		return "", inputError(ErrInvalidTime, messaging.Text("I couldn't read that time."))
	}
	loc := now.Location()
	day := date.In(loc)
	if sameDay(day, now) {
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if !at.After(now.Truncate(time.Minute)) {
			return "", inputError(ErrPastTime,
				messaging.Text("The selected time has already passed. Please choose a future time."))
		}
	}
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format(TimeLayout), nil
}

func parseClock(raw string) (int, int, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if hm, ok := namedTimes[s]; ok {
		return hm[0], hm[1], true
	}
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		if t, err := time.Parse(TimeLayout, strings.ToUpper(s)); err == nil {
			return t.Hour(), t.Minute(), true
		}
		return 0, 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return 0, 0, false
	}
	switch strings.ReplaceAll(m[3], ".", "") {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// ValidatePax checks the party size.
func ValidatePax(adults, kids int) error {
	switch {
	case adults < 1:
		return inputError(ErrInvalidPax, messaging.Text("At least one adult must be traveling. How many adults will be traveling?"))
	case kids < 0:
		return inputError(ErrInvalidPax, messaging.Text("The number of children can't be negative. How many children will be traveling?"))
	case adults+kids > MaxGroupSize:
		return inputError(ErrInvalidPax, messaging.Text(fmt.Sprintf("We can take at most %d guests in one booking. Please enter a smaller group.", MaxGroupSize)))
	}
	return nil
}

// ValidatePickupLocation trims and length-checks a pickup address.
func ValidatePickupLocation(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(v); n < 3 || n > 255 {
		return "", inputError(ErrInvalidPickup, messaging.Text("📍 Please share a valid *pickup location* (hotel name / address)."))
	}
	return v, nil
}

// ValidateGuestName requires 1..100 characters including at least one letter.
func ValidateGuestName(raw string) (string, error) {
	v := strings.Join(strings.Fields(raw), " ")
	n := utf8.RuneCountInString(v)
	if n == 0 || n > 100 || !strings.ContainsFunc(v, unicode.IsLetter) {
		return "", inputError(ErrInvalidName, messaging.Text("Please share a valid name."))
	}
	return v, nil
}

// ValidateCountryCode returns the code in "+971" form.
func ValidateCountryCode(raw string) (string, error) {
	m := countryCodePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", inputError(ErrInvalidPhone, messaging.Text("Please share a valid country code, for example *+971*."))
	}
	return "+" + m[1], nil
}

// ValidateNationalPhone returns the digits of a national number without a trunk prefix.
func ValidateNationalPhone(raw string) (string, error) {
	v := phoneStrip.Replace(strings.TrimSpace(raw))
	for _, r := range v {
		if r < '0' || r > '9' {
			return "", inputError(ErrInvalidPhone, messaging.Text("Please share a valid phone number using digits only."))
		}
	}
	v = strings.TrimLeft(v, "0")
	if n := len(v); n < 6 || n > 15 {
		return "", inputError(ErrInvalidPhone, messaging.Text("Please share a valid phone number using digits only."))
	}
	return v, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
