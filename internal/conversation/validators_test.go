package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dubai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Dubai")
	require.NoError(t, err)
	return loc
}

func TestValidateTravelDate(t *testing.T) {
	loc := dubai(t)
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, loc)

	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "dashes", raw: "15-03-2026", want: "2026-03-15"},
		{name: "slashes", raw: "15/03/2026", want: "2026-03-15"},
		{name: "iso", raw: "2026-03-15", want: "2026-03-15"},
		{name: "single digits", raw: "5-4-2026", want: "2026-04-05"},
		{name: "today is allowed", raw: "10-03-2026", want: "2026-03-10"},
		{name: "yesterday", raw: "09-03-2026", wantErr: ErrPastDate},
		{name: "garbage", raw: "next friday", wantErr: ErrInvalidDate},
		{name: "impossible day", raw: "31-02-2026", wantErr: ErrInvalidDate},
		{name: "empty", raw: "  ", wantErr: ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateTravelDate(tc.raw, today)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				var uie *UserInputError
				require.True(t, errors.As(err, &uie))
				assert.NotEmpty(t, uie.Prompt())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Format(storedDateLayout))
			assert.Equal(t, loc, got.Location())
		})
	}
}

func TestValidateTravelDatePromptShowsToday(t *testing.T) {
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := ValidateTravelDate("tomorrow-ish", today)
	var uie *UserInputError
	require.True(t, errors.As(err, &uie))
	assert.Equal(t, "Invalid date format. Please enter DD-MM-YYYY. Example: *10-03-2026*", uie.Prompt())
}

func TestValidateTravelTime(t *testing.T) {
	loc := dubai(t)
	now := time.Date(2026, 3, 10, 15, 30, 45, 0, loc)
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)

	cases := []struct {
		name    string
		raw     string
		date    time.Time
		want    string
		wantErr error
	}{
		{name: "24h", raw: "18:00", date: tomorrow, want: "06:00 PM"},
		{name: "12h", raw: "9:30 AM", date: tomorrow, want: "09:30 AM"},
		{name: "compact pm", raw: "6pm", date: tomorrow, want: "06:00 PM"},
		{name: "noon pm", raw: "12 pm", date: tomorrow, want: "12:00 PM"},
		{name: "midnight am", raw: "12:15 am", date: tomorrow, want: "12:15 AM"},
		{name: "morning", raw: "Morning", date: tomorrow, want: "09:00 AM"},
		{name: "afternoon", raw: "afternoon", date: tomorrow, want: "02:00 PM"},
		{name: "evening", raw: "evening", date: tomorrow, want: "06:00 PM"},
		{name: "night", raw: "night", date: tomorrow, want: "08:00 PM"},
		{name: "later today", raw: "15:31", date: today, want: "03:31 PM"},
		{name: "same minute today", raw: "15:30", date: today, wantErr: ErrPastTime},
		{name: "earlier today", raw: "morning", date: today, wantErr: ErrPastTime},
		{name: "bad hour", raw: "25:00", date: tomorrow, wantErr: ErrInvalidTime},
		{name: "bad 12h hour", raw: "13 pm", date: tomorrow, wantErr: ErrInvalidTime},
		{name: "bad minutes", raw: "10:75", date: tomorrow, wantErr: ErrInvalidTime},
		{name: "words", raw: "whenever", date: tomorrow, wantErr: ErrInvalidTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateTravelTime(tc.raw, tc.date, now)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidatePax(t *testing.T) {
	assert.NoError(t, ValidatePax(1, 0))
	assert.NoError(t, ValidatePax(60, 40))
	assert.ErrorIs(t, ValidatePax(0, 2), ErrInvalidPax)
	assert.ErrorIs(t, ValidatePax(2, -1), ErrInvalidPax)
	assert.ErrorIs(t, ValidatePax(60, 41), ErrInvalidPax)
}

func TestValidatePickupLocation(t *testing.T) {
	got, err := ValidatePickupLocation("  Atlantis The Palm ")
	require.NoError(t, err)
	assert.Equal(t, "Atlantis The Palm", got)

	_, err = ValidatePickupLocation("ab")
	assert.ErrorIs(t, err, ErrInvalidPickup)

	long := make([]rune, 256)
	for i := range long {
		long[i] = 'x'
	}
	_, err = ValidatePickupLocation(string(long))
	assert.ErrorIs(t, err, ErrInvalidPickup)
}

func TestValidateGuestName(t *testing.T) {
	got, err := ValidateGuestName("  Sara   Khan ")
	require.NoError(t, err)
	assert.Equal(t, "Sara Khan", got)

	for _, bad := range []string{"", "   ", "12345", "!!"} {
		_, err := ValidateGuestName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestValidatePhoneParts(t *testing.T) {
	cc, err := ValidateCountryCode("971")
	require.NoError(t, err)
	assert.Equal(t, "+971", cc)
	cc, err = ValidateCountryCode("+1")
	require.NoError(t, err)
	assert.Equal(t, "+1", cc)
	_, err = ValidateCountryCode("+12345")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	_, err = ValidateCountryCode("uae")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	n, err := ValidateNationalPhone("050-123 4567")
	require.NoError(t, err)
	assert.Equal(t, "501234567", n)
	_, err = ValidateNationalPhone("12345")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	_, err = ValidateNationalPhone("50abc4567")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}
