package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleExtractorCity(t *testing.T) {
	cases := map[string]string{
		"Dubai":                   "Dubai",
		"abu dhabi":               "abu dhabi",
		"I want to go to Abu Dhabi": "Abu Dhabi",
		"planning a trip in Ras Al Khaimah!": "Ras Al Khaimah",
	}
	for input, want := range cases {
		fields, err := RuleExtractor{}.Extract(context.Background(), input, SchemaCity)
		require.NoError(t, err)
		got, ok := fields.Get(FieldCity)
		require.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	fields, _ := RuleExtractor{}.Extract(context.Background(), "what tours do you have for 5 people?", SchemaCity)
	assert.True(t, fields.Empty())
}

func TestRuleExtractorDate(t *testing.T) {
	cases := map[string]string{
		"2026-11-05":           "05-11-2026",
		"5/11/2026":            "05-11-2026",
		"on 5th November 2026": "05-11-2026",
		"Nov 5, 2026 please":   "05-11-2026",
	}
	for input, want := range cases {
		fields, _ := RuleExtractor{}.Extract(context.Background(), input, SchemaTravelDate)
		got, _ := fields.Get(FieldTravelDate)
		assert.Equal(t, want, got, input)
	}
	fields, _ := RuleExtractor{}.Extract(context.Background(), "next friday", SchemaTravelDate)
	assert.True(t, fields.Empty())
}

func TestRuleExtractorTime(t *testing.T) {
	cases := map[string]string{
		"9:30 AM":         "09:30",
		"pick us at 7pm":  "19:00",
		"12 am":           "00:00",
		"18:45":           "18:45",
		"around noon":     "12:00",
		"in the morning":  "morning",
	}
	for input, want := range cases {
		fields, _ := RuleExtractor{}.Extract(context.Background(), input, SchemaTravelTime)
		got, _ := fields.Get(FieldTravelTime)
		assert.Equal(t, want, got, input)
	}
}

func TestRuleExtractorPax(t *testing.T) {
	tests := []struct {
		input  string
		adults string
		kids   string
	}{
		{"2,1", "2", "1"},
		{"3 4", "3", "4"},
		{"2 adults 1 kid", "2", "1"},
		{"two adults and three children", "2", "3"},
		{"4 adults, no kids", "4", "0"},
		{"just me", "1", "0"},
		{"3 kids", "", "3"},
	}
	for _, tc := range tests {
		fields, _ := RuleExtractor{}.Extract(context.Background(), tc.input, SchemaPax)
		assert.Equal(t, tc.adults, fields[FieldAdults], tc.input)
		assert.Equal(t, tc.kids, fields[FieldKids], tc.input)
	}
}

func TestRuleExtractorGuestName(t *testing.T) {
	fields, _ := RuleExtractor{}.Extract(context.Background(), "Hi, my name is Sara Khan.", SchemaGuestName)
	name, ok := fields.Get(FieldGuestName)
	require.True(t, ok)
	assert.Equal(t, "Sara Khan", name)

	fields, _ = RuleExtractor{}.Extract(context.Background(), "Omar", SchemaGuestName)
	assert.Equal(t, "Omar", fields[FieldGuestName])

	for _, input := range []string{"hello", "ok", "can you help me book 3 tours?"} {
		fields, _ = RuleExtractor{}.Extract(context.Background(), input, SchemaGuestName)
		assert.True(t, fields.Empty(), input)
	}
}

func TestRuleExtractorDetailsUpdate(t *testing.T) {
	tests := []struct {
		input string
		field string
		value string
	}{
		{"change my phone number to 501234567", "phone", "501234567"},
		{"country code is +971", "country_code", "+971"},
		{"update pickup time to 10:30 am", "travel_time", "10:30 am"},
		{"name: Ahmed Ali", "guest_name", "Ahmed Ali"},
	}
	for _, tc := range tests {
		fields, _ := RuleExtractor{}.Extract(context.Background(), tc.input, SchemaDetailsUpdate)
		assert.Equal(t, tc.field, fields[FieldUpdate], tc.input)
		assert.Equal(t, tc.value, fields[FieldValue], tc.input)
	}
	fields, _ := RuleExtractor{}.Extract(context.Background(), "everything looks fine", SchemaDetailsUpdate)
	assert.True(t, fields.Empty())
}

func TestFieldsInt(t *testing.T) {
	f := Fields{FieldAdults: " 3 ", FieldKids: "x"}
	n, ok := f.Int(FieldAdults)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = f.Int(FieldKids)
	assert.False(t, ok)
	_, ok = f.Int("missing")
	assert.False(t, ok)
}

func TestRuleExtractorIntent(t *testing.T) {
	cases := map[string]string{
		"I want to book a desert safari": IntentBookTour,
		"what is the price for kids?":    IntentAskQuestion,
		"Do you have a refund policy":    IntentAskQuestion,
		"Hello!":                         IntentGreeting,
		"2,1":                            IntentUnknown,
		"18:30":                          IntentUnknown,
	}
	for input, want := range cases {
		fields, err := RuleExtractor{}.Extract(context.Background(), input, SchemaIntent)
		require.NoError(t, err)
		got, _ := fields.Get(FieldIntent)
		assert.Equal(t, want, got, input)
	}

	fields, _ := RuleExtractor{}.Extract(context.Background(), "Hilton JBR", SchemaIntent)
	assert.True(t, fields.Empty(), "free text without cues is left to the model")
}
