package nlu

import (
	"strconv"
	"strings"
)

// Schema names what the extractor should pull out of a message.
type Schema string

const (
	SchemaCity          Schema = "city"
	SchemaTravelDate    Schema = "travel_date"
	SchemaTravelTime    Schema = "travel_time"
	SchemaPax           Schema = "pax"
	SchemaGuestName     Schema = "guest_name"
	SchemaDetailsUpdate Schema = "details_update"
	SchemaIntent        Schema = "intent"
)

// Field names returned in Fields.
const (
	FieldCity       = "city"
	FieldTravelDate = "travel_date"
	FieldTravelTime = "travel_time"
	FieldAdults     = "adults"
	FieldKids       = "kids"
	FieldGuestName  = "guest_name"
	FieldUpdate     = "field"
	FieldValue      = "value"
	FieldIntent     = "intent"
)

// Intents recognized by SchemaIntent.
const (
	IntentBookTour    = "book_tour"
	IntentAskQuestion = "ask_question"
	IntentGreeting    = "greeting"
	IntentUnknown     = "unknown"
)

// SchemaConfig is the immutable prompt contract for one schema.
type SchemaConfig struct {
	Instructions string
	Fields       []string
}

var schemaConfigs = map[Schema]SchemaConfig{
	SchemaCity: {
		Instructions: "Extract the city the traveler wants to visit. Return the city name only, without country.",
		Fields:       []string{FieldCity},
	},
	SchemaTravelDate: {
		Instructions: "Extract the travel date. Normalize it to DD-MM-YYYY. If no year is given, leave travel_date null.",
		Fields:       []string{FieldTravelDate},
	},
	SchemaTravelTime: {
		Instructions: "Extract the pickup time. Normalize to 24 hour HH:MM, or one of morning, afternoon, evening, night if only a period is given.",
		Fields:       []string{FieldTravelTime},
	},
	SchemaPax: {
		Instructions: "Extract how many adults and how many kids are traveling. Use integers. Leave a value null if it was not stated.",
		Fields:       []string{FieldAdults, FieldKids},
	},
	SchemaGuestName: {
		Instructions: "Extract the person's own name as they would like to be addressed. Leave guest_name null for greetings or questions.",
		Fields:       []string{FieldGuestName},
	},
	SchemaDetailsUpdate: {
		Instructions: "The guest wants to change one booking detail. Set field to one of guest_name, phone, country_code, travel_time and value to the new value.",
		Fields:       []string{FieldUpdate, FieldValue},
	},
	SchemaIntent: {
		Instructions: "Classify the message as book_tour, ask_question (prices, policies, refunds, tour details), greeting or unknown.",
		Fields:       []string{FieldIntent},
	},
}

// ConfigFor returns the schema's prompt contract.
func ConfigFor(s Schema) (SchemaConfig, bool) {
	cfg, ok := schemaConfigs[s]
	return cfg, ok
}

// Fields maps field names to extracted values. Absent keys mean "no value".
type Fields map[string]string

// Get returns a trimmed, non-empty value.
func (f Fields) Get(name string) (string, bool) {
	v := strings.TrimSpace(f[name])
	return v, v != ""
}

// Int returns a value parsed as a base-10 integer.
func (f Fields) Int(name string) (int, bool) {
	v, ok := f.Get(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Empty reports whether nothing was extracted.
func (f Fields) Empty() bool {
	for _, v := range f {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
