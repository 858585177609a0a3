package nlu

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	cityWordsRe = regexp.MustCompile(`^\p{L}[\p{L}\s'.-]{1,40}$`)

	dmyRe   = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})\b`)
	ymdRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dMonYRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*,?\s+(\d{4})\b`)
	monDYRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	ampmRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\b\.?`)
	h24Re    = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.]([0-5]\d)\b`)
	periodRe = regexp.MustCompile(`(?i)\b(morning|afternoon|evening|night|noon)\b`)

	numberWord = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten)`
	adultsRe   = regexp.MustCompile(`(?i)\b` + numberWord + `\s*(?:adults?|grown[- ]?ups?|people|persons?|pax)\b`)
	kidsRe     = regexp.MustCompile(`(?i)\b` + numberWord + `\s*(?:kids?|child(?:ren)?|infants?|bab(?:y|ies))\b`)
	pairRe     = regexp.MustCompile(`^\s*(\d+)\s*(?:[,/&+]|\s)\s*(\d+)\s*$`)
	noKidsRe   = regexp.MustCompile(`(?i)\b(?:no|zero|without)\s+(?:kids?|child(?:ren)?)\b`)
	soloRe     = regexp.MustCompile(`(?i)\b(?:just me|only me|myself|solo|alone)\b`)

	namePrefixRe = regexp.MustCompile(`(?i)^(?:(?:hi|hello|hey)[\s,!.]*)?(?:my name is|my name's|i am|i'm|im|this is|it's|its|name is|name:|call me)\s+`)
	nameWordsRe  = regexp.MustCompile(`^\p{L}[\p{L}'.-]*(?:\s+\p{L}[\p{L}'.-]*){0,3}$`)

	countryCodeFieldRe = regexp.MustCompile(`(?i)\bcountry\s*code\b`)
	phoneFieldRe       = regexp.MustCompile(`(?i)\b(?:phone|mobile|number|whatsapp|contact)\b`)
	timeFieldRe        = regexp.MustCompile(`(?i)\b(?:time|pick-?up time|timing)\b`)
	nameFieldRe        = regexp.MustCompile(`(?i)\bname\b`)
	updateValueRe      = regexp.MustCompile(`(?i)(?:\bto\b|\bis\b|\bas\b|[:=])\s*(.+?)\s*$`)

	bookIntentRe     = regexp.MustCompile(`(?i)\bbook(?:ing)?\b`)
	questionIntentRe = regexp.MustCompile(`(?i)\b(?:price|prices|pricing|cost|how much|policy|policies|refunds?|cancellation)\b`)
	greetingRe       = regexp.MustCompile(`(?i)^(?:hi+|hello|hey|salam|good (?:morning|afternoon|evening))[\s!.,]*$`)
	letterRe         = regexp.MustCompile(`\p{L}`)
)

var cityMarkers = map[string]bool{
	"to": true, "in": true, "visit": true, "visiting": true, "explore": true, "for": true,
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var notNames = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yes": true, "no": true, "ok": true, "okay": true,
	"thanks": true, "thank you": true, "book": true, "help": true, "start": true, "menu": true,
}

// RuleExtractor recognizes the common phrasings with regular expressions. It never fails.
type RuleExtractor struct{}

func (RuleExtractor) Extract(_ context.Context, text string, schema Schema) (Fields, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fields{}, nil
	}
	switch schema {
	case SchemaCity:
		return ruleCity(text), nil
	case SchemaTravelDate:
		return ruleDate(text), nil
	case SchemaTravelTime:
		return ruleTime(text), nil
	case SchemaPax:
		return rulePax(text), nil
	case SchemaGuestName:
		return ruleName(text), nil
	case SchemaDetailsUpdate:
		return ruleUpdate(text), nil
	case SchemaIntent:
		return ruleIntent(text), nil
	default:
		return Fields{}, nil
	}
}

func trimPunct(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".!?,;")
}

func ruleCity(text string) Fields {
	text = trimPunct(text)
	if len(strings.Fields(text)) <= 3 && cityWordsRe.MatchString(text) {
		return Fields{FieldCity: text}
	}
	words := strings.Fields(text)
	for i := len(words) - 2; i >= 0; i-- {
		if !cityMarkers[strings.ToLower(words[i])] {
			continue
		}
		rest := words[i+1:]
		city := strings.Join(rest, " ")
		if len(rest) <= 3 && cityWordsRe.MatchString(city) {
			return Fields{FieldCity: city}
		}
		break
	}
	return Fields{}
}

func ruleDate(text string) Fields {
	format := func(d, m, y int) Fields {
		return Fields{FieldTravelDate: fmt.Sprintf("%02d-%02d-%04d", d, m, y)}
	}
	if m := ymdRe.FindStringSubmatch(text); m != nil {
		return format(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := dmyRe.FindStringSubmatch(text); m != nil {
		return format(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dMonYRe.FindStringSubmatch(text); m != nil {
		return format(atoi(m[1]), months[strings.ToLower(m[2])], atoi(m[3]))
	}
	if m := monDYRe.FindStringSubmatch(text); m != nil {
		return format(atoi(m[2]), months[strings.ToLower(m[1])], atoi(m[3]))
	}
	return Fields{}
}

func ruleTime(text string) Fields {
	if m := ampmRe.FindStringSubmatch(text); m != nil {
		hour, minute := atoi(m[1]), 0
		if m[2] != "" {
			minute = atoi(m[2])
		}
		if hour >= 1 && hour <= 12 && minute < 60 {
			hour %= 12
			if strings.EqualFold(m[3], "p") {
				hour += 12
			}
			return Fields{FieldTravelTime: fmt.Sprintf("%02d:%02d", hour, minute)}
		}
	}
	if m := h24Re.FindStringSubmatch(text); m != nil {
		return Fields{FieldTravelTime: fmt.Sprintf("%02d:%02d", atoi(m[1]), atoi(m[2]))}
	}
	if m := periodRe.FindStringSubmatch(text); m != nil {
		period := strings.ToLower(m[1])
		if period == "noon" {
			return Fields{FieldTravelTime: "12:00"}
		}
		return Fields{FieldTravelTime: period}
	}
	return Fields{}
}

func rulePax(text string) Fields {
	out := Fields{}
	if m := pairRe.FindStringSubmatch(text); m != nil {
		out[FieldAdults] = m[1]
		out[FieldKids] = m[2]
		return out
	}
	if m := adultsRe.FindStringSubmatch(text); m != nil {
		out[FieldAdults] = strconv.Itoa(wordToInt(m[1]))
	}
	if m := kidsRe.FindStringSubmatch(text); m != nil {
		out[FieldKids] = strconv.Itoa(wordToInt(m[1]))
	}
	if _, ok := out[FieldKids]; !ok && noKidsRe.MatchString(text) {
		out[FieldKids] = "0"
	}
	if _, ok := out[FieldAdults]; !ok && soloRe.MatchString(text) {
		out[FieldAdults] = "1"
		if _, ok := out[FieldKids]; !ok {
			out[FieldKids] = "0"
		}
	}
	return out
}

func ruleName(text string) Fields {
	name := trimPunct(namePrefixRe.ReplaceAllString(text, ""))
	if name == "" || notNames[strings.ToLower(name)] {
		return Fields{}
	}
	if !nameWordsRe.MatchString(name) {
		return Fields{}
	}
	return Fields{FieldGuestName: name}
}

func ruleUpdate(text string) Fields {
	var field string
	switch {
	case countryCodeFieldRe.MatchString(text):
		field = "country_code"
	case phoneFieldRe.MatchString(text):
		field = "phone"
	case timeFieldRe.MatchString(text):
		field = "travel_time"
	case nameFieldRe.MatchString(text):
		field = "guest_name"
	default:
		return Fields{}
	}
	m := updateValueRe.FindStringSubmatch(text)
	if m == nil {
		return Fields{}
	}
	value := trimPunct(m[1])
	if value == "" {
		return Fields{}
	}
	return Fields{FieldUpdate: field, FieldValue: value}
}

// ruleIntent answers the obvious cases and leaves the rest to the model.
// Text without letters is an answer to the current question, never an intent.
func ruleIntent(text string) Fields {
	switch {
	case !letterRe.MatchString(text):
		return Fields{FieldIntent: IntentUnknown}
	case bookIntentRe.MatchString(text):
		return Fields{FieldIntent: IntentBookTour}
	case questionIntentRe.MatchString(text):
		return Fields{FieldIntent: IntentAskQuestion}
	case greetingRe.MatchString(text):
		return Fields{FieldIntent: IntentGreeting}
	}
	return Fields{}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func wordToInt(s string) int {
	if n, ok := numberWords[strings.ToLower(s)]; ok {
		return n
	}
	return atoi(s)
}
