package whatsapp

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
)

// Cloud API limits for interactive messages.
const (
	MaxButtons           = 3
	MaxButtonTitle       = 20
	MaxListRows          = 10
	MaxRowTitle          = 24
	MaxRowDescription    = 72
	MaxBodyLength        = 1024
	MaxTextLength        = 4096
	MaxListButtonLabel   = 20
	MaxHeaderText        = 60
	MaxSectionTitle      = 24
	MaxCTADisplayText    = 20
	interactivePayload   = "interactive"
	messagingProductName = "whatsapp"
)

type sendPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type interactive struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   textOnly           `json:"body"`
	Footer *textOnly          `json:"footer,omitempty"`
	Action interactiveAction  `json:"action"`
}

type textOnly struct {
	Text string `json:"text"`
}

type interactiveHeader struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Image *mediaLink `json:"image,omitempty"`
}

type mediaLink struct {
	Link string `json:"link"`
}

type interactiveAction struct {
	Buttons    []replyButton  `json:"buttons,omitempty"`
	Button     string         `json:"button,omitempty"`
	Sections   []listSection  `json:"sections,omitempty"`
	Name       string         `json:"name,omitempty"`
	Parameters *ctaParameters `json:"parameters,omitempty"`
}

type replyButton struct {
	Type  string     `json:"type"`
	Reply replyTitle `json:"reply"`
}

type replyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ctaParameters struct {
	DisplayText string `json:"display_text"`
	URL         string `json:"url"`
}

// buildPayload maps msg onto a Cloud API send payload, clipping it to the channel limits.
func buildPayload(to string, msg messaging.Message) (sendPayload, error) {
	to = strings.TrimPrefix(strings.TrimSpace(to), "+")
	if to == "" {
		return sendPayload{}, errors.New("whatsapp: recipient required")
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return sendPayload{}, errors.New("whatsapp: message body required")
	}
	p := sendPayload{MessagingProduct: messagingProductName, RecipientType: "individual", To: to}

	switch msg.Kind {
	case messaging.KindText, "":
		p.Type = "text"
		p.Text = &textBody{Body: clip(body, MaxTextLength), PreviewURL: strings.Contains(body, "http")}
		return p, nil
	case messaging.KindButtons:
		if len(msg.Buttons) == 0 {
			return sendPayload{}, errors.New("whatsapp: button message without buttons")
		}
		ia := newInteractive("button", msg)
		for i, b := range msg.Buttons {
			if i == MaxButtons {
				break
			}
			ia.Action.Buttons = append(ia.Action.Buttons, replyButton{
				Type:  "reply",
				Reply: replyTitle{ID: b.ID, Title: clip(b.Title, MaxButtonTitle)},
			})
		}
		p.Type = interactivePayload
		p.Interactive = ia
		return p, nil
	case messaging.KindList:
		ia := newInteractive("list", msg)
		// List headers cannot carry media.
		if ia.Header != nil && ia.Header.Type == "image" {
			ia.Header = nil
		}
		label := strings.TrimSpace(msg.ListButton)
		if label == "" {
			label = "View options"
		}
		ia.Action.Button = clip(label, MaxListButtonLabel)
		remaining := MaxListRows
		for _, s := range msg.Sections {
			if remaining == 0 {
				break
			}
			section := listSection{Title: clip(s.Title, MaxSectionTitle)}
			for _, r := range s.Rows {
				if remaining == 0 {
					break
				}
				section.Rows = append(section.Rows, listRow{
					ID:          r.ID,
					Title:       clip(r.Title, MaxRowTitle),
					Description: clip(r.Description, MaxRowDescription),
				})
				remaining--
			}
			if len(section.Rows) > 0 {
				ia.Action.Sections = append(ia.Action.Sections, section)
			}
		}
		if len(ia.Action.Sections) == 0 {
			return sendPayload{}, errors.New("whatsapp: list message without rows")
		}
		if len(ia.Action.Sections) == 1 {
			ia.Action.Sections[0].Title = ""
		}
		p.Type = interactivePayload
		p.Interactive = ia
		return p, nil
	case messaging.KindCTA:
		if msg.CTA == nil || strings.TrimSpace(msg.CTA.URL) == "" {
			return sendPayload{}, errors.New("whatsapp: cta message without url")
		}
		ia := newInteractive("cta_url", msg)
		ia.Action.Name = "cta_url"
		ia.Action.Parameters = &ctaParameters{
			DisplayText: clip(msg.CTA.DisplayText, MaxCTADisplayText),
			URL:         strings.TrimSpace(msg.CTA.URL),
		}
		p.Type = interactivePayload
		p.Interactive = ia
		return p, nil
	default:
		return sendPayload{}, errors.New("whatsapp: unsupported message kind " + string(msg.Kind))
	}
}

func newInteractive(kind string, msg messaging.Message) *interactive {
	ia := &interactive{Type: kind, Body: textOnly{Text: clip(strings.TrimSpace(msg.Body), MaxBodyLength)}}
	switch {
	case msg.HeaderImageURL != "":
		ia.Header = &interactiveHeader{Type: "image", Image: &mediaLink{Link: msg.HeaderImageURL}}
	case strings.TrimSpace(msg.Header) != "":
		ia.Header = &interactiveHeader{Type: "text", Text: clip(msg.Header, MaxHeaderText)}
	}
	if f := strings.TrimSpace(msg.Footer); f != "" {
		ia.Footer = &textOnly{Text: clip(f, 60)}
	}
	return ia
}

// clip shortens s to max runes, marking the cut with an ellipsis.
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// Inbound webhook payloads.

type webhookEvent struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         webhookMetadata  `json:"metadata"`
	Contacts         []webhookContact `json:"contacts"`
	Messages         []webhookMessage `json:"messages"`
	Statuses         []webhookStatus  `json:"statuses"`
}

type webhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *webhookText        `json:"text,omitempty"`
	Interactive *webhookInteractive `json:"interactive,omitempty"`
	Button      *webhookButton      `json:"button,omitempty"`
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookInteractive struct {
	Type        string      `json:"type"`
	ButtonReply *replyTitle `json:"button_reply,omitempty"`
	ListReply   *listRow    `json:"list_reply,omitempty"`
}

// webhookButton is a tap on a template quick-reply button.
type webhookButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type graphError struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}
