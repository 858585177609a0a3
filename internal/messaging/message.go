// Package messaging holds the transport-neutral outbound message model. Channel
// packages (see messaging/whatsapp) map it onto their wire payloads.
package messaging

import "strings"

// Kind selects how a message renders on the channel.
type Kind string

const (
	KindText    Kind = "text"
	KindButtons Kind = "buttons"
	KindList    Kind = "list"
	KindCTA     Kind = "cta_url"
)

// Button is a quick-reply button. ID comes back as the guest's input when tapped.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Row is a selectable list entry.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Section struct {
	Title string `json:"title,omitempty"`
	Rows  []Row  `json:"rows"`
}

// CTA is a single URL button.
type CTA struct {
	DisplayText string `json:"display_text"`
	URL         string `json:"url"`
}

// Message is one outbound chat message.
type Message struct {
	Kind           Kind      `json:"kind"`
	Header         string    `json:"header,omitempty"`
	HeaderImageURL string    `json:"header_image_url,omitempty"`
	Body           string    `json:"body"`
	Footer         string    `json:"footer,omitempty"`
	Buttons        []Button  `json:"buttons,omitempty"`
	ListButton     string    `json:"list_button,omitempty"`
	Sections       []Section `json:"sections,omitempty"`
	CTA            *CTA      `json:"cta,omitempty"`
}

func Text(body string) Message {
	return Message{Kind: KindText, Body: body}
}

func Buttons(body string, buttons ...Button) Message {
	return Message{Kind: KindButtons, Body: body, Buttons: buttons}
}

// List builds a single-section list message.
func List(body, buttonLabel string, rows ...Row) Message {
	return Message{Kind: KindList, Body: body, ListButton: buttonLabel, Sections: []Section{{Rows: rows}}}
}

func Link(body, label, url string) Message {
	return Message{Kind: KindCTA, Body: body, CTA: &CTA{DisplayText: label, URL: url}}
}

// WithImage sets an image header.
func (m Message) WithImage(url string) Message {
	m.HeaderImageURL = strings.TrimSpace(url)
	return m
}

// WithFooter sets the footer line.
func (m Message) WithFooter(footer string) Message {
	m.Footer = footer
	return m
}

// PlainText flattens the message for transcripts and logs.
func (m Message) PlainText() string {
	var b strings.Builder
	if m.Header != "" {
		b.WriteString(m.Header)
		b.WriteString("\n")
	}
	b.WriteString(m.Body)
	for _, btn := range m.Buttons {
		b.WriteString("\n[")
		b.WriteString(btn.Title)
		b.WriteString("]")
	}
	for _, s := range m.Sections {
		for _, r := range s.Rows {
			b.WriteString("\n- ")
			b.WriteString(r.Title)
		}
	}
	if m.CTA != nil {
		b.WriteString("\n")
		b.WriteString(m.CTA.DisplayText)
		b.WriteString(": ")
		b.WriteString(m.CTA.URL)
	}
	if m.Footer != "" {
		b.WriteString("\n")
		b.WriteString(m.Footer)
	}
	return b.String()
}
