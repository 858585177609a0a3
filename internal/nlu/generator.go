package nlu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging/templates"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// Style names a free-text reply the bot phrases.
type Style string

const (
	StyleAskGuestName      Style = "ask_guest_name"
	StyleAskTravelTime     Style = "ask_travel_time"
	StyleInvalidTravelTime Style = "invalid_travel_time"
	StyleAskPax            Style = "ask_pax"
	StyleInvalidPickup     Style = "invalid_pickup"
	StyleBookingSummary    Style = "booking_summary"
	StyleFAQ               Style = "faq"
)

// StyleConfig is the immutable contract for one style: model instructions plus a
// deterministic template used when no model is configured or the model fails.
type StyleConfig struct {
	Instructions string
	Fallback     string
}

var styleConfigs = map[Style]StyleConfig{
	StyleAskGuestName: {
		Instructions: "Warmly welcome the guest to the tour booking assistant and ask for their name. One or two short sentences.",
		Fallback:     "👋 Welcome! Before we start, may I know your name?",
	},
	StyleAskTravelTime: {
		Instructions: "Ask what pickup time suits the guest on the given date. Mention they can answer like 9:30 AM.",
		Fallback:     "⏰ What time should we pick you up on *{{.Date}}*? (e.g. *9:30 AM*)",
	},
	StyleInvalidTravelTime: {
		Instructions: "Politely explain why the time cannot be used (the reason is given) and ask for another time.",
		Fallback:     "{{.Reason}} Please share a time like *9:30 AM* or *18:00*.",
	},
	StyleAskPax: {
		Instructions: "Ask how many adults and kids are traveling and show the two example formats given.",
		Fallback:     "How many adults and kids are traveling?\nExamples:\n• 2 adults 1 kid\n• 2,1",
	},
	StyleInvalidPickup: {
		Instructions: "Ask the guest again for their pickup location, a hotel name or address. Keep it short.",
		Fallback:     "📍 Please share a valid *pickup location* (hotel name / address).",
	},
	StyleFAQ: {
		Instructions: "Answer the guest's question briefly using only the facts given, or say the team will follow up. Invite them to continue booking.",
		Fallback: `🙋 Thanks for your question!{{if .Package}} *{{.Package}}* is {{.Price}} per person.{{end}} {{if .Company}}The {{.Company}} team{{else}}Our team{{end}} will get back to you shortly with the details.

Meanwhile, you can keep planning your tour right here.`,
	},
	StyleBookingSummary: {
		Instructions: "Summarize the booking facts exactly as given, one per line, with a friendly opener. Do not invent details.",
		Fallback: `✅ *Booking #{{.BookingID}} confirmed*
Name: {{.GuestName}}
Package: {{.Package}}
Date: {{.Date}} at {{.Time}}
Guests: {{.Adults}} adults, {{.Kids}} kids
Pickup: {{.Pickup}}
Total: {{.Total}}
Paid: {{.Paid}}
Balance: {{.Remaining}}`,
	},
}

// StyleConfigFor returns the style contract.
func StyleConfigFor(s Style) (StyleConfig, bool) {
	cfg, ok := styleConfigs[s]
	return cfg, ok
}

// Generator phrases a reply. It is never consulted for control flow.
type Generator interface {
	Generate(ctx context.Context, userText string, vars map[string]any, style Style) (string, error)
}

// TemplateGenerator renders the deterministic fallback templates.
type TemplateGenerator struct {
	renderer *templates.Renderer
}

// NewTemplateGenerator compiles every style template.
func NewTemplateGenerator() *TemplateGenerator {
	r := templates.NewRenderer()
	for style, cfg := range styleConfigs {
		if err := r.Register(string(style), cfg.Fallback); err != nil {
			panic(fmt.Sprintf("nlu: style %s: %v", style, err))
		}
	}
	return &TemplateGenerator{renderer: r}
}

func (g *TemplateGenerator) Generate(_ context.Context, _ string, vars map[string]any, style Style) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	return g.renderer.Render(string(style), vars)
}

// LLMGenerator phrases replies with a model and falls back to templates on failure.
type LLMGenerator struct {
	client   LLMClient
	model    string
	fallback *TemplateGenerator
	logger   *logging.Logger
}

func NewLLMGenerator(client LLMClient, model string, logger *logging.Logger) *LLMGenerator {
	if client == nil {
		panic("nlu: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMGenerator{client: client, model: model, fallback: NewTemplateGenerator(), logger: logger}
}

func (g *LLMGenerator) Generate(ctx context.Context, userText string, vars map[string]any, style Style) (string, error) {
	cfg, ok := StyleConfigFor(style)
	if !ok {
		return "", fmt.Errorf("nlu: unknown style %q", style)
	}
	ctx, span := nluTracer.Start(ctx, "nlu.generate")
	defer span.End()
	span.SetAttributes(attribute.String("tourbot.style", string(style)))

	system := []string{
		"You write short WhatsApp replies for a tour booking assistant. Plain text, WhatsApp *bold* allowed, no markdown headers.",
		cfg.Instructions,
	}
	if facts := renderFacts(vars); facts != "" {
		system = append(system, "Facts:\n"+facts)
	}
	user := strings.TrimSpace(userText)
	if user == "" {
		user = "(no message)"
	}
	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.model,
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err == nil && strings.TrimSpace(resp.Text) != "" {
		return strings.TrimSpace(resp.Text), nil
	}
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("reply generation failed, using template", "style", style, "error", err)
	}
	return g.fallback.Generate(ctx, userText, vars, style)
}

func renderFacts(vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, vars[k]))
	}
	return strings.Join(lines, "\n")
}
