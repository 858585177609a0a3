package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

var nluTracer = otel.Tracer("tourbot.internal.nlu")

// ErrUnavailable wraps transport failures of the backing model.
var ErrUnavailable = errors.New("nlu: extractor unavailable")

// Extractor turns free text into fields for a schema. Unparseable text yields empty
// Fields and a nil error; only transport failures return an error.
type Extractor interface {
	Extract(ctx context.Context, text string, schema Schema) (Fields, error)
}

// LLMExtractor asks a model for a JSON object holding the schema's fields.
type LLMExtractor struct {
	client LLMClient
	model  string
	logger *logging.Logger
}

func NewLLMExtractor(client LLMClient, model string, logger *logging.Logger) *LLMExtractor {
	if client == nil {
		panic("nlu: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMExtractor{client: client, model: model, logger: logger}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, schema Schema) (Fields, error) {
	cfg, ok := ConfigFor(schema)
	if !ok || strings.TrimSpace(text) == "" {
		return Fields{}, nil
	}
	ctx, span := nluTracer.Start(ctx, "nlu.extract")
	defer span.End()
	span.SetAttributes(attribute.String("tourbot.schema", string(schema)))

	system := []string{
		"You extract structured data from WhatsApp messages sent to a tour booking assistant.",
		cfg.Instructions,
		fmt.Sprintf("Respond with only a JSON object with the keys %s. Use null for anything not stated. Never guess.",
			strings.Join(cfg.Fields, ", ")),
	}
	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fields, perr := parseJSONFields(resp.Text, cfg.Fields)
	if perr != nil {
		e.logger.Warn("extractor returned unparseable output", "schema", schema, "error", perr)
		return Fields{}, nil
	}
	return fields, nil
}

// parseJSONFields reads the first JSON object in raw, keeping only allowed keys.
func parseJSONFields(raw string, allowed []string) (Fields, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no json object in output")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decoded); err != nil {
		return nil, err
	}
	out := Fields{}
	for _, key := range allowed {
		switch v := decoded[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" && !strings.EqualFold(s, "null") {
				out[key] = s
			}
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return out, nil
}

// ChainExtractor consults the rules first and the model only when the rules found nothing.
type ChainExtractor struct {
	rules Extractor
	model Extractor
}

// NewChainExtractor chains rules and model. A nil model leaves the rules alone.
func NewChainExtractor(rules, model Extractor) *ChainExtractor {
	if rules == nil {
		rules = RuleExtractor{}
	}
	return &ChainExtractor{rules: rules, model: model}
}

func (c *ChainExtractor) Extract(ctx context.Context, text string, schema Schema) (Fields, error) {
	fields, err := c.rules.Extract(ctx, text, schema)
	if err == nil && !fields.Empty() {
		return fields, nil
	}
	if c.model == nil {
		return Fields{}, nil
	}
	return c.model.Extract(ctx, text, schema)
}
