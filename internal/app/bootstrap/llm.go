package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// BuildLLMClient picks the configured model provider. The other provider, when it
// also has credentials, becomes the fallback. A nil client means rules and
// templates only. Each client carries its own default model.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (nlu.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch cfg.LLMProvider {
	case "", "none", "off":
		logger.Info("llm disabled; using rule extraction and reply templates")
		return nil, nil
	}

	var gemini, bedrock nlu.LLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		gemini = client
	}
	if strings.TrimSpace(cfg.BedrockModelID) != "" && awsCfg != nil {
		bedrock = nlu.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
	}

	primary, secondary := gemini, bedrock
	if cfg.LLMProvider == "bedrock" {
		primary, secondary = bedrock, gemini
	}
	switch {
	case primary == nil && secondary == nil:
		logger.Warn("llm provider has no credentials; using rule extraction and reply templates", "provider", cfg.LLMProvider)
		return nil, nil
	case primary == nil:
		logger.Warn("llm provider missing credentials; using the other provider", "provider", cfg.LLMProvider)
		return secondary, nil
	case secondary == nil:
		logger.Info("llm enabled", "provider", cfg.LLMProvider)
		return primary, nil
	}
	logger.Info("llm enabled with fallback", "provider", cfg.LLMProvider)
	return nlu.NewFallbackLLMClient(primary, secondary, logger), nil
}
