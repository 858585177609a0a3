package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// WorkerDeps are built once per process and shared with the HTTP side.
type WorkerDeps struct {
	Infra     *Infra
	Queue     conversation.Queue
	AWS       *aws.Config
	Messaging *metrics.MessagingMetrics
	Steps     *metrics.ConversationMetrics
}

// BuildWorker wires the engine, WhatsApp sender, operator notifier and transcript
// into a queue consumer.
func BuildWorker(ctx context.Context, cfg *appconfig.Config, deps WorkerDeps, logger *logging.Logger) (*conversation.Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("bootstrap: queue is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	llm, err := BuildLLMClient(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}
	parts, err := BuildEngine(cfg, deps.Infra, llm, deps.Steps, logger)
	if err != nil {
		return nil, err
	}

	opts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithPaymentNotifier(BuildNotifier(cfg, deps.AWS, logger)),
	}
	if cfg.TranscriptEnabled {
		opts = append(opts, conversation.WithTranscriptStore(conversation.NewTranscriptStore(deps.Infra.SQL)))
	}

	sender := BuildWhatsAppSender(cfg, deps.Infra.Companies, deps.Messaging, logger)
	return conversation.NewWorker(parts.Engine, deps.Queue, sender, logger, opts...), nil
}
