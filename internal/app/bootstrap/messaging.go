package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging/whatsapp"
	"github.com/wolfman30/whatsapp-tour-booking/internal/notify"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

const memoryQueueBuffer = 1024

// BuildQueue returns the in-process queue in development and SQS otherwise.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (conversation.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(memoryQueueBuffer), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config is required for sqs")
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.ConversationQueueURL), nil
}

// BuildWhatsAppSender sends through each company's own number, falling back to
// the configured default credentials.
func BuildWhatsAppSender(cfg *appconfig.Config, companies whatsapp.CompanyLookup, m *metrics.MessagingMetrics, logger *logging.Logger) *whatsapp.Sender {
	client := whatsapp.NewClient(whatsapp.Config{
		BaseURL: cfg.WhatsAppAPIBaseURL,
		Defaults: whatsapp.Credentials{
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
		},
		Logger: logger,
	})
	return whatsapp.NewSender(client, companies, m)
}

// BuildNotifier emails operators when a booking is paid.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.Service {
	var sesClient *sesv2.Client
	if awsCfg != nil && cfg.EmailProvider == "ses" {
		sesClient = sesv2.NewFromConfig(*awsCfg)
	}
	sender := notify.NewEmailSender(notify.ProviderConfig{
		Provider: cfg.EmailProvider,
		SendGrid: notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		},
		SES: notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		},
	}, sesClient, logger)
	return notify.NewService(sender, logger)
}
