package whatsapp

import (
	"context"
	"fmt"

	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
)

// CompanyLookup resolves a tenant by id.
type CompanyLookup interface {
	ByID(ctx context.Context, id int64) (company.Company, error)
}

// Sender sends on behalf of a company, using its own WhatsApp number when configured.
type Sender struct {
	client    *Client
	companies CompanyLookup
	metrics   *metrics.MessagingMetrics
}

func NewSender(client *Client, companies CompanyLookup, m *metrics.MessagingMetrics) *Sender {
	if client == nil {
		panic("whatsapp: client required")
	}
	if companies == nil {
		panic("whatsapp: company lookup required")
	}
	return &Sender{client: client, companies: companies, metrics: m}
}

func (s *Sender) Send(ctx context.Context, companyID int64, to string, msg messaging.Message) error {
	co, err := s.companies.ByID(ctx, companyID)
	if err != nil {
		return fmt.Errorf("whatsapp: load company %d: %w", companyID, err)
	}
	_, err = s.client.Send(ctx, Credentials{PhoneNumberID: co.PhoneNumberID, AccessToken: co.WhatsAppToken}, to, msg)
	status := "sent"
	if err != nil {
		status = "failed"
	}
	s.metrics.ObserveOutbound(string(msg.Kind), status)
	return err
}
