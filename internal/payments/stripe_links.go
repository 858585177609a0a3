// Package payments creates Stripe payment links for bookings and turns Stripe
// webhook deliveries into payment outcomes for the conversation worker.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("tourbot.internal.payments.stripe")

// ErrLinkLimitExceeded is returned when a booking asked for too many links in the window.
var ErrLinkLimitExceeded = errors.New("payments: payment link limit exceeded")

// LinkRequest describes the amount a guest should pay for a booking.
type LinkRequest struct {
	CompanyID     int64
	BookingID     int64
	ChatSessionID string
	Phone         string
	PackageName   string
	// Amount is in minor units of Currency.
	Amount   int64
	Currency string
	// SecretKey overrides the default Stripe key for this company.
	SecretKey string
}

// Link is a hosted payment page.
type Link struct {
	ID  string
	URL string
}

// StripeConfig wires the link provider.
type StripeConfig struct {
	SecretKey string
	DryRun    bool
	// Backends is nil in production; tests point it at a local server.
	Backends *stripe.Backends
	Velocity *LinkVelocity
	Logger   *logging.Logger
}

// StripeLinkProvider creates a one-off Price and a PaymentLink per request.
type StripeLinkProvider struct {
	defaultKey string
	dryRun     bool
	backends   *stripe.Backends
	velocity   *LinkVelocity
	logger     *logging.Logger
}

func NewStripeLinkProvider(cfg StripeConfig) *StripeLinkProvider {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &StripeLinkProvider{
		defaultKey: strings.TrimSpace(cfg.SecretKey),
		dryRun:     cfg.DryRun,
		backends:   cfg.Backends,
		velocity:   cfg.Velocity,
		logger:     cfg.Logger,
	}
}

// CreateLink returns a payment link for the booking's payable amount.
func (p *StripeLinkProvider) CreateLink(ctx context.Context, req LinkRequest) (Link, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_link")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("tourbot.company_id", req.CompanyID),
		attribute.Int64("tourbot.booking_id", req.BookingID),
		attribute.Int64("tourbot.amount_minor", req.Amount),
	)

	if req.BookingID <= 0 {
		return Link{}, fmt.Errorf("payments: booking id required")
	}
	if req.Amount <= 0 {
		return Link{}, fmt.Errorf("payments: amount must be positive, got %d", req.Amount)
	}
	if !p.velocity.Allow(ctx, req.CompanyID, req.BookingID) {
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
		return Link{}, ErrLinkLimitExceeded
	}

	if p.dryRun {
		id := fmt.Sprintf("plink_dryrun_%d_%d", req.BookingID, req.Amount)
		p.logger.Info("stripe dry run: skipping payment link creation",
			"company_id", req.CompanyID, "booking_id", req.BookingID, "amount", req.Amount)
		return Link{ID: id, URL: "https://checkout.stripe.com/dry-run/" + id}, nil
	}

	key := strings.TrimSpace(req.SecretKey)
	if key == "" {
		key = p.defaultKey
	}
	if key == "" {
		return Link{}, fmt.Errorf("payments: no stripe secret key for company %d", req.CompanyID)
	}
	sc := client.New(key, p.backends)

	name := strings.TrimSpace(req.PackageName)
	if name == "" {
		name = "Tour"
	}
	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(strings.ToLower(defaultString(req.Currency, "aed"))),
		UnitAmount: stripe.Int64(req.Amount),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(name + " Tour Booking"),
		},
	}
	priceParams.Context = ctx
	price, err := sc.Prices.New(priceParams)
	if err != nil {
		return Link{}, fmt.Errorf("payments: stripe create price: %w", err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
	}
	linkParams.Context = ctx
	linkParams.AddMetadata("company_id", strconv.FormatInt(req.CompanyID, 10))
	linkParams.AddMetadata("booking_id", strconv.FormatInt(req.BookingID, 10))
	linkParams.AddMetadata("chat_session_id", req.ChatSessionID)
	linkParams.AddMetadata("phone", req.Phone)

	link, err := sc.PaymentLinks.New(linkParams)
	if err != nil {
		return Link{}, fmt.Errorf("payments: stripe create payment link: %w", err)
	}
	if link.URL == "" {
		return Link{}, fmt.Errorf("payments: stripe response missing payment link url")
	}
	return Link{ID: link.ID, URL: link.URL}, nil
}

// Settle lifts the link limit once a booking is paid.
func (p *StripeLinkProvider) Settle(ctx context.Context, companyID, bookingID int64) error {
	return p.velocity.Reset(ctx, companyID, bookingID)
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
