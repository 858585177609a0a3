// Package conversation runs the WhatsApp booking dialogue: a per-guest state
// machine persisted in Postgres, fed by a job queue, that ends in a booking and
// a Stripe payment link.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-tour-booking/internal/bookings"
	"github.com/wolfman30/whatsapp-tour-booking/internal/catalog"
	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	"github.com/wolfman30/whatsapp-tour-booking/internal/fleet"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
	"github.com/wolfman30/whatsapp-tour-booking/internal/notify"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/internal/payments"
	"github.com/wolfman30/whatsapp-tour-booking/internal/phone"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

var conversationTracer = otel.Tracer("tourbot.internal.conversation")

const (
	tryAgainText = "Sorry, something went wrong on our side. Please try again in a moment."
	resetText    = "⚠️ Sorry, that selection is no longer available. Let's continue from here."
)

// CompanyLookup resolves a tenant by id.
type CompanyLookup interface {
	ByID(ctx context.Context, id int64) (company.Company, error)
}

// Catalog lists what a company sells.
type Catalog interface {
	Cities(ctx context.Context, companyID int64) ([]string, error)
	PackagesByCity(ctx context.Context, companyID int64, city string) ([]catalog.Package, error)
	Package(ctx context.Context, companyID, packageID int64) (catalog.Package, error)
}

// Availability returns the vehicles and drivers free on a date.
type Availability interface {
	Available(ctx context.Context, companyID int64, date time.Time, excludeBookingID *int64) (fleet.Pool, error)
}

// BookingService persists bookings and the edits allowed after confirmation.
type BookingService interface {
	Finalize(ctx context.Context, req bookings.Request) (bookings.Booking, error)
	Get(ctx context.Context, companyID, bookingID int64) (bookings.Booking, error)
	UpdateTravelTime(ctx context.Context, companyID, bookingID int64, travelTime string) error
	UpdateCustomerName(ctx context.Context, companyID, customerID int64, name string) error
	UpdateCustomerPhone(ctx context.Context, companyID, customerID int64, num phone.Number) error
	RecordPayment(ctx context.Context, companyID, bookingID int64, providerRef string, paidAt time.Time) (bool, error)
}

// PaymentLinks creates hosted payment pages.
type PaymentLinks interface {
	CreateLink(ctx context.Context, req payments.LinkRequest) (payments.Link, error)
	// Settle releases per-booking link limits once the booking is paid.
	Settle(ctx context.Context, companyID, bookingID int64) error
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Sessions  SessionStore
	Locker    Locker
	Companies CompanyLookup
	Catalog   Catalog
	Fleet     Availability
	Bookings  BookingService
	Payments  PaymentLinks
	Extractor nlu.Extractor
	Generator nlu.Generator
	Metrics   *metrics.ConversationMetrics
	Logger    *logging.Logger

	DefaultTimezone string
	DefaultCurrency string
	// Now defaults to time.Now.
	Now func() time.Time
}

type stepFunc func(ctx context.Context, t *turn) ([]messaging.Message, error)

// Engine applies one guest message at a time to that guest's session.
type Engine struct {
	sessions  SessionStore
	locker    Locker
	companies CompanyLookup
	catalog   Catalog
	fleet     Availability
	bookings  BookingService
	payments  PaymentLinks
	extractor nlu.Extractor
	generator nlu.Generator
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger

	defaultTZ       string
	defaultCurrency string
	now             func() time.Time

	steps map[State]stepFunc
}

// NewEngine builds an engine from cfg. Sessions, Companies, Catalog, Fleet,
// Bookings and Payments are required; the rest fall back to in-process
// defaults (local locks, rule extraction, template replies).
func NewEngine(cfg EngineConfig) *Engine {
	switch {
	case cfg.Sessions == nil:
		panic("conversation: session store required")
	case cfg.Companies == nil:
		panic("conversation: company lookup required")
	case cfg.Catalog == nil:
		panic("conversation: catalog required")
	case cfg.Fleet == nil:
		panic("conversation: availability resolver required")
	case cfg.Bookings == nil:
		panic("conversation: booking service required")
	case cfg.Payments == nil:
		panic("conversation: payment link provider required")
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = nlu.RuleExtractor{}
	}
	if cfg.Generator == nil {
		cfg.Generator = nlu.NewTemplateGenerator()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "AED"
	}

	e := &Engine{
		sessions:        cfg.Sessions,
		locker:          cfg.Locker,
		companies:       cfg.Companies,
		catalog:         cfg.Catalog,
		fleet:           cfg.Fleet,
		bookings:        cfg.Bookings,
		payments:        cfg.Payments,
		extractor:       cfg.Extractor,
		generator:       cfg.Generator,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		defaultTZ:       cfg.DefaultTimezone,
		defaultCurrency: strings.ToUpper(cfg.DefaultCurrency),
		now:             cfg.Now,
	}
	e.steps = map[State]stepFunc{
		StateAskGuestName:      e.stepAskGuestName,
		StateGreeting:          e.stepGreeting,
		StateDone:              e.stepGreeting,
		StateCityList:          e.stepCityList,
		StateCitySelect:        e.stepCitySelect,
		StatePackageList:       e.stepPackageList,
		StatePackageDetail:     e.stepPackageDetail,
		StateAskTravelDate:     e.stepTravelDate,
		StateAskCustomDate:     e.stepCustomDate,
		StateAskTravelTime:     e.stepTravelTime,
		StateAskPax:            e.stepPax,
		StateAskVehicle:        e.stepVehicle,
		StateAskPickupLocation: e.stepPickup,
		StateAskTransportType:  e.stepTransport,
		StateAskPaymentType:    e.stepPaymentType,
		StateWaitingForPayment: e.stepWaitingForPayment,
		StateConfirmed:         e.stepConfirmed,
		StateDetailsUpdate:     e.stepDetailsUpdate,
	}
	return e
}

// turn is the context a step handler works with. sess is a working copy.
type turn struct {
	sess        *Session
	company     company.Company
	input       string
	interactive bool
	now         time.Time
}

func (t *turn) loc() *time.Location { return t.now.Location() }

func (t *turn) today() time.Time { return startOfDay(t.now) }

func (t *turn) currency(fallback string) string {
	if c := t.sess.Data.Currency(""); c != "" {
		return strings.ToUpper(c)
	}
	if c := strings.TrimSpace(t.company.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return fallback
}

func (e *Engine) newTurn(co company.Company, sess *Session, text string, interactive bool) *turn {
	return &turn{
		sess:        sess,
		company:     co,
		input:       strings.TrimSpace(text),
		interactive: interactive,
		now:         e.now().In(co.Location(e.defaultTZ)),
	}
}

// Handle applies one inbound message and returns the replies to send. The
// session is persisted before Handle returns; an error means nothing should be
// sent except a generic fallback.
func (e *Engine) Handle(ctx context.Context, in messaging.Inbound) ([]messaging.Message, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.handle")
	defer span.End()
	started := time.Now()

	from := phone.Sanitize(in.From)
	if in.CompanyID <= 0 || from == "" {
		return nil, fmt.Errorf("conversation: inbound message missing company or sender")
	}
	span.SetAttributes(attribute.Int64("tourbot.company_id", in.CompanyID))

	unlock, err := e.locker.Lock(ctx, sessionLockKey(in.CompanyID, from))
	if err != nil {
		return nil, fmt.Errorf("conversation: lock session: %w", err)
	}
	defer unlock()

	co, err := e.companies.ByID(ctx, in.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load company %d: %w", in.CompanyID, err)
	}
	baseline, err := e.sessions.Current(ctx, in.CompanyID, from)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tourbot.session_id", baseline.ID.String()),
		attribute.String("tourbot.state", string(baseline.State)),
	)

	t := e.newTurn(co, baseline.Clone(), in.Text, in.Interactive)
	replies, outcome, err := e.run(ctx, t, baseline)
	span.SetAttributes(attribute.String("tourbot.outcome", outcome))
	e.metrics.ObserveStep(string(baseline.State), outcome, time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.logger.Debug("conversation turn handled",
		"session_id", baseline.ID, "from_state", baseline.State, "to_state", t.sess.State, "outcome", outcome)
	return replies, nil
}

func (e *Engine) run(ctx context.Context, t *turn, baseline *Session) ([]messaging.Message, string, error) {
	var (
		replies []messaging.Message
		err     error
	)
	if err = t.sess.Data.Validate(t.sess.State); err == nil {
		replies, err = e.dispatch(ctx, t)
	}
	if err == nil {
		if err := e.sessions.Save(ctx, t.sess); err != nil {
			return nil, "store_error", err
		}
		return replies, "ok", nil
	}

	var (
		uie   *UserInputError
		ext   *ExternalServiceError
		integ *DataIntegrityError
	)
	switch {
	case errors.As(err, &uie):
		if len(uie.Replies) == 0 {
			return []messaging.Message{messaging.Text("Please choose a valid option.")}, "invalid_input", nil
		}
		return uie.Replies, "invalid_input", nil
	case errors.As(err, &ext):
		e.logger.Warn("external service failed during turn",
			"session_id", baseline.ID, "state", baseline.State, "service", ext.Service, "error", ext.Err)
		return []messaging.Message{messaging.Text(tryAgainText)}, "external_error", nil
	case errors.As(err, &integ):
		replies, err := e.recoverSession(ctx, t, baseline, integ)
		return replies, "reset", err
	default:
		return nil, "error", err
	}
}

// dispatch answers questions asked mid-flow and hands everything else, booking
// requests included, to the current state's step.
func (e *Engine) dispatch(ctx context.Context, t *turn) ([]messaging.Message, error) {
	if e.intent(ctx, t) == nlu.IntentAskQuestion {
		return e.answerQuestion(ctx, t)
	}
	step, ok := e.steps[t.sess.State]
	if !ok {
		return nil, &DataIntegrityError{ResetTo: StateCityList, Reason: fmt.Sprintf("%v %q", ErrUnsupportedState, t.sess.State)}
	}
	return step(ctx, t)
}

// intent classifies free text. A failed classification counts as no intent.
func (e *Engine) intent(ctx context.Context, t *turn) string {
	if t.interactive || t.input == "" || !t.sess.State.AnswersQuestions() {
		return ""
	}
	fields, err := e.extractor.Extract(ctx, t.input, nlu.SchemaIntent)
	if err != nil {
		e.logger.Warn("intent detection failed", "session_id", t.sess.ID, "state", t.sess.State, "error", err)
		return ""
	}
	intent, _ := fields.Get(nlu.FieldIntent)
	return intent
}

// answerQuestion replies to a FAQ and leaves the session where it was.
func (e *Engine) answerQuestion(ctx context.Context, t *turn) ([]messaging.Message, error) {
	vars := map[string]any{"Company": t.company.Name, "Package": "", "Price": ""}
	if p := t.sess.Data.Package; p != nil {
		vars["Package"] = p.Title
		vars["Price"] = bookings.Format(p.Price, t.currency(e.defaultCurrency))
	}
	text, err := e.phrase(ctx, t, nlu.StyleFAQ, vars)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("answered guest question", "session_id", t.sess.ID, "state", t.sess.State)
	return []messaging.Message{messaging.Text(text)}, nil
}

// recoverSession rewinds the stored session to a safe state and re-prompts from there.
func (e *Engine) recoverSession(ctx context.Context, t *turn, baseline *Session, integ *DataIntegrityError) ([]messaging.Message, error) {
	e.logger.Warn("resetting conversation session",
		"session_id", baseline.ID, "state", baseline.State, "reset_to", integ.ResetTo, "reason", integ.Reason)

	sess := baseline.Clone()
	sess.Data.resetTo(integ.ResetTo)
	sess.State = integ.ResetTo
	rt := *t
	rt.sess = sess

	var (
		replies []messaging.Message
		err     error
	)
	if integ.ResetTo == StatePackageList {
		replies, err = e.showPackages(ctx, &rt, sess.Data.City, resetText)
	} else {
		replies, err = e.showCities(ctx, &rt, resetText)
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		replies, err = []messaging.Message{messaging.Text(tryAgainText)}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return replies, nil
}

// Outbound is a message the engine initiates outside a guest turn.
type Outbound struct {
	CompanyID int64
	To        string
	Replies   []messaging.Message
	// Paid is set the first time a booking is recorded as paid.
	Paid *notify.BookingPaid
}

// ApplyPayment records a verified payment outcome and moves the guest's session on.
// Repeated successes for the same booking produce no messages.
func (e *Engine) ApplyPayment(ctx context.Context, o payments.Outcome) (Outbound, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.apply_payment")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("tourbot.company_id", o.CompanyID),
		attribute.Int64("tourbot.booking_id", o.BookingID),
		attribute.Bool("tourbot.payment_succeeded", o.Succeeded),
	)

	sess, err := e.paymentSession(ctx, o)
	if err != nil {
		return Outbound{}, err
	}
	out := Outbound{CompanyID: o.CompanyID}
	if sess != nil {
		out.To = sess.Phone
		unlock, err := e.locker.Lock(ctx, sessionLockKey(sess.CompanyID, sess.Phone))
		if err != nil {
			return Outbound{}, fmt.Errorf("conversation: lock session: %w", err)
		}
		defer unlock()
		// Reload under the lock; the guest may have moved on meanwhile.
		if sess, err = e.sessions.Get(ctx, sess.ID); err != nil {
			return Outbound{}, err
		}
	}
	matches := sess != nil && sess.Data.BookingID != nil && *sess.Data.BookingID == o.BookingID

	co, err := e.companies.ByID(ctx, o.CompanyID)
	if err != nil {
		return Outbound{}, fmt.Errorf("conversation: load company %d: %w", o.CompanyID, err)
	}

	if !o.Succeeded {
		if !matches || (sess.State != StateWaitingForPayment && sess.State != StateAskPaymentType) {
			e.logger.Info("payment failure ignored", "booking_id", o.BookingID, "event_id", o.EventID)
			return out, nil
		}
		sess.State = StateWaitingForPayment
		if err := e.sessions.Save(ctx, sess); err != nil {
			return Outbound{}, err
		}
		out.Replies = []messaging.Message{paymentFailedMessage(o.BookingID)}
		return out, nil
	}

	paidAt := o.OccurredAt
	if paidAt.IsZero() {
		paidAt = e.now()
	}
	recorded, err := e.bookings.RecordPayment(ctx, o.CompanyID, o.BookingID, o.Ref, paidAt)
	if err != nil {
		return Outbound{}, err
	}
	if !recorded {
		e.logger.Info("duplicate payment success ignored", "booking_id", o.BookingID, "event_id", o.EventID)
		return Outbound{}, nil
	}
	if err := e.payments.Settle(ctx, o.CompanyID, o.BookingID); err != nil {
		e.logger.Warn("releasing payment link limit failed", "booking_id", o.BookingID, "error", err)
	}
	booking, err := e.bookings.Get(ctx, o.CompanyID, o.BookingID)
	if err != nil {
		return Outbound{}, err
	}
	out.Paid = paidNotification(co, booking, sess, o.Ref, paidAt)
	e.logger.Info("booking paid", "company_id", o.CompanyID, "booking_id", o.BookingID, "ref", o.Ref)

	if !matches || (sess.State != StateWaitingForPayment && sess.State != StateAskPaymentType) {
		return out, nil
	}
	t := e.newTurn(co, sess, "", false)
	summary, err := e.summary(ctx, t, booking, "✅ Payment received! Your booking is confirmed.")
	if err != nil {
		return Outbound{}, err
	}
	sess.State = StateConfirmed
	if err := e.sessions.Save(ctx, sess); err != nil {
		return Outbound{}, err
	}
	out.Replies = []messaging.Message{summary}
	return out, nil
}

// paymentSession finds the session that asked for the payment link.
func (e *Engine) paymentSession(ctx context.Context, o payments.Outcome) (*Session, error) {
	id, err := uuid.Parse(strings.TrimSpace(o.ChatSessionID))
	if err != nil {
		e.logger.Warn("payment outcome has no session", "booking_id", o.BookingID, "event_id", o.EventID)
		return nil, nil
	}
	sess, err := e.sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		e.logger.Warn("payment outcome session not found", "session_id", id, "booking_id", o.BookingID)
		return nil, nil
	}
	return sess, err
}

func paidNotification(co company.Company, b bookings.Booking, sess *Session, ref string, paidAt time.Time) *notify.BookingPaid {
	pkg := fmt.Sprintf("Package #%d", b.PackageID)
	if sess != nil && sess.Data.Package != nil && sess.Data.Package.ID == b.PackageID {
		pkg = sess.Data.Package.Title
	}
	return &notify.BookingPaid{
		CompanyName: co.Name,
		To:          co.NotificationEmail,
		BookingID:   b.ID,
		GuestName:   b.Customer.Name,
		Phone:       phone.FromParts(b.Customer.CountryCode, b.Customer.Phone).E164(),
		Package:     pkg,
		TravelDate:  b.TravelDate.Format(displayDateLayout),
		TravelTime:  b.TravelTime,
		Pickup:      b.PickupLocation,
		Adults:      b.Adults,
		Kids:        b.Kids,
		Paid:        bookings.Format(b.TotalAmount-b.RemainingAmount, b.Currency),
		Remaining:   bookings.Format(b.RemainingAmount, b.Currency),
		PaymentRef:  ref,
		PaidAt:      paidAt,
	}
}
