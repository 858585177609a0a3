package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for WhatsApp and Stripe webhooks and sends.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourbot",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound webhooks by source and outcome",
		}, []string{"source", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourbot",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tourbot",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(source, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

// ConversationMetrics covers the booking state machine and its side effects.
type ConversationMetrics struct {
	stepsTotal      *prometheus.CounterVec
	stepLatency     *prometheus.HistogramVec
	bookingsCreated *prometheus.CounterVec
	paymentLinks    *prometheus.CounterVec
	vehicleOptions  prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourbot",
			Subsystem: "conversation",
			Name:      "steps_total",
			Help:      "Conversation steps by state and outcome",
		}, []string{"state", "outcome"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tourbot",
			Subsystem: "conversation",
			Name:      "step_latency_seconds",
			Help:      "Latency of a conversation step including extractor and store calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourbot",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Bookings finalized by payment type",
		}, []string{"payment_type"}),
		paymentLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourbot",
			Subsystem: "payments",
			Name:      "links_total",
			Help:      "Payment link requests by status",
		}, []string{"status"}),
		vehicleOptions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tourbot",
			Subsystem: "fleet",
			Name:      "allocation_options",
			Help:      "Number of vehicle options offered per allocation",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepsTotal, m.stepLatency, m.bookingsCreated, m.paymentLinks, m.vehicleOptions)
	return m
}

func (m *ConversationMetrics) ObserveStep(state, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(state, outcome).Inc()
	m.stepLatency.WithLabelValues(state).Observe(seconds)
}

func (m *ConversationMetrics) ObserveBookingCreated(paymentType string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(paymentType).Inc()
}

func (m *ConversationMetrics) ObservePaymentLink(status string) {
	if m == nil {
		return
	}
	m.paymentLinks.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveVehicleOptions(n int) {
	if m == nil {
		return
	}
	m.vehicleOptions.Observe(float64(n))
}
