package metrics

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for webhook deliveries.
const (
	OutcomeProcessed       = "processed"
	OutcomeDuplicate       = "duplicate"
	OutcomeInFlight        = "in_flight"
	OutcomeRejected        = "rejected"
	OutcomeHandlerFailed   = "handler_failed"
	OutcomeIgnored         = "ignored"
	ResultOK               = "ok"
	ResultError            = "error"
	defaultServiceName     = "foxpay"
	defaultEnvironmentName = "unknown"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics holds the counters recorded by the webhook pipeline and the
// ledger client.
type Metrics struct {
	registry       *prometheus.Registry
	webhookEvents  *prometheus.CounterVec
	ledgerRequests *prometheus.CounterVec
	signals        *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(Config{})
	})
	return defaultMetrics
}

// New creates a metrics set on its own registry.
func New(cfg Config) *Metrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = defaultEnvironmentName
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "foxpay_webhook_events_total",
				Help:        "Webhook deliveries by event type and pipeline outcome.",
				ConstLabels: constLabels,
			},
			[]string{"type", "outcome"},
		),
		ledgerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "foxpay_ledger_requests_total",
				Help:        "Calls to the payment ledger by operation and result kind.",
				ConstLabels: constLabels,
			},
			[]string{"operation", "result"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "foxpay_fulfillment_signals_total",
				Help:        "Fulfillment signals emitted by kind.",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.webhookEvents,
		m.ledgerRequests,
		m.signals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// LedgerRequest records a ledger call. result is ResultOK or an error kind.
func (m *Metrics) LedgerRequest(operation, result string) {
	if m == nil {
		return
	}
	m.ledgerRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Signal(kind string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
