// Package metrics holds the Prometheus instruments of the service.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coursegate"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	reconciliations *prometheus.CounterVec
	upserts         *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

// New registers all instruments on a dedicated registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Payment reconciliations by outcome.",
		}, []string{"outcome"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_upserts_total",
			Help:      "Entitlement upserts by result (created, existing, failed).",
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access gate decisions.",
		}, []string{"decision"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment provider webhook events by type and result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconciliations,
		m.upserts,
		m.decisions,
		m.webhooks,
	)
	return m
}

func (m *Metrics) ObserveReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEntitlementUpsert(result string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAccessDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
