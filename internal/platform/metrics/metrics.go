package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	CustomersCreated  prometheus.Counter
	CustomersUpdated  prometheus.Counter
	OverridesRecorded *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OutboxPublished   prometheus.Counter
	OutboxFailed      prometheus.Counter
}

// New creates the application metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CustomersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashkiosk_customers_created_total",
			Help: "Total number of customers created",
		}),
		CustomersUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashkiosk_customers_updated_total",
			Help: "Total number of customer updates applied",
		}),
		OverridesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cashkiosk_compliance_overrides_total",
			Help: "Compliance override audit records written, by compliance type",
		}, []string{"compliance_type"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cashkiosk_customer_operation_duration_seconds",
			Help:    "Duration of customer service operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashkiosk_outbox_published_total",
			Help: "Outbox messages published to the broker",
		}),
		OutboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashkiosk_outbox_failed_total",
			Help: "Outbox publish attempts that failed",
		}),
	}
}

func (m *Metrics) IncrementCustomersCreated() {
	m.CustomersCreated.Inc()
}

func (m *Metrics) IncrementCustomersUpdated() {
	m.CustomersUpdated.Inc()
}

func (m *Metrics) IncrementOverrideRecorded(complianceType string) {
	m.OverridesRecorded.WithLabelValues(complianceType).Inc()
}

func (m *Metrics) ObserveOperationDuration(operation string, d time.Duration) {
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncrementOutboxPublished() {
	m.OutboxPublished.Inc()
}

func (m *Metrics) IncrementOutboxFailed() {
	m.OutboxFailed.Inc()
}
