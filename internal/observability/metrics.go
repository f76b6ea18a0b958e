package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records ledger operation outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rate       prometheus.Gauge
	jobs       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of committed and rejected ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "oracle_rate",
			Help:      "Last exchange rate observed by the ledger.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "outbox_jobs_total",
			Help:      "Outbox jobs processed by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.rate, m.jobs)
	}
	return m
}

// ErrorCoder lets domain errors name their outcome label.
type ErrorCoder interface {
	Code() string
}

func (m *Metrics) Observe(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SetRate(v float64) {
	if m == nil {
		return
	}
	m.rate.Set(v)
}

func (m *Metrics) JobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var coder ErrorCoder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return "error"
}
