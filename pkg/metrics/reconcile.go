package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const reconcileSubsystem = "billing"

// ReconcileMetrics records webhook reconciliation results. A nil
// *ReconcileMetrics is valid and records nothing.
type ReconcileMetrics struct {
	outcome  *prometheus.CounterVec
	orphan   prometheus.Counter
	duration *prometheus.HistogramVec
}

func NewReconcileMetrics(reg prometheus.Registerer) (*ReconcileMetrics, error) {
	m := &ReconcileMetrics{
		outcome:  NewMetric(MetricsReconcileOutcome, reconcileSubsystem).(*prometheus.CounterVec),
		orphan:   NewMetric(MetricsRenewOrphan, reconcileSubsystem).(prometheus.Counter),
		duration: NewMetric(MetricsBusinessProcess, reconcileSubsystem).(*prometheus.HistogramVec),
	}
	for _, c := range []prometheus.Collector{m.outcome, m.orphan, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ReconcileMetrics) ObserveOutcome(eventType, outcome string) {
	if m == nil {
		return
	}
	m.outcome.WithLabelValues(eventType, outcome).Inc()
}

// IncRenewOrphan counts a renewal that found no local subscription.
func (m *ReconcileMetrics) IncRenewOrphan() {
	if m == nil {
		return
	}
	m.orphan.Inc()
}

func (m *ReconcileMetrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues("reconcile", operation).Observe(MillisecondsSince(start))
}

var Module = fx.Options(
	fx.Provide(func() (*ReconcileMetrics, error) {
		return NewReconcileMetrics(prometheus.DefaultRegisterer)
	}),
)
