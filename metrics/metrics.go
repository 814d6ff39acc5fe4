package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ordertcc"

// Metrics 协调器的监控指标. nil 的 *Metrics 可以安全调用，不做任何上报
type Metrics struct {
	Outcomes       *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	LockHoldTime   *prometheus.HistogramVec
	WalletFailures *prometheus.CounterVec
	SweptOrders    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_outcomes_total",
			Help:      "Number of try/confirm/cancel calls by outcome.",
		}, []string{"scene", "phase", "outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_errors_total",
			Help:      "Number of try/confirm/cancel calls that failed.",
		}, []string{"scene", "phase"}),
		LockHoldTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_hold_seconds",
			Help:      "Time a coordinator call holds its order lock.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scene", "phase"}),
		WalletFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_failures_total",
			Help:      "Wallet credit/debit calls that failed and need reconciliation.",
		}, []string{"direction"}),
		SweptOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_orders_total",
			Help:      "Expired pending orders cancelled by the sweeper.",
		}),
	}
}

// MustRegister 注册到指定的 registerer
func (m *Metrics) MustRegister(registerer prometheus.Registerer) *Metrics {
	registerer.MustRegister(m.Outcomes, m.Errors, m.LockHoldTime, m.WalletFailures, m.SweptOrders)
	return m
}

func (m *Metrics) ObserveOutcome(scene, phase, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(scene, phase, outcome).Inc()
}

func (m *Metrics) ObserveError(scene, phase string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(scene, phase).Inc()
}

func (m *Metrics) ObserveLockHold(scene, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.LockHoldTime.WithLabelValues(scene, phase).Observe(d.Seconds())
}

func (m *Metrics) ObserveWalletFailure(direction string) {
	if m == nil {
		return
	}
	m.WalletFailures.WithLabelValues(direction).Inc()
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.SweptOrders.Add(float64(n))
}
