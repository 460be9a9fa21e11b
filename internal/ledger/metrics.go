package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"op", "outcome"},
	)
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	AdPlayback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_playback_total",
			Help: "Ad playback attempts by result",
		},
		[]string{"ad_type", "result"},
	)
	WithdrawalsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_resolved_total",
			Help: "Resolved withdrawals by final status",
		},
		[]string{"status"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_active_sessions",
			Help: "Sessions held in memory",
		},
	)
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(AdPlayback)
	prometheus.MustRegister(WithdrawalsResolved)
	prometheus.MustRegister(ActiveSessions)
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	OperationsTotal.WithLabelValues(op, outcome).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
