package sos

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Hooks observes Service activity. Nil fields are skipped.
type Hooks struct {
	OnAnalyze       func(outcome string, duration time.Duration)
	OnNotify        func(delivered bool)
	OnAlertPersist  func(err error)
	OnContactUpdate func(result string)
}

func (h Hooks) analyzed(outcome string, d time.Duration) {
	if h.OnAnalyze != nil {
		h.OnAnalyze(outcome, d)
	}
}

func (h Hooks) notified(delivered bool) {
	if h.OnNotify != nil {
		h.OnNotify(delivered)
	}
}

func (h Hooks) persisted(err error) {
	if h.OnAlertPersist != nil {
		h.OnAlertPersist(err)
	}
}

func (h Hooks) contactUpdated(result string) {
	if h.OnContactUpdate != nil {
		h.OnContactUpdate(result)
	}
}

// Metrics holds Prometheus metrics for the sos subsystem.
type Metrics struct {
	AnalysesTotal       *prometheus.CounterVec
	AnalyzeDuration     *prometheus.HistogramVec
	NotificationsTotal  *prometheus.CounterVec
	AlertsTotal         *prometheus.CounterVec
	ContactUpdatesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns sos metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitallink_analyses_total",
			Help: "Total vitals analyses by outcome.",
		}, []string{"outcome"}),
		AnalyzeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitallink_analyze_duration_seconds",
			Help:    "Duration of vitals analyses in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitallink_notifications_total",
			Help: "Total contact notifications by result.",
		}, []string{"result"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitallink_alerts_persisted_total",
			Help: "Total alert inserts by result.",
		}, []string{"result"}),
		ContactUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitallink_contact_updates_total",
			Help: "Total contact updates by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalyzeDuration,
		m.NotificationsTotal,
		m.AlertsTotal,
		m.ContactUpdatesTotal,
	)

	return m
}

// Hooks returns Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnAnalyze: func(outcome string, d time.Duration) {
			m.AnalysesTotal.WithLabelValues(outcome).Inc()
			m.AnalyzeDuration.WithLabelValues(outcome).Observe(d.Seconds())
		},
		OnNotify: func(delivered bool) {
			result := "delivered"
			if !delivered {
				result = "failed"
			}
			m.NotificationsTotal.WithLabelValues(result).Inc()
		},
		OnAlertPersist: func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.AlertsTotal.WithLabelValues(result).Inc()
		},
		OnContactUpdate: func(result string) {
			m.ContactUpdatesTotal.WithLabelValues(result).Inc()
		},
	}
}
