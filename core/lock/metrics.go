package lock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records lock outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	acquires *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	rejects  *prometheus.CounterVec
	wait     *prometheus.HistogramVec
	hold     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "lock",
			Name:      "acquires_total",
			Help:      "Successful resource lock acquisitions by caller class.",
		}, []string{"class"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "lock",
			Name:      "timeouts_total",
			Help:      "Resource lock waits that timed out by caller class.",
		}, []string{"class"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "lock",
			Name:      "busy_total",
			Help:      "Immediate rejections because the same class held the lock.",
		}, []string{"class"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "localcircle",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting before the lock was acquired.",
			Buckets:   []float64{0, .1, .2, .5, 1, 2},
		}, []string{"class"}),
		hold: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "localcircle",
			Subsystem: "lock",
			Name:      "hold_seconds",
			Help:      "Time the lock was held per acquisition.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"class"}),
	}
	reg.MustRegister(m.acquires, m.timeouts, m.rejects, m.wait, m.hold)
	return m
}

func (m *Metrics) acquired(p Priority, waited time.Duration) {
	if m == nil {
		return
	}
	m.acquires.WithLabelValues(p.String()).Inc()
	m.wait.WithLabelValues(p.String()).Observe(waited.Seconds())
}

func (m *Metrics) timeout(p Priority) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) busy(p Priority) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) held(p Priority, d time.Duration) {
	if m == nil {
		return
	}
	m.hold.WithLabelValues(p.String()).Observe(d.Seconds())
}
