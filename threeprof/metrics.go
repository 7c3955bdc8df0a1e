package threeprof

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3jsLive/tasks/threeprof/result"
)

type campaignMetrics struct {
	sessions  *prometheus.CounterVec
	duration  prometheus.Histogram
	remaining prometheus.Gauge
}

func newCampaignMetrics(reg prometheus.Registerer) *campaignMetrics {
	m := &campaignMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threeprof",
			Subsystem: "campaign",
			Name:      "sessions_total",
			Help:      "Profiling sessions by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "threeprof",
			Subsystem: "campaign",
			Name:      "session_seconds",
			Help:      "Wall time of one profiling session.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threeprof",
			Subsystem: "campaign",
			Name:      "remaining_urls",
			Help:      "URLs of the current worklist not yet profiled.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.duration, m.remaining)
	}
	return m
}

func (m *campaignMetrics) observe(res *result.ProfilingResult, d time.Duration) {
	m.sessions.WithLabelValues(string(res.Status)).Inc()
	m.duration.Observe(d.Seconds())
	m.remaining.Dec()
}
