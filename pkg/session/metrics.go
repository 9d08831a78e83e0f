package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks session coordination Prometheus metrics.
// All metrics use the sessiond_ prefix.
type Metrics struct {
	// SessionsCreated counts successful session creations.
	SessionsCreated prometheus.Counter

	// SessionsEnded counts explicit session ends.
	SessionsEnded prometheus.Counter

	// SessionsExpired counts sessions removed past their idle timeout,
	// labeled by which path noticed ("lazy" or "sweep").
	SessionsExpired *prometheus.CounterVec

	// LockTimeouts counts lock acquisitions that exhausted their budget.
	LockTimeouts prometheus.Counter

	// CapacityRejections counts creations refused by the per-user cap.
	CapacityRejections prometheus.Counter

	// SweepDuration tracks how long one full sweep takes.
	SweepDuration prometheus.Histogram
}

// NewMetrics creates and registers the session metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_created_total",
			Help: "Total sessions created",
		}),
		SessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_ended_total",
			Help: "Total sessions explicitly ended",
		}),
		SessionsExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessiond_sessions_expired_total",
				Help: "Total sessions removed past their idle timeout",
			},
			[]string{"path"}, // "lazy", "sweep"
		),
		LockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_lock_timeouts_total",
			Help: "Total lock acquisitions that exhausted their retry budget",
		}),
		CapacityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_capacity_rejections_total",
			Help: "Total session creations refused by the per-user cap",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessiond_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.SessionsCreated,
		m.SessionsEnded,
		m.SessionsExpired,
		m.LockTimeouts,
		m.CapacityRejections,
		m.SweepDuration,
	)
	return m
}
