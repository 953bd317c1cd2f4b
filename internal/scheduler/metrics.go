// ABOUTME: Prometheus instrumentation for the playback scheduler
// ABOUTME: Counts requests, plays, failures and drops, and tracks queue depth
package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the scheduler collectors
type Metrics struct {
	Requests      *prometheus.CounterVec
	Plays         *prometheus.CounterVec
	PlayErrors    *prometheus.CounterVec
	Dropped       *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	EventsDropped prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when non-nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuebox_requests_total",
			Help: "Playback requests received, by kind (named or next).",
		}, []string{"kind"}),
		Plays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuebox_plays_total",
			Help: "Clips handed to a backend.",
		}, []string{"backend"}),
		PlayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuebox_play_errors_total",
			Help: "Backend errors while starting a clip.",
		}, []string{"backend"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuebox_requests_dropped_total",
			Help: "Requests dropped before playback, by reason.",
		}, []string{"reason"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cuebox_queue_depth",
			Help: "Requests waiting for the busy window to close.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuebox_events_dropped_total",
			Help: "Notifications discarded because the event buffer was full.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Plays, m.PlayErrors, m.Dropped, m.QueueDepth, m.EventsDropped)
	}
	return m
}
