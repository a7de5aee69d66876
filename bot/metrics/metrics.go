// Package metrics exposes conversation counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deliabot"

// Recorder holds the bot's Prometheus collectors.
type Recorder struct {
	registry prometheus.Registerer

	transitions    *prometheus.CounterVec
	unmatched      *prometheus.CounterVec
	sessionsStart  prometheus.Counter
	sessionsEnd    prometheus.Counter
	factsRecorded  prometheus.Counter
	handleDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed state transitions by source and target state",
		}, []string{"from", "to"}),
		unmatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_total",
			Help:      "Inbound messages no transition accepted, by state",
		}, []string{"state"}),
		sessionsStart: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Conversations entered through /start",
		}),
		sessionsEnd: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Conversations ended by the user",
		}),
		factsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_recorded_total",
			Help:      "Category values stored in a fact store",
		}),
		handleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_seconds",
			Help:      "Time spent computing and committing one transition",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveTransition records a committed transition.
func (r *Recorder) ObserveTransition(from, to string, took time.Duration) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
	r.handleDuration.Observe(took.Seconds())
}

// IncUnmatched records input that no transition accepted.
func (r *Recorder) IncUnmatched(state string) {
	if r == nil {
		return
	}
	r.unmatched.WithLabelValues(state).Inc()
}

// IncSessionStarted records a /start.
func (r *Recorder) IncSessionStarted() {
	if r == nil {
		return
	}
	r.sessionsStart.Inc()
}

// IncSessionEnded records an exit.
func (r *Recorder) IncSessionEnded() {
	if r == nil {
		return
	}
	r.sessionsEnd.Inc()
}

// IncFactRecorded records a stored category value.
func (r *Recorder) IncFactRecorded() {
	if r == nil {
		return
	}
	r.factsRecorded.Inc()
}

// RegisterSenderErrors exposes the sender's failure count as a counter.
func (r *Recorder) RegisterSenderErrors(count func() uint64) error {
	if r == nil || count == nil {
		return nil
	}
	return r.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sender_errors_total",
		Help:      "Outbound Telegram sends that failed after retries",
	}, func() float64 { return float64(count()) }))
}
