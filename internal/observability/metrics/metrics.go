package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolfman30/defense-intake/internal/intake"
)

// IntakeMetrics exposes counters/histograms for lead intake.
type IntakeMetrics struct {
	submissionsTotal *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defense",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Lead submissions by source and outcome",
		}, []string{"lead_source", "outcome"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defense",
			Subsystem: "intake",
			Name:      "conversion_events_total",
			Help:      "Conversion events such as generate_lead and phone_call",
		}, []string{"event", "lead_source"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "defense",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.eventsTotal, m.requestLatency)
	return m
}

// ObserveSubmission counts one server-side submission.
func (m *IntakeMetrics) ObserveSubmission(source, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(source, outcome).Inc()
}

// Track counts a conversion event.
func (m *IntakeMetrics) Track(_ context.Context, evt intake.Event) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(evt.Name, string(evt.LeadSource)).Inc()
}

func (m *IntakeMetrics) ObserveRequest(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(seconds)
}

var _ intake.Tracker = (*IntakeMetrics)(nil)
