package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
)

// TemplateUnknown labels messages whose template attribute is not configured.
const TemplateUnknown = "unknown"

// Recorder counts handled invocations. A nil Recorder records nothing.
type Recorder struct {
	events *prometheus.CounterVec
	emails *prometheus.CounterVec
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_events_total",
			Help: "Document change events handled, by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_messages_total",
			Help: "Email queue messages consumed, by template and outcome.",
		}, []string{"template", "outcome"}),
	}
	reg.MustRegister(r.events, r.emails)
	return r
}

// Event records one directory trigger invocation.
func (r *Recorder) Event(trigger string, err error) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(trigger, outcome(err)).Inc()
}

// Email records one consumed email message.
func (r *Recorder) Email(template, result string) {
	if r == nil {
		return
	}
	r.emails.WithLabelValues(template, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
