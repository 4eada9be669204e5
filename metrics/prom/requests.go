package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imgcache/executor"
	"github.com/IvanBrykalov/imgcache/pipeline"
)

// Requests implements executor.Metrics.
type Requests struct {
	total     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	coalesced prometheus.Counter
}

// NewRequests registers the request metrics under ns (subsystem "requests").
func NewRequests(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Requests {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Requests{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "requests",
			Name:        "total",
			Help:        "Finished requests by outcome and provenance",
			ConstLabels: constLabels,
		}, []string{"outcome", "from"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "requests",
			Name:        "duration_seconds",
			Help:        "Request latency by outcome",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 9),
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "requests",
			Name:        "coalesced_total",
			Help:        "Requests that joined a run already in flight",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(r.total, r.duration, r.coalesced)
	return r
}

// Observe implements executor.Metrics. Provenance is recorded for
// successes only; other outcomes use from="none".
func (r *Requests) Observe(o executor.Outcome, from pipeline.DataFrom, d time.Duration) {
	label := "none"
	if o == executor.Success {
		label = from.String()
	}
	r.total.WithLabelValues(o.String(), label).Inc()
	r.duration.WithLabelValues(o.String()).Observe(d.Seconds())
}

// Coalesced implements executor.Metrics.
func (r *Requests) Coalesced() { r.coalesced.Inc() }

var _ executor.Metrics = (*Requests)(nil)
