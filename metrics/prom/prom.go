// Package prom exports cache and request metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imgcache/cache"
)

// Adapter is the cache.Metrics sink of one loader tier. The tier name is
// the Prometheus subsystem, so memory, result and download series sit side
// by side under one namespace.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	entries   prometheus.Gauge
	sizeBytes prometheus.Gauge
}

// New registers the series of tier sub under ns with reg, or with the
// default registerer when reg is nil. constLabels may be nil.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Lookups served by this tier",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Lookups this tier could not serve",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries dropped from this tier, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "entries",
			Help:        "Images held by this tier",
			ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Bytes held by this tier (decoded pixels in memory, file bytes on disk)",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.entries, a.sizeBytes)
	return a
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict counts one dropped entry under its reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size publishes the tier's occupancy after each change.
func (a *Adapter) Size(entries int, bytes int64) {
	a.entries.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

var _ cache.Metrics = (*Adapter)(nil)

// Tiers holds the metrics of each cache tier of a loader. Disabled disk
// tiers are nil and register nothing, so caches fall back to NoopMetrics.
type Tiers struct {
	Memory   cache.Metrics
	Result   cache.Metrics
	Download cache.Metrics
}

// NewTiers registers the memory tier and, when enabled, the result and
// download tiers under ns.
func NewTiers(reg prometheus.Registerer, ns string, result, download bool) Tiers {
	t := Tiers{Memory: New(reg, ns, "memory", nil)}
	if result {
		t.Result = New(reg, ns, "result", nil)
	}
	if download {
		t.Download = New(reg, ns, "download", nil)
	}
	return t
}
