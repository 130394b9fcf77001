// Package metrics records diagram viewer and renderer activity as Prometheus
// metrics. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsite"

// Recorder owns the registry and all collectors.
type Recorder struct {
	registry        *prom.Registry
	attachPasses    prom.Counter
	widgets         *prom.CounterVec
	d2Duration      *prom.HistogramVec
	d2Failures      prom.Counter
	snapshots       *prom.CounterVec
	snapshotLatency prom.Histogram
}

// New constructs a Recorder registered against reg, or a fresh registry when
// reg is nil.
func New(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		attachPasses: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attach_passes_total",
			Help:      "Rendered pages passed through the diagram viewer",
		}),
		widgets: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "widgets_attached_total",
			Help:      "Diagram widgets attached, by fence language",
		}, []string{"language"}),
		d2Duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "d2_render_duration_seconds",
			Help:      "Time spent producing d2 SVG, by cache result",
			Buckets:   prom.DefBuckets,
		}, []string{"cache"}),
		d2Failures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "d2_render_failures_total",
			Help:      "d2 diagrams that failed to compile",
		}),
		snapshots: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "PNG snapshot requests by outcome",
		}, []string{"result"}),
		snapshotLatency: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Rasterization time of PNG snapshots",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(r.attachPasses, r.widgets, r.d2Duration, r.d2Failures, r.snapshots, r.snapshotLatency)
	return r
}

// Handler serves the registry in the Prometheus exposition format. Response
// compression is left to the server middleware.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// ObserveAttach records one attach pass and the languages of its widgets.
func (r *Recorder) ObserveAttach(languages []string) {
	if r == nil {
		return
	}
	r.attachPasses.Inc()
	for _, lang := range languages {
		r.widgets.WithLabelValues(lang).Inc()
	}
}

// ObserveD2 records a d2 render attempt.
func (r *Recorder) ObserveD2(d time.Duration, cached bool, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.d2Failures.Inc()
		return
	}
	label := "miss"
	if cached {
		label = "hit"
	}
	r.d2Duration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveSnapshot records a PNG snapshot request. result is a short outcome
// label such as "ok", "not_found" or "client_rendered".
func (r *Recorder) ObserveSnapshot(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.snapshots.WithLabelValues(result).Inc()
	if result == "ok" {
		r.snapshotLatency.Observe(d.Seconds())
	}
}
