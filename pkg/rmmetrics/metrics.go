package rmmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ObjectsLive tracks live object counts per component registry.
	ObjectsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpirm_objects_live",
			Help: "Live objects currently held by a component's registry",
		},
		[]string{"component"},
	)

	PDsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpirm_pds_live",
			Help: "Live process directories",
		},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpirm_dispatch_total",
			Help: "Total messages dispatched by cap_type and error code",
		},
		[]string{"cap_type", "error_code"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpirm_dispatch_duration_seconds",
			Help:    "Dispatch handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cap_type"},
	)

	CascadeCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpirm_cascade_cycles_total",
			Help: "Total cascade terminate cycles run (including sweep re-entries)",
		},
	)

	CascadeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpirm_cascade_duration_seconds",
			Help:    "Duration of one terminate() cascade, including its sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	PDTerminationMissing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpirm_pd_termination_n_missing",
			Help: "Outstanding critical-work acks gating a deferred terminate reply",
		},
	)

	ModelExtractionMissing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpirm_model_extraction_n_missing",
			Help: "Outstanding subgraph replies gating a deferred dump reply",
		},
	)

	WorkQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpirm_work_queue_depth",
			Help: "Pending work items per PD per work kind",
		},
		[]string{"pd_id", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		ObjectsLive,
		PDsLive,
		DispatchTotal,
		DispatchDuration,
		CascadeCyclesTotal,
		CascadeDuration,
		PDTerminationMissing,
		ModelExtractionMissing,
		WorkQueueDepth,
	)
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format, for mounting under /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for later observation into a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a histogram vec
// with the given label values.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time without recording it.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
