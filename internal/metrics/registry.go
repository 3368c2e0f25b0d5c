package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry encapsulates the Prometheus view of the pipeline and provides a
// clean interface for recording metrics without global state. The in-process
// stats structs stay authoritative for the periodic report lines; this
// registry mirrors the same events for scraping.
type Registry struct {
	registry *prometheus.Registry

	// Producer metrics
	sendTotal     *prometheus.CounterVec
	ackLatency    *prometheus.HistogramVec
	bufferRetries *prometheus.CounterVec

	// Consumer metrics
	recordsTotal *prometheus.CounterVec
	e2eLatency   *prometheus.HistogramVec
	commitTotal  *prometheus.CounterVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		sendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderstream_producer_send_total",
				Help: "Total number of delivery outcomes",
			},
			[]string{"topic", "status"}, // status: success, error
		),

		ackLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderstream_producer_ack_latency_seconds",
				Help:    "Time between send and broker acknowledgment",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"topic"},
		),

		bufferRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderstream_producer_buffer_retries_total",
				Help: "Total number of sends deferred by a full local buffer",
			},
			[]string{"topic"},
		),

		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderstream_consumer_records_total",
				Help: "Total number of consumed record outcomes",
			},
			[]string{"topic", "status"}, // status: processed, decode_error, poll_error
		),

		e2eLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderstream_consumer_e2e_latency_seconds",
				Help:    "End-to-end latency from event creation to consumption",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"topic"},
		),

		commitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderstream_consumer_commit_total",
				Help: "Total number of synchronous offset commits",
			},
			[]string{"topic", "status"}, // status: success, error
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderstream_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"component", "start_time"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orderstream_start_time_seconds",
				Help: "Unix timestamp when the process started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.sendTotal,
		r.ackLatency,
		r.bufferRetries,
		r.recordsTotal,
		r.e2eLatency,
		r.commitTotal,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// RecordAck records one resolved delivery promise.
func (r *Registry) RecordAck(topic string, latency time.Duration, err error) {
	if err != nil {
		r.sendTotal.WithLabelValues(topic, "error").Inc()
		return
	}
	r.sendTotal.WithLabelValues(topic, "success").Inc()
	r.ackLatency.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordBufferRetry records one send deferred by local buffer exhaustion.
func (r *Registry) RecordBufferRetry(topic string) {
	r.bufferRetries.WithLabelValues(topic).Inc()
}

// RecordProcessed records one successfully decoded record and, when the
// record carried an origination timestamp, its end-to-end latency.
func (r *Registry) RecordProcessed(topic string, latency time.Duration, hasLatency bool) {
	r.recordsTotal.WithLabelValues(topic, "processed").Inc()
	if hasLatency {
		r.e2eLatency.WithLabelValues(topic).Observe(latency.Seconds())
	}
}

// RecordDecodeError records one malformed record.
func (r *Registry) RecordDecodeError(topic string) {
	r.recordsTotal.WithLabelValues(topic, "decode_error").Inc()
}

// RecordPollError records one broker-level fetch error.
func (r *Registry) RecordPollError(topic string) {
	r.recordsTotal.WithLabelValues(topic, "poll_error").Inc()
}

// RecordCommit records one synchronous offset commit attempt.
func (r *Registry) RecordCommit(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.commitTotal.WithLabelValues(topic, status).Inc()
}

// SetSystemInfo labels the running component for scrape identification.
func (r *Registry) SetSystemInfo(component, startTime string) {
	r.systemInfo.WithLabelValues(component, startTime).Set(1)
}
