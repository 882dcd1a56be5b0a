package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the pipeline and HTTP collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	readingsTotal  *prometheus.CounterVec
	salesTotal     *prometheus.CounterVec
	saleLitres     *prometheus.CounterVec
	ocrPolls       *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	ingestDuration prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstation_readings_ingested_total",
			Help: "Readings ingested, partitioned by source and derivation reason",
		}, []string{"source", "reason"}),
		salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstation_sales_derived_total",
			Help: "Sales derived from readings, partitioned by fuel type",
		}, []string{"fuel_type"}),
		saleLitres: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstation_sale_litres_total",
			Help: "Litres sold across derived sales, partitioned by fuel type",
		}, []string{"fuel_type"}),
		ocrPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelstation_ocr_polls_total",
			Help: "Vision service poll attempts, partitioned by result",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelstation_ingest_duration_seconds",
			Help:    "Time spent in one reading unit of work",
			Buckets: prometheus.DefBuckets,
		}),
	}
	r.registry.MustRegister(
		r.readingsTotal,
		r.salesTotal,
		r.saleLitres,
		r.ocrPolls,
		r.httpRequests,
		r.httpDuration,
		r.httpInFlight,
		r.ingestDuration,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ReadingIngested(source string, reason string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.readingsTotal.WithLabelValues(source, reason).Inc()
	r.ingestDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) SaleDerived(fuelType string, litres float64) {
	if r == nil {
		return
	}
	r.salesTotal.WithLabelValues(fuelType).Inc()
	r.saleLitres.WithLabelValues(fuelType).Add(litres)
}

func (r *Recorder) OCRPoll(result string) {
	if r == nil {
		return
	}
	r.ocrPolls.WithLabelValues(result).Inc()
}

// HTTPStarted marks a request in flight and returns the func that records it.
func (r *Recorder) HTTPStarted() func(method string, route string, status int) {
	if r == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	r.httpInFlight.Inc()
	return func(method string, route string, status int) {
		r.httpInFlight.Dec()
		labels := prometheus.Labels{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		r.httpRequests.With(labels).Inc()
		r.httpDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
