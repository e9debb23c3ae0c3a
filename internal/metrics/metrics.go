package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and for the
// scrape pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runTotal        *prometheus.CounterVec
	alertsTotal     prometheus.Counter
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watcher",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watcher",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration distribution for monitor scrape runs.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"result"})

	runTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total number of monitor scrape runs by result.",
	}, []string{"result"})

	alertsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "pipeline",
		Name:      "alerts_total",
		Help:      "Total number of alerts published to feeds.",
	})

	for _, c := range []prometheus.Collector{requestDuration, requestTotal, runDuration, runTotal, alertsTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	collector := &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runDuration:     runDuration,
		runTotal:        runTotal,
		alertsTotal:     alertsTotal,
	}

	return collector, nil
}

// RegisterPoolGauge exposes the number of leased browser renderers.
func (c *Collector) RegisterPoolGauge(inUse func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "watcher",
		Subsystem: "browser",
		Name:      "renderers_in_use",
		Help:      "Number of browser renderers currently leased from the pool.",
	}, func() float64 { return float64(inUse()) })

	return c.registry.Register(gauge)
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveRun records the outcome and duration of one monitor run.
func (c *Collector) ObserveRun(result string, duration time.Duration) {
	c.runTotal.WithLabelValues(result).Inc()
	c.runDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// AlertPublished counts one published alert.
func (c *Collector) AlertPublished() {
	c.alertsTotal.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
