package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal      *prometheus.CounterVec
	retrievalDuration   *prometheus.HistogramVec
	retrievalPoolSize   *prometheus.HistogramVec
	retrievalFinalSize  *prometheus.HistogramVec
	retrievalNoEvidence *prometheus.CounterVec

	channelSearchTotal *prometheus.CounterVec
	rerankCacheTotal   *prometheus.CounterVec
	rerankDuration     *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by status.",
		},
		[]string{"service", "status"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retrievalPoolSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "pool_size",
			Help:      "Distribution of pre-rerank pool sizes.",
			Buckets:   []float64{0, 5, 10, 20, 30, 40, 50, 60},
		},
		[]string{"service"},
	)
	retrievalFinalSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "final_size",
			Help:      "Distribution of final evidence list sizes.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 12},
		},
		[]string{"service"},
	)
	retrievalNoEvidence := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "no_evidence_total",
			Help:      "Total retrieval requests that produced no evidence.",
		},
		[]string{"service"},
	)

	channelSearchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "retrieval",
			Name:      "channel_search_total",
			Help:      "Channel searches by winning route strategy.",
		},
		[]string{"service", "channel", "strategy"},
	)
	rerankCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "rerank",
			Name:      "cache_lookups_total",
			Help:      "Cross-encoder score cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	rerankDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "rerank",
			Name:      "duration_seconds",
			Help:      "Reranking stage duration by backend.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "backend"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalPoolSize,
		retrievalFinalSize,
		retrievalNoEvidence,
		channelSearchTotal,
		rerankCacheTotal,
		rerankDuration,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		retrievalTotal:      retrievalTotal,
		retrievalDuration:   retrievalDuration,
		retrievalPoolSize:   retrievalPoolSize,
		retrievalFinalSize:  retrievalFinalSize,
		retrievalNoEvidence: retrievalNoEvidence,
		channelSearchTotal:  channelSearchTotal,
		rerankCacheTotal:    rerankCacheTotal,
		rerankDuration:      rerankDuration,
	}
}

// PipelineRecorder adapts the shared registry to the pipeline telemetry
// hooks inside the retrieval use case.
type PipelineRecorder struct {
	m       *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) Pipeline(service string) *PipelineRecorder {
	return &PipelineRecorder{m: m, service: service}
}

func (r *PipelineRecorder) ChannelSearched(channel, strategy string, _ int) {
	r.m.channelSearchTotal.WithLabelValues(r.service, channel, strategy).Inc()
}

func (r *PipelineRecorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.m.rerankCacheTotal.WithLabelValues(r.service, result).Inc()
}

func (r *PipelineRecorder) RerankFinished(backend string, duration time.Duration) {
	r.m.rerankDuration.WithLabelValues(r.service, backend).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordRetrieval(service string, poolSize, finalSize int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.retrievalTotal.WithLabelValues(service, status).Inc()
	m.retrievalDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.retrievalPoolSize.WithLabelValues(service).Observe(float64(poolSize))
	m.retrievalFinalSize.WithLabelValues(service).Observe(float64(finalSize))
	if finalSize == 0 {
		m.retrievalNoEvidence.WithLabelValues(service).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
