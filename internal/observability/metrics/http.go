package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics carries the request-level series plus the scan pipeline
// series on a private registry, so /metrics only exposes what this service
// registers.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	scansTotal          *prometheus.CounterVec
	scanPages           *prometheus.HistogramVec
	scanDuration        *prometheus.HistogramVec
	pageExtractionTotal *prometheus.CounterVec
	extractionDuration  *prometheus.HistogramVec
	quotaRejectedTotal  *prometheus.CounterVec
	exportsTotal        *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inva",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inva",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inva",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	scansTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inva",
			Subsystem: "scan",
			Name:      "scans_total",
			Help:      "Total scan requests by outcome.",
		},
		[]string{"service", "status"},
	)
	scanPages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inva",
			Subsystem: "scan",
			Name:      "pages",
			Help:      "Distribution of pages per scan request.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	scanDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inva",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "End-to-end scan duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"service"},
	)
	pageExtractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inva",
			Subsystem: "extraction",
			Name:      "pages_total",
			Help:      "Total single-page extractions by model and outcome.",
		},
		[]string{"service", "model", "status"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inva",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Single-page extraction duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"service", "model"},
	)
	quotaRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inva",
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Total scan requests rejected by the monthly quota.",
		},
		[]string{"service", "account"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inva",
			Subsystem: "export",
			Name:      "exports_total",
			Help:      "Total invoice exports by format.",
		},
		[]string{"service", "format"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		scansTotal,
		scanPages,
		scanDuration,
		pageExtractionTotal,
		extractionDuration,
		quotaRejectedTotal,
		exportsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		scansTotal:          scansTotal,
		scanPages:           scanPages,
		scanDuration:        scanDuration,
		pageExtractionTotal: pageExtractionTotal,
		extractionDuration:  extractionDuration,
		quotaRejectedTotal:  quotaRejectedTotal,
		exportsTotal:        exportsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource IDs so the path label stays low
// cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/invoices/"):
		rest := strings.TrimPrefix(path, "/v1/invoices/")
		switch {
		case strings.HasSuffix(rest, "/export"):
			return "/v1/invoices/{invoice_id}/export"
		case strings.Contains(rest, "/images"):
			return "/v1/invoices/{invoice_id}/images"
		default:
			return "/v1/invoices/{invoice_id}"
		}
	case strings.HasPrefix(path, "/v1/accounts/") && strings.HasSuffix(path, "/stats"):
		return "/v1/accounts/{account_code}/stats"
	case strings.HasPrefix(path, "/v1/accounts/"):
		return "/v1/accounts/{account_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordScan(service, status string, pages int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.scansTotal.WithLabelValues(service, status).Inc()
	if pages > 0 {
		m.scanPages.WithLabelValues(service).Observe(float64(pages))
	}
	m.scanDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordPageExtraction(service, model, status string, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.pageExtractionTotal.WithLabelValues(service, model, status).Inc()
	m.extractionDuration.WithLabelValues(service, model).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordQuotaRejection(service, accountCode string) {
	if accountCode == "" {
		accountCode = "unknown"
	}
	m.quotaRejectedTotal.WithLabelValues(service, accountCode).Inc()
}

func (m *HTTPServerMetrics) RecordExport(service, format string) {
	if format == "" {
		format = "unknown"
	}
	m.exportsTotal.WithLabelValues(service, format).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
