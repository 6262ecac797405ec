package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
	"github.com/okibo/invoice-analyzer/internal/observability/metrics"
)

const serviceName = "api"

// InvoiceExporter renders one invoice as a downloadable workbook.
type InvoiceExporter interface {
	Export(invoice *domain.Invoice) ([]byte, error)
}

// TrafficConfig bounds inbound request volume.
type TrafficConfig struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	BackpressureMax time.Duration
}

type Router struct {
	scanner  ports.InvoiceScanner
	quota    ports.QuotaService
	invoices ports.InvoiceService
	accounts ports.AccountAdmin
	exporter InvoiceExporter
	models   []string
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	traffic  TrafficConfig
}

func NewRouter(
	scanner ports.InvoiceScanner,
	quota ports.QuotaService,
	invoices ports.InvoiceService,
	accounts ports.AccountAdmin,
	exporter InvoiceExporter,
	models []string,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	traffic TrafficConfig,
) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if traffic.BackpressureMax <= 0 {
		traffic.BackpressureMax = 5 * time.Second
	}
	return &Router{
		scanner:  scanner,
		quota:    quota,
		invoices: invoices,
		accounts: accounts,
		exporter: exporter,
		models:   models,
		metrics:  serverMetrics,
		logger:   logger,
		traffic:  traffic,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/scans", rt.createScan)
	api.HandleFunc("GET /v1/models", rt.listModels)
	api.HandleFunc("POST /v1/review/recompute", rt.recomputeReview)

	api.HandleFunc("POST /v1/invoices", rt.saveInvoice)
	api.HandleFunc("GET /v1/invoices", rt.listInvoices)
	api.HandleFunc("GET /v1/invoices/{id}", rt.getInvoice)
	api.HandleFunc("PUT /v1/invoices/{id}", rt.updateInvoice)
	api.HandleFunc("DELETE /v1/invoices/{id}", rt.deleteInvoice)
	api.HandleFunc("GET /v1/invoices/{id}/images", rt.listInvoiceImages)
	api.HandleFunc("GET /v1/invoices/{id}/images/{page}", rt.getInvoiceImage)
	api.HandleFunc("GET /v1/invoices/{id}/export", rt.exportInvoice)

	api.HandleFunc("POST /v1/accounts", rt.createAccount)
	api.HandleFunc("GET /v1/accounts", rt.listAccounts)
	api.HandleFunc("PUT /v1/accounts/{id}", rt.updateAccount)
	api.HandleFunc("DELETE /v1/accounts/{id}", rt.deleteAccount)
	api.HandleFunc("GET /v1/accounts/{code}/stats", rt.accountStats)

	var apiHandler http.Handler = api
	apiHandler = backpressureMiddleware(apiHandler, rt.traffic.MaxInFlight, rt.traffic.BackpressureMax)
	apiHandler = rateLimitMiddleware(apiHandler, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", apiHandler)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": rt.models})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
