package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
	"github.com/okibo/invoice-analyzer/internal/observability/metrics"
)

type scannerFake struct {
	draft     *domain.InvoiceDraft
	err       error
	gotCode   string
	gotModel  string
	gotPages  []ports.PageInput
	callCount int
}

func (f *scannerFake) Scan(_ context.Context, accountCode, model string, pages []ports.PageInput) (*domain.InvoiceDraft, error) {
	f.callCount++
	f.gotCode = accountCode
	f.gotModel = model
	f.gotPages = pages
	if f.err != nil {
		return nil, f.err
	}
	return f.draft, nil
}

type quotaFake struct {
	stats domain.QuotaStats
	err   error
}

func (f *quotaFake) CheckAndReserve(context.Context, string, int) (domain.QuotaStats, error) {
	return f.stats, f.err
}

func (f *quotaFake) Commit(context.Context, string, int) error {
	return f.err
}

func (f *quotaFake) Stats(context.Context, string) (domain.QuotaStats, error) {
	return f.stats, f.err
}

type invoiceServiceFake struct {
	invoice *domain.Invoice
	list    []domain.Invoice
	images  []domain.PageImage
	image   domain.PageImage
	data    []byte
	err     error

	savedDraft  *domain.InvoiceDraft
	savedCode   string
	savedImages []ports.PageInput
	deletedID   string
}

func (f *invoiceServiceFake) Save(_ context.Context, draft *domain.InvoiceDraft, accountCode string, images []ports.PageInput) (*domain.Invoice, error) {
	f.savedDraft = draft
	f.savedCode = accountCode
	f.savedImages = images
	return f.invoice, f.err
}

func (f *invoiceServiceFake) Update(_ context.Context, _ string, draft *domain.InvoiceDraft, images []ports.PageInput) (*domain.Invoice, error) {
	f.savedDraft = draft
	f.savedImages = images
	return f.invoice, f.err
}

func (f *invoiceServiceFake) Get(context.Context, string) (*domain.Invoice, error) {
	return f.invoice, f.err
}

func (f *invoiceServiceFake) ListByAccount(context.Context, string) ([]domain.Invoice, error) {
	return f.list, f.err
}

func (f *invoiceServiceFake) Delete(_ context.Context, id string) error {
	f.deletedID = id
	return f.err
}

func (f *invoiceServiceFake) ListImages(context.Context, string) ([]domain.PageImage, error) {
	return f.images, f.err
}

func (f *invoiceServiceFake) OpenImage(context.Context, string, int) (domain.PageImage, []byte, error) {
	return f.image, f.data, f.err
}

type accountAdminFake struct {
	account *domain.Account
	list    []domain.Account
	err     error
}

func (f *accountAdminFake) Create(context.Context, string, string, int) (*domain.Account, error) {
	return f.account, f.err
}

func (f *accountAdminFake) Update(context.Context, string, string, string, int) (*domain.Account, error) {
	return f.account, f.err
}

func (f *accountAdminFake) Delete(context.Context, string) error {
	return f.err
}

func (f *accountAdminFake) List(context.Context) ([]domain.Account, error) {
	return f.list, f.err
}

type exporterFake struct {
	data []byte
	err  error
}

func (f *exporterFake) Export(*domain.Invoice) ([]byte, error) {
	return f.data, f.err
}

type testDeps struct {
	scanner  *scannerFake
	quota    *quotaFake
	invoices *invoiceServiceFake
	accounts *accountAdminFake
	exporter *exporterFake
	traffic  TrafficConfig
}

func newTestRouter(deps testDeps) *Router {
	if deps.scanner == nil {
		deps.scanner = &scannerFake{}
	}
	if deps.quota == nil {
		deps.quota = &quotaFake{}
	}
	if deps.invoices == nil {
		deps.invoices = &invoiceServiceFake{}
	}
	if deps.accounts == nil {
		deps.accounts = &accountAdminFake{}
	}
	if deps.exporter == nil {
		deps.exporter = &exporterFake{}
	}
	if deps.traffic.BackpressureMax <= 0 {
		deps.traffic.BackpressureMax = time.Second
	}
	return NewRouter(
		deps.scanner,
		deps.quota,
		deps.invoices,
		deps.accounts,
		deps.exporter,
		[]string{"model-a", "model-b"},
		metrics.NewHTTPServerMetrics("api"),
		slog.New(slog.DiscardHandler),
		deps.traffic,
	)
}
