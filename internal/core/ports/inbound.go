package ports

import (
	"context"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

// PageInput is one captured page handed to a scan.
type PageInput struct {
	Data     []byte
	MimeType string
	Filename string
}

// InvoiceScanner is the inbound contract for the capture-and-extract flow:
// quota check, per-page extraction fan-out, aggregation, quota commit.
type InvoiceScanner interface {
	Scan(ctx context.Context, accountCode, model string, pages []PageInput) (*domain.InvoiceDraft, error)
}

// QuotaService exposes the monthly usage ledger.
type QuotaService interface {
	CheckAndReserve(ctx context.Context, accountCode string, scanCount int) (domain.QuotaStats, error)
	Commit(ctx context.Context, accountCode string, scanCount int) error
	Stats(ctx context.Context, accountCode string) (domain.QuotaStats, error)
}

// InvoiceService persists reviewed invoices and serves account-scoped reads.
type InvoiceService interface {
	Save(ctx context.Context, draft *domain.InvoiceDraft, accountCode string, images []PageInput) (*domain.Invoice, error)
	Update(ctx context.Context, invoiceID string, draft *domain.InvoiceDraft, images []PageInput) (*domain.Invoice, error)
	Get(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	ListByAccount(ctx context.Context, accountCode string) ([]domain.Invoice, error)
	Delete(ctx context.Context, invoiceID string) error
	ListImages(ctx context.Context, invoiceID string) ([]domain.PageImage, error)
	OpenImage(ctx context.Context, invoiceID string, pageNumber int) (domain.PageImage, []byte, error)
}

// AccountAdmin manages tenant accounts and their quotas.
type AccountAdmin interface {
	Create(ctx context.Context, name, code string, monthlyLimit int) (*domain.Account, error)
	Update(ctx context.Context, id, name, code string, monthlyLimit int) (*domain.Account, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Account, error)
}
