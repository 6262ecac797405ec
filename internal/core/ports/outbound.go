package ports

import (
	"context"
	"io"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

// AccountRepository persists tenant accounts and the usage ledger.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByCode(ctx context.Context, code string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
	Delete(ctx context.Context, id string) error

	// ResetUsage zeroes the counter and moves the reset timestamp; used on
	// calendar month rollover.
	ResetUsage(ctx context.Context, code string, resetAt time.Time) error
	// IncrementUsageWithinLimit adds n to the counter only when the result
	// stays within the monthly limit, as a single conditional statement.
	// Returns domain.ErrQuotaExceeded when the increment would overshoot.
	IncrementUsageWithinLimit(ctx context.Context, code string, n int) (*domain.Account, error)
	// CountInvoices reports how many invoices the account owns.
	CountInvoices(ctx context.Context, accountID string) (int, error)
}

// InvoiceRepository persists invoices and their page-image references.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	ListByAccountCode(ctx context.Context, code string) ([]domain.Invoice, error)
	UpdateContent(ctx context.Context, invoice *domain.Invoice) error
	Delete(ctx context.Context, id string) error

	CreateImage(ctx context.Context, image *domain.PageImage) error
	ListImages(ctx context.Context, invoiceID string) ([]domain.PageImage, error)
	DeleteImages(ctx context.Context, invoiceID string) error
}

// ImageStorage stores captured page images by key.
type ImageStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// VisionExtractor turns one page image into structured invoice data.
type VisionExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType, model string) (*domain.InvoiceDraft, error)
}

// EventPublisher notifies downstream views (dashboards, history lists) that
// cached invoice or usage data is stale.
type EventPublisher interface {
	PublishInvoiceSaved(ctx context.Context, invoiceID, accountCode string) error
	PublishUsageCommitted(ctx context.Context, accountCode string, scanCount int) error
}
