package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

// InvoiceUseCase persists aggregated invoices and their page images under an
// account. Image bytes go to object storage; the repository only keeps
// references.
type InvoiceUseCase struct {
	accounts ports.AccountRepository
	invoices ports.InvoiceRepository
	storage  ports.ImageStorage
	events   ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewInvoiceUseCase(
	accounts ports.AccountRepository,
	invoices ports.InvoiceRepository,
	storage ports.ImageStorage,
	events ports.EventPublisher,
	logger *slog.Logger,
) *InvoiceUseCase {
	return &InvoiceUseCase{
		accounts: accounts,
		invoices: invoices,
		storage:  storage,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *InvoiceUseCase) Save(ctx context.Context, draft *domain.InvoiceDraft, accountCode string, images []ports.PageInput) (*domain.Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	account, err := uc.accounts.GetByCode(ctx, accountCode)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	invoice := &domain.Invoice{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		AccountName: account.Name,
		AccountCode: account.Code,
		Status:      domain.StatusProcessing,
		Meta:        draft.Meta,
		Pages:       draft.Pages,
		Summary:     draft.Summary,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.invoices.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	// Image write failures surface as-is; the invoice row is not rolled back
	// and stays in processing state, so the gap is visible.
	if err := uc.saveImages(ctx, invoice.ID, images); err != nil {
		return nil, err
	}

	invoice.Status = domain.StatusPending
	invoice.UpdatedAt = uc.now()
	if err := uc.invoices.UpdateContent(ctx, invoice); err != nil {
		return nil, fmt.Errorf("finalize invoice: %w", err)
	}

	uc.publishSaved(ctx, invoice.ID, account.Code)
	uc.logger.Info("invoice_saved", "invoice_id", invoice.ID, "account_code", account.Code, "pages", len(images))
	return invoice, nil
}

func (uc *InvoiceUseCase) Update(ctx context.Context, invoiceID string, draft *domain.InvoiceDraft, images []ports.PageInput) (*domain.Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	invoice, err := uc.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	invoice.Meta = draft.Meta
	invoice.Pages = draft.Pages
	invoice.Summary = draft.Summary
	invoice.Status = domain.StatusCompleted
	invoice.UpdatedAt = uc.now()

	if err := uc.invoices.UpdateContent(ctx, invoice); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	// Page images are replaced wholesale, not diffed.
	if len(images) > 0 {
		if err := uc.replaceImages(ctx, invoice.ID, images); err != nil {
			return nil, err
		}
	}

	uc.publishSaved(ctx, invoice.ID, invoice.AccountCode)
	uc.logger.Info("invoice_updated", "invoice_id", invoice.ID, "pages", len(images))
	return invoice, nil
}

func (uc *InvoiceUseCase) Get(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return uc.invoices.GetByID(ctx, invoiceID)
}

func (uc *InvoiceUseCase) ListByAccount(ctx context.Context, accountCode string) ([]domain.Invoice, error) {
	if accountCode == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list invoices", errors.New("account code is required"))
	}
	if _, err := uc.accounts.GetByCode(ctx, accountCode); err != nil {
		return nil, err
	}
	return uc.invoices.ListByAccountCode(ctx, accountCode)
}

func (uc *InvoiceUseCase) Delete(ctx context.Context, invoiceID string) error {
	invoice, err := uc.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}

	uc.removeStoredImages(ctx, invoiceID)
	if err := uc.invoices.Delete(ctx, invoiceID); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}

	uc.publishSaved(ctx, invoiceID, invoice.AccountCode)
	return nil
}

func (uc *InvoiceUseCase) ListImages(ctx context.Context, invoiceID string) ([]domain.PageImage, error) {
	if _, err := uc.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return uc.invoices.ListImages(ctx, invoiceID)
}

func (uc *InvoiceUseCase) OpenImage(ctx context.Context, invoiceID string, pageNumber int) (domain.PageImage, []byte, error) {
	refs, err := uc.ListImages(ctx, invoiceID)
	if err != nil {
		return domain.PageImage{}, nil, err
	}
	for _, ref := range refs {
		if ref.PageNumber != pageNumber {
			continue
		}
		reader, err := uc.storage.Open(ctx, ref.StorageKey)
		if err != nil {
			return domain.PageImage{}, nil, fmt.Errorf("open page image: %w", err)
		}
		defer reader.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(reader); err != nil {
			return domain.PageImage{}, nil, fmt.Errorf("read page image: %w", err)
		}
		return ref, buf.Bytes(), nil
	}
	return domain.PageImage{}, nil, domain.WrapError(domain.ErrInvoiceNotFound, "open page image", fmt.Errorf("page %d has no stored image", pageNumber))
}

func (uc *InvoiceUseCase) saveImages(ctx context.Context, invoiceID string, images []ports.PageInput) error {
	for i, img := range images {
		key := fmt.Sprintf("%s_page_%d%s", invoiceID, i+1, extensionFor(img.MimeType))
		if err := uc.storage.Save(ctx, key, bytes.NewReader(img.Data)); err != nil {
			return fmt.Errorf("store page %d image: %w", i+1, err)
		}

		name := img.Filename
		if name == "" {
			name = fmt.Sprintf("invoice_page_%d%s", i+1, extensionFor(img.MimeType))
		}
		ref := &domain.PageImage{
			ID:           uuid.NewString(),
			InvoiceID:    invoiceID,
			StorageKey:   key,
			OriginalName: name,
			MimeType:     img.MimeType,
			Size:         int64(len(img.Data)),
			PageNumber:   i + 1,
			CreatedAt:    uc.now(),
		}
		if err := uc.invoices.CreateImage(ctx, ref); err != nil {
			return fmt.Errorf("save page %d image reference: %w", i+1, err)
		}
	}
	return nil
}

func (uc *InvoiceUseCase) replaceImages(ctx context.Context, invoiceID string, images []ports.PageInput) error {
	uc.removeStoredImages(ctx, invoiceID)
	if err := uc.invoices.DeleteImages(ctx, invoiceID); err != nil {
		return fmt.Errorf("delete old image references: %w", err)
	}
	return uc.saveImages(ctx, invoiceID, images)
}

// removeStoredImages is best-effort: a missing storage object must not block
// deleting or replacing the invoice.
func (uc *InvoiceUseCase) removeStoredImages(ctx context.Context, invoiceID string) {
	refs, err := uc.invoices.ListImages(ctx, invoiceID)
	if err != nil {
		uc.logger.Warn("list_images_for_cleanup_failed", "invoice_id", invoiceID, "error", err)
		return
	}
	for _, ref := range refs {
		if err := uc.storage.Delete(ctx, ref.StorageKey); err != nil {
			uc.logger.Warn("delete_stored_image_failed", "key", ref.StorageKey, "error", err)
		}
	}
}

func (uc *InvoiceUseCase) publishSaved(ctx context.Context, invoiceID, accountCode string) {
	if err := uc.events.PublishInvoiceSaved(ctx, invoiceID, accountCode); err != nil {
		uc.logger.Warn("invoice_event_publish_failed", "invoice_id", invoiceID, "error", err)
	}
}

func validateDraft(draft *domain.InvoiceDraft) error {
	if draft == nil {
		return domain.WrapError(domain.ErrInvalidInput, "invoice payload", errors.New("draft is required"))
	}
	if len(draft.Pages) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "invoice payload", errors.New("at least one page is required"))
	}
	if !draft.Summary.Consistent() {
		return domain.WrapError(domain.ErrInvalidInput, "invoice payload", errors.New("summary totals do not add up"))
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
