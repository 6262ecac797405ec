package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	meta, pages, summary, err := marshalContent(invoice)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO invoices (id, account_id, status, invoice_meta, invoice_data, invoice_summary, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		invoice.ID, invoice.AccountID, string(invoice.Status), meta, pages, summary,
		invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT i.id, i.account_id, a.name, a.code, i.status, i.invoice_meta, i.invoice_data, i.invoice_summary, i.created_at, i.updated_at
FROM invoices i
JOIN accounts a ON a.id = i.account_id
WHERE i.id = $1
`, id)

	invoice, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice by id", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get invoice by id: %w", err)
	}
	return invoice, nil
}

func (r *InvoiceRepository) ListByAccountCode(ctx context.Context, code string) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT i.id, i.account_id, a.name, a.code, i.status, i.invoice_meta, i.invoice_data, i.invoice_summary, i.created_at, i.updated_at
FROM invoices i
JOIN accounts a ON a.id = i.account_id
WHERE a.code = $1
ORDER BY i.created_at DESC
`, code)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		invoice, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return out, nil
}

func (r *InvoiceRepository) UpdateContent(ctx context.Context, invoice *domain.Invoice) error {
	meta, pages, summary, err := marshalContent(invoice)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET status = $2, invoice_meta = $3, invoice_data = $4, invoice_summary = $5, updated_at = $6
WHERE id = $1
`, invoice.ID, string(invoice.Status), meta, pages, summary, invoice.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return requireRowAffected(result, domain.ErrInvoiceNotFound, "update invoice", invoice.ID)
}

func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return requireRowAffected(result, domain.ErrInvoiceNotFound, "delete invoice", id)
}

func (r *InvoiceRepository) CreateImage(ctx context.Context, image *domain.PageImage) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO invoice_images (id, invoice_id, storage_key, original_name, mime_type, size, page_number, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		image.ID, image.InvoiceID, image.StorageKey, image.OriginalName,
		image.MimeType, image.Size, image.PageNumber, image.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice image: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) ListImages(ctx context.Context, invoiceID string) ([]domain.PageImage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, invoice_id, storage_key, original_name, mime_type, size, page_number, created_at
FROM invoice_images
WHERE invoice_id = $1
ORDER BY page_number ASC
`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice images: %w", err)
	}
	defer rows.Close()

	var out []domain.PageImage
	for rows.Next() {
		var image domain.PageImage
		err := rows.Scan(
			&image.ID, &image.InvoiceID, &image.StorageKey, &image.OriginalName,
			&image.MimeType, &image.Size, &image.PageNumber, &image.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan invoice image: %w", err)
		}
		out = append(out, image)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice images: %w", err)
	}
	return out, nil
}

func (r *InvoiceRepository) DeleteImages(ctx context.Context, invoiceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoice_images WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("delete invoice images: %w", err)
	}
	return nil
}

func marshalContent(invoice *domain.Invoice) (meta, pages, summary []byte, err error) {
	if meta, err = json.Marshal(invoice.Meta); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal invoice meta: %w", err)
	}
	if invoice.Pages == nil {
		pages = []byte("[]")
	} else if pages, err = json.Marshal(invoice.Pages); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal invoice pages: %w", err)
	}
	if invoice.Summary != nil {
		if summary, err = json.Marshal(invoice.Summary); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal invoice summary: %w", err)
		}
	}
	return meta, pages, summary, nil
}

func scanInvoiceRow(row rowScanner) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var status string
	var metaRaw, pagesRaw []byte
	var summaryRaw sql.Null[[]byte]

	err := row.Scan(
		&invoice.ID, &invoice.AccountID, &invoice.AccountName, &invoice.AccountCode,
		&status, &metaRaw, &pagesRaw, &summaryRaw, &invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.Status = domain.InvoiceStatus(status)
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &invoice.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal invoice meta: %w", err)
		}
	}
	if len(pagesRaw) > 0 {
		if err := json.Unmarshal(pagesRaw, &invoice.Pages); err != nil {
			return nil, fmt.Errorf("unmarshal invoice pages: %w", err)
		}
	}
	if summaryRaw.Valid && len(summaryRaw.V) > 0 {
		var summary domain.Summary
		if err := json.Unmarshal(summaryRaw.V, &summary); err != nil {
			return nil, fmt.Errorf("unmarshal invoice summary: %w", err)
		}
		invoice.Summary = &summary
	}
	return &invoice, nil
}
