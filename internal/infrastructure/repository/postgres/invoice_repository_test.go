package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

func newInvoiceRepoWithMock(t *testing.T) (*InvoiceRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &InvoiceRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetInvoiceByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT i.id, i.account_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetInvoiceByIDUnpacksContent(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	now := time.Now().UTC().Truncate(time.Second)
	meta, _ := json.Marshal(domain.Meta{"invoice_number": "RE-100"})
	pages, _ := json.Marshal([]domain.InvoicePage{{Ordinal: 1, Items: []domain.LineItem{{
		ProductCode: "A-1", Packages: 2, UnitsPerPackage: 6, Quantity: 12, UnitPrice: 1.5, NetAmount: 18,
	}}}})
	gross := 21.42
	summary, _ := json.Marshal(domain.Summary{TotalGross: &gross})

	mock.ExpectQuery("SELECT i.id, i.account_id").
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "name", "code", "status", "invoice_meta", "invoice_data", "invoice_summary", "created_at", "updated_at",
		}).AddRow("inv-1", "acc-1", "Getraenke Nord GmbH", "GN", "completed", meta, pages, summary, now, now))

	invoice, err := repo.GetByID(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if invoice.AccountCode != "GN" || invoice.AccountName != "Getraenke Nord GmbH" {
		t.Errorf("account join = %q/%q", invoice.AccountCode, invoice.AccountName)
	}
	if invoice.Status != domain.StatusCompleted {
		t.Errorf("status = %q", invoice.Status)
	}
	if invoice.Meta["invoice_number"] != "RE-100" {
		t.Errorf("meta = %+v", invoice.Meta)
	}
	if len(invoice.Pages) != 1 || len(invoice.Pages[0].Items) != 1 {
		t.Fatalf("pages = %+v", invoice.Pages)
	}
	if invoice.Summary == nil || invoice.Summary.TotalGross == nil || *invoice.Summary.TotalGross != 21.42 {
		t.Errorf("summary = %+v", invoice.Summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetInvoiceByIDTreatsNullSummaryAsAbsent(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT i.id, i.account_id").
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "name", "code", "status", "invoice_meta", "invoice_data", "invoice_summary", "created_at", "updated_at",
		}).AddRow("inv-1", "acc-1", "GN", "GN", "pending", []byte(`{}`), []byte(`[]`), nil, now, now))

	invoice, err := repo.GetByID(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if invoice.Summary != nil {
		t.Errorf("summary = %+v, want nil", invoice.Summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateContentNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE invoices").
		WithArgs("missing", "completed", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateContent(context.Background(), &domain.Invoice{
		ID:     "missing",
		Status: domain.StatusCompleted,
		Meta:   domain.Meta{},
	})
	if !domain.IsKind(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateInvoiceSendsNullSummary(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs("inv-1", "acc-1", "pending", []byte(`{}`), []byte(`[]`), nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &domain.Invoice{
		ID:        "inv-1",
		AccountID: "acc-1",
		Status:    domain.StatusPending,
		Meta:      domain.Meta{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListImagesOrdersByPage(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, invoice_id, storage_key").
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "invoice_id", "storage_key", "original_name", "mime_type", "size", "page_number", "created_at",
		}).
			AddRow("img-1", "inv-1", "inv-1_page_1.jpg", "front.jpg", "image/jpeg", int64(1024), 1, now).
			AddRow("img-2", "inv-1", "inv-1_page_2.jpg", "back.jpg", "image/jpeg", int64(2048), 2, now))

	images, err := repo.ListImages(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if len(images) != 2 || images[0].PageNumber != 1 || images[1].PageNumber != 2 {
		t.Fatalf("images = %+v", images)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteInvoiceNotFound(t *testing.T) {
	repo, mock, done := newInvoiceRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM invoices").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
