package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

type accountRepoFake struct {
	mu          sync.Mutex
	byCode      map[string]*domain.Account
	invoiceCnt  map[string]int
	resetCalls  int
	incrementOK int
}

func newAccountRepoFake(accounts ...*domain.Account) *accountRepoFake {
	f := &accountRepoFake{
		byCode:     map[string]*domain.Account{},
		invoiceCnt: map[string]int{},
	}
	for _, acc := range accounts {
		f.byCode[acc.Code] = acc
	}
	return f
}

func (f *accountRepoFake) Create(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byCode[account.Code] = account
	return nil
}

func (f *accountRepoFake) GetByCode(_ context.Context, code string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.byCode[code]
	if !ok {
		return nil, domain.WrapError(domain.ErrAccountNotFound, "get account", fmt.Errorf("code=%s", code))
	}
	copied := *acc
	return &copied, nil
}

func (f *accountRepoFake) GetByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.byCode {
		if acc.ID == id {
			copied := *acc
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrAccountNotFound, "get account", fmt.Errorf("id=%s", id))
}

func (f *accountRepoFake) List(context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Account, 0, len(f.byCode))
	for _, acc := range f.byCode {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *accountRepoFake) Update(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for code, acc := range f.byCode {
		if acc.ID == account.ID {
			delete(f.byCode, code)
			copied := *account
			f.byCode[account.Code] = &copied
			return nil
		}
	}
	return domain.WrapError(domain.ErrAccountNotFound, "update account", fmt.Errorf("id=%s", account.ID))
}

func (f *accountRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for code, acc := range f.byCode {
		if acc.ID == id {
			delete(f.byCode, code)
			return nil
		}
	}
	return domain.WrapError(domain.ErrAccountNotFound, "delete account", fmt.Errorf("id=%s", id))
}

func (f *accountRepoFake) ResetUsage(_ context.Context, code string, resetAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.byCode[code]
	if !ok {
		return domain.WrapError(domain.ErrAccountNotFound, "reset usage", fmt.Errorf("code=%s", code))
	}
	acc.CurrentScanCount = 0
	acc.ScanCountResetAt = resetAt
	f.resetCalls++
	return nil
}

func (f *accountRepoFake) IncrementUsageWithinLimit(_ context.Context, code string, n int) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.byCode[code]
	if !ok {
		return nil, domain.WrapError(domain.ErrAccountNotFound, "increment usage", fmt.Errorf("code=%s", code))
	}
	if acc.CurrentScanCount+n > acc.MonthlyScanLimit {
		return nil, fmt.Errorf("%w: monthly scan limit (%d) reached, current usage: %d", domain.ErrQuotaExceeded, acc.MonthlyScanLimit, acc.CurrentScanCount)
	}
	acc.CurrentScanCount += n
	f.incrementOK++
	copied := *acc
	return &copied, nil
}

func (f *accountRepoFake) CountInvoices(_ context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoiceCnt[accountID], nil
}

type invoiceRepoFake struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	images   map[string][]domain.PageImage
}

func newInvoiceRepoFake() *invoiceRepoFake {
	return &invoiceRepoFake{
		invoices: map[string]*domain.Invoice{},
		images:   map[string][]domain.PageImage{},
	}
}

func (f *invoiceRepoFake) Create(_ context.Context, invoice *domain.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *invoice
	f.invoices[invoice.ID] = &copied
	return nil
}

func (f *invoiceRepoFake) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", fmt.Errorf("id=%s", id))
	}
	copied := *inv
	return &copied, nil
}

func (f *invoiceRepoFake) ListByAccountCode(_ context.Context, code string) ([]domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range f.invoices {
		if inv.AccountCode == code {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *invoiceRepoFake) UpdateContent(_ context.Context, invoice *domain.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[invoice.ID]; !ok {
		return domain.WrapError(domain.ErrInvoiceNotFound, "update invoice", fmt.Errorf("id=%s", invoice.ID))
	}
	copied := *invoice
	f.invoices[invoice.ID] = &copied
	return nil
}

func (f *invoiceRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[id]; !ok {
		return domain.WrapError(domain.ErrInvoiceNotFound, "delete invoice", fmt.Errorf("id=%s", id))
	}
	delete(f.invoices, id)
	delete(f.images, id)
	return nil
}

func (f *invoiceRepoFake) CreateImage(_ context.Context, image *domain.PageImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image.InvoiceID] = append(f.images[image.InvoiceID], *image)
	return nil
}

func (f *invoiceRepoFake) ListImages(_ context.Context, invoiceID string) ([]domain.PageImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.PageImage(nil), f.images[invoiceID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (f *invoiceRepoFake) DeleteImages(_ context.Context, invoiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, invoiceID)
	return nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = buf
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type eventsFake struct {
	mu            sync.Mutex
	invoiceEvents []string
	usageEvents   []string
	publishInvErr error
	publishUsgErr error
}

func (f *eventsFake) PublishInvoiceSaved(_ context.Context, invoiceID, accountCode string) error {
	if f.publishInvErr != nil {
		return f.publishInvErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoiceEvents = append(f.invoiceEvents, invoiceID+":"+accountCode)
	return nil
}

func (f *eventsFake) PublishUsageCommitted(_ context.Context, accountCode string, scanCount int) error {
	if f.publishUsgErr != nil {
		return f.publishUsgErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageEvents = append(f.usageEvents, fmt.Sprintf("%s:%d", accountCode, scanCount))
	return nil
}
