package bootstrap

import (
	"context"
	"sync"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

// cachedInvoiceService memoizes per-account invoice listings for the
// dashboard and history views. Local writes drop the affected entry
// synchronously; writes on other replicas arrive as invoice.saved events and
// drop it there too.
type cachedInvoiceService struct {
	ports.InvoiceService

	mu    sync.Mutex
	lists map[string][]domain.Invoice
}

func newCachedInvoiceService(next ports.InvoiceService) *cachedInvoiceService {
	return &cachedInvoiceService{
		InvoiceService: next,
		lists:          map[string][]domain.Invoice{},
	}
}

func (s *cachedInvoiceService) ListByAccount(ctx context.Context, accountCode string) ([]domain.Invoice, error) {
	s.mu.Lock()
	cached, ok := s.lists[accountCode]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	list, err := s.InvoiceService.ListByAccount(ctx, accountCode)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lists[accountCode] = list
	s.mu.Unlock()
	return list, nil
}

func (s *cachedInvoiceService) Save(ctx context.Context, draft *domain.InvoiceDraft, accountCode string, images []ports.PageInput) (*domain.Invoice, error) {
	invoice, err := s.InvoiceService.Save(ctx, draft, accountCode, images)
	if err == nil {
		s.Invalidate(accountCode)
	}
	return invoice, err
}

func (s *cachedInvoiceService) Update(ctx context.Context, invoiceID string, draft *domain.InvoiceDraft, images []ports.PageInput) (*domain.Invoice, error) {
	invoice, err := s.InvoiceService.Update(ctx, invoiceID, draft, images)
	if err == nil && invoice != nil {
		s.Invalidate(invoice.AccountCode)
	}
	return invoice, err
}

// Delete does not learn the owning account, so it drops everything.
func (s *cachedInvoiceService) Delete(ctx context.Context, invoiceID string) error {
	err := s.InvoiceService.Delete(ctx, invoiceID)
	if err == nil {
		s.mu.Lock()
		s.lists = map[string][]domain.Invoice{}
		s.mu.Unlock()
	}
	return err
}

func (s *cachedInvoiceService) Invalidate(accountCode string) {
	s.mu.Lock()
	delete(s.lists, accountCode)
	s.mu.Unlock()
}
