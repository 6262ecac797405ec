package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

// ScanUseCase runs one capture-and-extract operation: quota reservation,
// concurrent per-page extraction, aggregation, and the final quota commit.
// A scan that fails at any point commits nothing.
type ScanUseCase struct {
	quota     ports.QuotaService
	extractor ports.VisionExtractor
	logger    *slog.Logger
}

func NewScanUseCase(quota ports.QuotaService, extractor ports.VisionExtractor, logger *slog.Logger) *ScanUseCase {
	return &ScanUseCase{
		quota:     quota,
		extractor: extractor,
		logger:    logger,
	}
}

func (uc *ScanUseCase) Scan(ctx context.Context, accountCode, model string, pages []ports.PageInput) (*domain.InvoiceDraft, error) {
	if accountCode == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "scan", errors.New("account code is required"))
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "scan", errors.New("at least one page image is required"))
	}
	for i, page := range pages {
		if len(page.Data) == 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "scan", fmt.Errorf("page %d image is empty", i+1))
		}
	}

	if _, err := uc.quota.CheckAndReserve(ctx, accountCode, len(pages)); err != nil {
		return nil, err
	}

	// Fan out one extraction call per page. All pages are awaited; a failure
	// on one page does not cancel the others. Results keep input order.
	results := make([]*domain.InvoiceDraft, len(pages))
	pageErrs := make([]error, len(pages))

	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(idx int, input ports.PageInput) {
			defer wg.Done()
			res, err := uc.extractor.Extract(ctx, input.Data, input.MimeType, model)
			if err != nil {
				pageErrs[idx] = fmt.Errorf("page %d: %w", idx+1, err)
				return
			}
			results[idx] = res
		}(i, page)
	}
	wg.Wait()

	var failed []error
	for _, err := range pageErrs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		uc.logger.Warn("scan_pages_failed",
			"account_code", accountCode,
			"pages", len(pages),
			"failed", len(failed),
		)
		return nil, errors.Join(failed...)
	}

	draft, err := aggregatePages(results)
	if err != nil {
		return nil, err
	}

	if err := uc.quota.Commit(ctx, accountCode, len(pages)); err != nil {
		return nil, fmt.Errorf("commit scan count: %w", err)
	}

	uc.logger.Info("scan_completed",
		"account_code", accountCode,
		"model", model,
		"pages", len(pages),
		"items", countItems(draft),
	)
	return draft, nil
}

func countItems(draft *domain.InvoiceDraft) int {
	total := 0
	for _, page := range draft.Pages {
		total += len(page.Items)
	}
	return total
}
