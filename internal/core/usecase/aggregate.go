package usecase

import (
	"errors"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

// aggregatePages merges per-page extraction results into one draft invoice.
// Meta comes from the first page that produced a result (header fields are
// assumed constant across pages of one document), line items are concatenated
// in page order with their derived fields recomputed, and the summary comes
// from the last page that reported one. Nil entries stand for pages that
// produced nothing usable.
func aggregatePages(results []*domain.InvoiceDraft) (*domain.InvoiceDraft, error) {
	merged := &domain.InvoiceDraft{Meta: domain.Meta{}}

	valid := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		valid++
		if len(merged.Meta) == 0 && len(res.Meta) > 0 {
			merged.Meta = res.Meta
		}
		merged.Pages = append(merged.Pages, res.Pages...)
		if res.Summary != nil {
			merged.Summary = res.Summary
		}
	}
	if valid == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "aggregate pages", errors.New("no valid data in any page"))
	}

	// Ordinals follow input order, not completion order, and are dense from 1.
	for i := range merged.Pages {
		merged.Pages[i].Ordinal = i + 1
		for j := range merged.Pages[i].Items {
			merged.Pages[i].Items[j].Recompute()
		}
	}
	return merged, nil
}
