package domain

import (
	"math"
	"time"
)

type InvoiceStatus string

const (
	StatusPending    InvoiceStatus = "pending"
	StatusProcessing InvoiceStatus = "processing"
	StatusCompleted  InvoiceStatus = "completed"
)

// SummaryTolerance bounds floating error when comparing money values.
const SummaryTolerance = 0.01

// LineItem is one row of an invoice table. Quantity and NetAmount are derived
// fields: the extraction model is a noisy OCR source and is never trusted for
// arithmetic.
type LineItem struct {
	ProductCode     string  `json:"product_code"`
	Description     string  `json:"description"`
	Packages        int     `json:"packages"`
	UnitsPerPackage int     `json:"units_per_package"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	NetAmount       float64 `json:"net_amount"`
	VATRate         *int    `json:"vat_rate,omitempty"`
	// OriginalNet keeps the amount as reported by the model so a reviewer
	// can compare it against the recomputed value.
	OriginalNet *float64 `json:"original_net_amount,omitempty"`
}

// Recompute reapplies the derivation rules:
//
//	quantity = packages * units_per_package
//	net      = round3(quantity * unit_price)
func (li *LineItem) Recompute() {
	li.Quantity = li.Packages * li.UnitsPerPackage
	li.NetAmount = Round3(float64(li.Quantity) * li.UnitPrice)
}

func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// InvoicePage is the line-item table extracted from one physical page.
// Ordinals are dense starting at 1 and follow capture order.
type InvoicePage struct {
	Ordinal int        `json:"page"`
	Items   []LineItem `json:"items"`
}

// Summary holds the financial totals from the document footer. A nil Summary
// means the source document had no extractable footer, which is distinct from
// zeroed totals.
type Summary struct {
	VAT7       *float64 `json:"vat_7,omitempty"`
	VAT19      *float64 `json:"vat_19,omitempty"`
	TotalVAT   *float64 `json:"total_vat,omitempty"`
	TotalNet   *float64 `json:"total_net,omitempty"`
	TotalGross *float64 `json:"total_gross,omitempty"`
}

// Consistent reports whether total_net + total_vat matches total_gross within
// tolerance. Summaries missing any of the three totals are not checkable and
// pass.
func (s *Summary) Consistent() bool {
	if s == nil || s.TotalNet == nil || s.TotalVAT == nil || s.TotalGross == nil {
		return true
	}
	return math.Abs(*s.TotalNet+*s.TotalVAT-*s.TotalGross) <= SummaryTolerance
}

type Meta map[string]string

// InvoiceDraft is the aggregated, not yet persisted result of one scan.
type InvoiceDraft struct {
	Meta    Meta          `json:"invoice_meta"`
	Pages   []InvoicePage `json:"invoice_data"`
	Summary *Summary      `json:"invoice_summary,omitempty"`
}

// Invoice is one scanned document owned by an account, possibly spanning
// multiple physical pages.
type Invoice struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"account_id"`
	AccountName string        `json:"account_name,omitempty"`
	AccountCode string        `json:"account_code,omitempty"`
	Status      InvoiceStatus `json:"status"`
	Meta        Meta          `json:"invoice_meta"`
	Pages       []InvoicePage `json:"invoice_data"`
	Summary     *Summary      `json:"invoice_summary,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PageImage is the stored reference to one captured page image. The bytes
// live in object storage under StorageKey; the row only carries metadata.
type PageImage struct {
	ID           string    `json:"id"`
	InvoiceID    string    `json:"invoice_id"`
	StorageKey   string    `json:"storage_key"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	PageNumber   int       `json:"page_number"`
	CreatedAt    time.Time `json:"created_at"`
}
