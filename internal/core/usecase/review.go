package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

// Review edit model: pure, synchronous recomputation rules applied while a
// reviewer corrects the extracted line items. Kept server-side so every
// client shares one implementation of the derivation rules.

// Editable field names accepted by ApplyFieldEdit.
const (
	FieldProductCode     = "product_code"
	FieldDescription     = "description"
	FieldPackages        = "packages"
	FieldUnitsPerPackage = "units_per_package"
	FieldQuantity        = "quantity"
	FieldUnitPrice       = "unit_price"
	FieldVATRate         = "vat_rate"
)

// ApplyFieldEdit sets one field from its string form and reapplies the
// derivation rules whenever a quantity-bearing field was touched. Other
// fields pass through unchanged.
func ApplyFieldEdit(item domain.LineItem, field, value string) (domain.LineItem, error) {
	switch field {
	case FieldProductCode:
		item.ProductCode = value
	case FieldDescription:
		item.Description = value
	case FieldPackages:
		item.Packages = parseIntField(value)
		item.Recompute()
	case FieldUnitsPerPackage:
		item.UnitsPerPackage = parseIntField(value)
		item.Recompute()
	case FieldQuantity:
		// Quantity is derived; editing it still re-runs the derivation so the
		// stored value never drifts from packages x units.
		item.Recompute()
	case FieldUnitPrice:
		item.UnitPrice = parseDecimalField(value)
		item.Recompute()
	case FieldVATRate:
		if strings.TrimSpace(value) == "" {
			item.VATRate = nil
		} else {
			rate := parseIntField(value)
			item.VATRate = &rate
		}
	default:
		return item, domain.WrapError(domain.ErrInvalidInput, "edit line item", fmt.Errorf("unknown field %q", field))
	}
	return item, nil
}

// AddItem inserts a zeroed line item immediately after the given index. The
// new row carries a VAT rate only when a sibling anywhere on the invoice has
// one: presence is copied, not value, so the row's shape matches the table.
func AddItem(items []domain.LineItem, afterIndex int, pages []domain.InvoicePage) []domain.LineItem {
	zero := 0.0
	fresh := domain.LineItem{ProductCode: "-", OriginalNet: &zero}
	if hasVATRate(pages) {
		defaultRate := 19
		fresh.VATRate = &defaultRate
	}

	pos := afterIndex + 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(items) {
		pos = len(items)
	}

	out := make([]domain.LineItem, 0, len(items)+1)
	out = append(out, items[:pos]...)
	out = append(out, fresh)
	out = append(out, items[pos:]...)
	return out
}

// DeleteItem removes one line item. Any index is tolerated and there is no
// minimum-row constraint.
func DeleteItem(items []domain.LineItem, index int) []domain.LineItem {
	if index < 0 || index >= len(items) {
		return items
	}
	out := make([]domain.LineItem, 0, len(items)-1)
	out = append(out, items[:index]...)
	out = append(out, items[index+1:]...)
	return out
}

// Reconciliation compares the running net sum of all line items against the
// model-reported total. Match is a derived display signal, never stored.
type Reconciliation struct {
	ComputedNet float64  `json:"computed_net"`
	ReportedNet *float64 `json:"reported_net,omitempty"`
	Match       bool     `json:"match"`
}

func Reconcile(pages []domain.InvoicePage, summary *domain.Summary) Reconciliation {
	sum := 0.0
	for _, page := range pages {
		for _, item := range page.Items {
			sum += item.NetAmount
		}
	}
	rec := Reconciliation{ComputedNet: domain.Round3(sum)}

	if summary == nil || summary.TotalNet == nil {
		return rec
	}
	rec.ReportedNet = summary.TotalNet
	diff := rec.ComputedNet - *summary.TotalNet
	if diff < 0 {
		diff = -diff
	}
	rec.Match = diff <= domain.SummaryTolerance
	return rec
}

func hasVATRate(pages []domain.InvoicePage) bool {
	for _, page := range pages {
		for _, item := range page.Items {
			if item.VATRate != nil {
				return true
			}
		}
	}
	return false
}

func parseIntField(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

// parseDecimalField tolerates comma decimal separators as typed on European
// keyboards.
func parseDecimalField(value string) float64 {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0
	}
	return f
}
