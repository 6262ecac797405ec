package openrouter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

// The model output is an untrusted external schema: fields may be missing,
// numbers may arrive as strings with comma decimals or currency signs, and
// the JSON object may be wrapped in prose or markdown fences. Everything is
// coerced into the typed domain shape here and nowhere else.

const rawTextLimit = 600

// parseExtraction carves the JSON object out of the raw completion text and
// coerces it into a per-page draft. Parse failures carry a truncated copy of
// the raw text for diagnostics and are never silently defaulted.
func parseExtraction(raw string) (*domain.InvoiceDraft, error) {
	carved, ok := extractJSONObject(raw)
	if !ok {
		return nil, domain.WrapError(domain.ErrExtraction, "parse model reply", fmt.Errorf("no JSON object in reply: %s", truncate(raw)))
	}

	var payload wirePayload
	if err := json.Unmarshal([]byte(carved), &payload); err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "parse model reply", fmt.Errorf("%w; raw: %s", err, truncate(raw)))
	}
	return payload.toDomain(), nil
}

// extractJSONObject locates the first '{' through the last '}'. Models wrap
// their JSON in prose even when told not to.
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func truncate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= rawTextLimit {
		return raw
	}
	// Back off to a rune boundary so the diagnostic stays valid UTF-8.
	cut := rawTextLimit
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut] + "..."
}

type wirePayload struct {
	Meta    map[string]any `json:"invoice_meta"`
	Data    wirePages      `json:"invoice_data"`
	Summary *wireSummary   `json:"invoice_summary"`
}

func (p *wirePayload) toDomain() *domain.InvoiceDraft {
	draft := &domain.InvoiceDraft{Meta: domain.Meta{}}
	for key, value := range p.Meta {
		draft.Meta[key] = stringifyMetaValue(value)
	}
	for _, page := range p.Data {
		items := make([]domain.LineItem, 0, len(page.Items))
		for _, item := range page.Items {
			items = append(items, item.toDomain())
		}
		draft.Pages = append(draft.Pages, domain.InvoicePage{Ordinal: int(page.Page), Items: items})
	}
	draft.Summary = p.Summary.toDomain()
	return draft
}

type wirePage struct {
	Page  flexInt    `json:"page"`
	Items []wireItem `json:"items"`
}

type wirePages []wirePage

// UnmarshalJSON tolerates both shapes seen in the wild: the prompted
// [{"page":1,"items":[...]}] and a bare item array.
func (p *wirePages) UnmarshalJSON(data []byte) error {
	var pages []wirePage
	if err := json.Unmarshal(data, &pages); err == nil && pagesHaveItems(pages) {
		*p = pages
		return nil
	}

	var items []wireItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("invoice_data is neither a page list nor an item list: %w", err)
	}
	*p = wirePages{{Page: 1, Items: items}}
	return nil
}

func pagesHaveItems(pages []wirePage) bool {
	for _, page := range pages {
		if page.Items != nil {
			return true
		}
	}
	return len(pages) == 0
}

type wireItem struct {
	ProductCode flexString `json:"ArtikelNumber"`
	Description flexString `json:"ArtikelBez"`
	Packages    flexInt    `json:"Kolli"`
	PerPackage  flexInt    `json:"Inhalt"`
	Quantity    flexInt    `json:"Menge"`
	UnitPrice   flexFloat  `json:"Preis"`
	Net         flexFloat  `json:"Netto"`
	VATRate     *flexInt   `json:"MwSt"`
}

func (w wireItem) toDomain() domain.LineItem {
	original := float64(w.Net)
	item := domain.LineItem{
		ProductCode:     string(w.ProductCode),
		Description:     string(w.Description),
		Packages:        int(w.Packages),
		UnitsPerPackage: int(w.PerPackage),
		Quantity:        int(w.Quantity),
		UnitPrice:       float64(w.UnitPrice),
		NetAmount:       float64(w.Net),
		OriginalNet:     &original,
	}
	if w.VATRate != nil {
		rate := int(*w.VATRate)
		item.VATRate = &rate
	}
	return item
}

type wireSummary struct {
	VAT7       *flexFloat `json:"vat_7"`
	VAT19      *flexFloat `json:"vat_19"`
	TotalVAT   *flexFloat `json:"total_vat"`
	TotalNet   *flexFloat `json:"total_net"`
	TotalGross *flexFloat `json:"total_gross"`

	// Legacy keys from earlier prompt revisions.
	Subtotal  *flexFloat `json:"Zwischensumme"`
	LegacyVAT *flexFloat `json:"MwSt"`
	Total     *flexFloat `json:"Gesamtbetrag"`
}

func (s *wireSummary) toDomain() *domain.Summary {
	if s == nil {
		return nil
	}
	out := &domain.Summary{
		VAT7:       s.VAT7.float(),
		VAT19:      s.VAT19.float(),
		TotalVAT:   coalesce(s.TotalVAT, s.LegacyVAT),
		TotalNet:   coalesce(s.TotalNet, s.Subtotal),
		TotalGross: coalesce(s.TotalGross, s.Total),
	}
	// An all-empty footer is treated as absent, not as zeroed totals.
	if out.VAT7 == nil && out.VAT19 == nil && out.TotalVAT == nil && out.TotalNet == nil && out.TotalGross == nil {
		return nil
	}
	return out
}

func coalesce(primary, fallback *flexFloat) *float64 {
	if v := primary.float(); v != nil {
		return v
	}
	return fallback.float()
}

// flexFloat accepts JSON numbers and numeric strings, tolerating comma
// decimal separators and stray currency signs.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexFloat(v)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("numeric field: %s", truncate(s))
	}
	*f = flexFloat(parseLooseNumber(str))
	return nil
}

func (f *flexFloat) float() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// flexInt accepts JSON integers, floats that carry no fraction, and numeric
// strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var ff flexFloat
	if err := ff.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = flexInt(ff)
	return nil
}

// flexString accepts strings and bare numbers (product codes are often
// emitted unquoted).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*f = flexString(str)
		return nil
	}
	*f = flexString(strings.Trim(s, `"`))
	return nil
}

func parseLooseNumber(s string) float64 {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "€$ ")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	// "1.234,56" -> "1234.56"; "1,5" -> "1.5"
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

func stringifyMetaValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
