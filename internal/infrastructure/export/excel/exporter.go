package excel

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

const sheetName = "Invoice"

// Exporter renders one invoice as an XLSX workbook: meta block, one row per
// line item across all pages, totals block.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(invoice *domain.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	row := 1
	setCell(f, row, 0, "Invoice")
	_ = f.SetCellStyle(sheetName, cell(0, row), cell(0, row), bold)
	row += 2

	for _, key := range sortedMetaKeys(invoice.Meta) {
		setCell(f, row, 0, key)
		setCell(f, row, 1, invoice.Meta[key])
		row++
	}
	setCell(f, row, 0, "Account")
	setCell(f, row, 1, fmt.Sprintf("%s (%s)", invoice.AccountName, invoice.AccountCode))
	row += 2

	headers := []string{"Product Code", "Description", "Packages", "Units/Package", "Quantity", "Unit Price", "Net Amount", "VAT %"}
	for col, h := range headers {
		setCell(f, row, col, h)
	}
	_ = f.SetCellStyle(sheetName, cell(0, row), cell(len(headers)-1, row), bold)
	row++

	for _, page := range invoice.Pages {
		for _, item := range page.Items {
			setCell(f, row, 0, item.ProductCode)
			setCell(f, row, 1, item.Description)
			setCell(f, row, 2, item.Packages)
			setCell(f, row, 3, item.UnitsPerPackage)
			setCell(f, row, 4, item.Quantity)
			setCell(f, row, 5, item.UnitPrice)
			setCell(f, row, 6, item.NetAmount)
			if item.VATRate != nil {
				setCell(f, row, 7, *item.VATRate)
			}
			row++
		}
	}

	if s := invoice.Summary; s != nil {
		row++
		writeTotal(f, &row, bold, "VAT 7%", s.VAT7)
		writeTotal(f, &row, bold, "VAT 19%", s.VAT19)
		writeTotal(f, &row, bold, "Total VAT", s.TotalVAT)
		writeTotal(f, &row, bold, "Total Net", s.TotalNet)
		writeTotal(f, &row, bold, "Total Gross", s.TotalGross)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTotal(f *excelize.File, row *int, style int, label string, value *float64) {
	if value == nil {
		return
	}
	setCell(f, *row, 5, label)
	_ = f.SetCellStyle(sheetName, cell(5, *row), cell(5, *row), style)
	setCell(f, *row, 6, *value)
	*row = *row + 1
}

func setCell(f *excelize.File, row, col int, value any) {
	_ = f.SetCellValue(sheetName, cell(col, row), value)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func sortedMetaKeys(meta domain.Meta) []string {
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
