package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
)

type invoicePayload struct {
	AccountCode string               `json:"account_code"`
	Meta        domain.Meta          `json:"invoice_meta"`
	Pages       []domain.InvoicePage `json:"invoice_data"`
	Summary     *domain.Summary      `json:"invoice_summary,omitempty"`
}

// saveInvoice accepts a multipart request: a JSON "payload" field carrying
// the reviewed draft plus the page images under "images".
func (rt *Router) saveInvoice(w http.ResponseWriter, r *http.Request) {
	payload, images, err := readInvoiceUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoice, err := rt.invoices.Save(r.Context(), &domain.InvoiceDraft{
		Meta:    payload.Meta,
		Pages:   payload.Pages,
		Summary: payload.Summary,
	}, payload.AccountCode, images)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (rt *Router) updateInvoice(w http.ResponseWriter, r *http.Request) {
	payload, images, err := readInvoiceUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoice, err := rt.invoices.Update(r.Context(), r.PathValue("id"), &domain.InvoiceDraft{
		Meta:    payload.Meta,
		Pages:   payload.Pages,
		Summary: payload.Summary,
	}, images)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (rt *Router) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := rt.invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (rt *Router) listInvoices(w http.ResponseWriter, r *http.Request) {
	accountCode := r.URL.Query().Get("account_code")
	if accountCode == "" {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "list invoices", errors.New("account_code query parameter is required")))
		return
	}

	invoices, err := rt.invoices.ListByAccount(r.Context(), accountCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (rt *Router) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := rt.invoices.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) listInvoiceImages(w http.ResponseWriter, r *http.Request) {
	images, err := rt.invoices.ListImages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if images == nil {
		images = []domain.PageImage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (rt *Router) getInvoiceImage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get invoice image", errors.New("page must be a positive integer")))
		return
	}

	image, data, err := rt.invoices.OpenImage(r.Context(), r.PathValue("id"), page)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", image.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", image.OriginalName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) exportInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := rt.invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	workbook, err := rt.exporter.Export(invoice)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, "xlsx")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice_"+invoice.ID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func readInvoiceUpload(w http.ResponseWriter, r *http.Request) (*invoicePayload, []ports.PageInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanRequestBytes)
	if err := r.ParseMultipartForm(maxScanRequestBytes); err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "read invoice upload", errors.New("invalid multipart request"))
	}

	raw := r.FormValue("payload")
	if raw == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "read invoice upload", errors.New("multipart field 'payload' is required"))
	}
	var payload invoicePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "read invoice upload", fmt.Errorf("parse payload: %w", err))
	}

	var images []ports.PageInput
	if headers := r.MultipartForm.File["images"]; len(headers) > 0 {
		var err error
		images, err = readPageFiles(headers)
		if err != nil {
			return nil, nil, err
		}
	}
	return &payload, images, nil
}
