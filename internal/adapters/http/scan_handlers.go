package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
	"github.com/okibo/invoice-analyzer/internal/core/usecase"
)

// maxScanRequestBytes bounds one multipart scan upload (all pages together).
const maxScanRequestBytes = 64 << 20

func (rt *Router) createScan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxScanRequestBytes)
	if err := r.ParseMultipartForm(maxScanRequestBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return
	}

	accountCode := r.FormValue("account_code")
	model := r.FormValue("model")

	pages, err := readPageFiles(r.MultipartForm.File["images"])
	if err != nil {
		writeError(w, err)
		return
	}

	draft, err := rt.scanner.Scan(r.Context(), accountCode, model, pages)
	if err != nil {
		rt.recordScanOutcome(err, len(pages), accountCode, start)
		writeError(w, err)
		return
	}

	rt.recordScanOutcome(nil, len(pages), accountCode, start)
	writeJSON(w, http.StatusOK, draft)
}

func (rt *Router) recordScanOutcome(err error, pages int, accountCode string, start time.Time) {
	if rt.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrQuotaExceeded):
		status = "quota_rejected"
		rt.metrics.RecordQuotaRejection(serviceName, accountCode)
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrAccountNotFound):
		status = "rejected"
	default:
		status = "failed"
	}
	rt.metrics.RecordScan(serviceName, status, pages, time.Since(start))
}

func readPageFiles(headers []*multipart.FileHeader) ([]ports.PageInput, error) {
	if len(headers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read scan upload", errors.New("multipart field 'images' is required"))
	}

	pages := make([]ports.PageInput, 0, len(headers))
	for i, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read scan upload", fmt.Errorf("open page %d: %w", i+1, err))
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read scan upload", fmt.Errorf("read page %d: %w", i+1, err))
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		pages = append(pages, ports.PageInput{
			Data:     data,
			MimeType: mimeType,
			Filename: header.Filename,
		})
	}
	return pages, nil
}

type reviewEdit struct {
	PageIndex int    `json:"page_index"`
	ItemIndex int    `json:"item_index"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

type reviewAdd struct {
	PageIndex  int `json:"page_index"`
	AfterIndex int `json:"after_index"`
}

type reviewRemove struct {
	PageIndex int `json:"page_index"`
	Index     int `json:"index"`
}

type reviewRequest struct {
	Pages   []domain.InvoicePage `json:"invoice_data"`
	Summary *domain.Summary      `json:"invoice_summary,omitempty"`
	Edits   []reviewEdit         `json:"edits,omitempty"`
	Add     *reviewAdd           `json:"add,omitempty"`
	Remove  *reviewRemove        `json:"remove,omitempty"`
}

type reviewResponse struct {
	Pages          []domain.InvoicePage   `json:"invoice_data"`
	Reconciliation usecase.Reconciliation `json:"reconciliation"`
}

// recomputeReview is the single shared implementation of the edit rules:
// every client sends the rows plus the pending operation and receives the
// recomputed rows and the reconciliation signal back.
func (rt *Router) recomputeReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pages := req.Pages
	for _, edit := range req.Edits {
		page, err := pageAt(pages, edit.PageIndex)
		if err != nil {
			writeError(w, err)
			return
		}
		if edit.ItemIndex < 0 || edit.ItemIndex >= len(page.Items) {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "apply edit", fmt.Errorf("item index %d out of range", edit.ItemIndex)))
			return
		}
		item, err := usecase.ApplyFieldEdit(page.Items[edit.ItemIndex], edit.Field, edit.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		page.Items[edit.ItemIndex] = item
	}

	if req.Add != nil {
		page, err := pageAt(pages, req.Add.PageIndex)
		if err != nil {
			writeError(w, err)
			return
		}
		page.Items = usecase.AddItem(page.Items, req.Add.AfterIndex, pages)
	}
	if req.Remove != nil {
		page, err := pageAt(pages, req.Remove.PageIndex)
		if err != nil {
			writeError(w, err)
			return
		}
		page.Items = usecase.DeleteItem(page.Items, req.Remove.Index)
	}

	for i := range pages {
		for j := range pages[i].Items {
			pages[i].Items[j].Recompute()
		}
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		Pages:          pages,
		Reconciliation: usecase.Reconcile(pages, req.Summary),
	})
}

func pageAt(pages []domain.InvoicePage, index int) (*domain.InvoicePage, error) {
	if index < 0 || index >= len(pages) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "apply edit", fmt.Errorf("page index %d out of range", index))
	}
	return &pages[index], nil
}

func decodeJSONBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}
