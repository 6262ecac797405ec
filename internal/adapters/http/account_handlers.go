package httpadapter

import (
	"net/http"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
)

type accountRequest struct {
	Name             string `json:"name"`
	Code             string `json:"code"`
	MonthlyScanLimit int    `json:"monthly_scan_limit"`
}

func (rt *Router) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := rt.accounts.Create(r.Context(), req.Name, req.Code, req.MonthlyScanLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (rt *Router) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := rt.accounts.Update(r.Context(), r.PathValue("id"), req.Name, req.Code, req.MonthlyScanLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (rt *Router) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := rt.accounts.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := rt.accounts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (rt *Router) accountStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.quota.Stats(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
