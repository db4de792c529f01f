package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/api/httpx"
	"github.com/aliaskarov/proxypanel/internal/api/validate"
	"github.com/aliaskarov/proxypanel/internal/middleware"
	"github.com/aliaskarov/proxypanel/internal/models"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
	"github.com/aliaskarov/proxypanel/internal/services"
)

// AdminHandler exposes operator-only ledger operations.
type AdminHandler struct {
	Users     *services.UserService
	Ledger    *services.LedgerService
	Deposits  *services.DepositService
	Reporting *services.ReportingService
}

func NewAdminHandler(us *services.UserService, ls *services.LedgerService, ds *services.DepositService, rs *services.ReportingService) *AdminHandler {
	return &AdminHandler{Users: us, Ledger: ls, Deposits: ds, Reporting: rs}
}

type transitionReq struct {
	Status     models.DepositStatus `json:"status"`
	AdminNotes string               `json:"admin_notes"`
}

type transitionResp struct {
	Deposit     models.DepositRequest `json:"deposit"`
	Transaction *models.Transaction   `json:"transaction,omitempty"`
}

func (h *AdminHandler) TransitionDeposit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "bad request body", nil)
		return
	}
	if e := validate.Required("status", string(req.Status)); e != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "validation failed", validate.Errs{*e})
		return
	}
	actor, _ := middleware.UserID(r.Context())
	d, txn, err := h.Deposits.Transition(r.Context(), id, req.Status, req.AdminNotes, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transitionResp{Deposit: d, Transaction: txn})
}

type adjustmentReq struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Refund      bool            `json:"refund"`
}

func (h *AdminHandler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "bad request body", nil)
		return
	}
	if e := validate.Required("account_id", req.AccountID); e != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "validation failed", validate.Errs{*e})
		return
	}
	typ := models.TxnAdjustment
	if req.Refund {
		typ = models.TxnRefund
	}
	actor, _ := middleware.UserID(r.Context())
	txn, err := h.Ledger.Adjust(r.Context(), req.AccountID, req.Amount, req.Description, actor, typ)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, txn)
}

func (h *AdminHandler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	f := repo.SummaryFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Type:      models.TransactionType(r.URL.Query().Get("type")),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339", nil)
			return
		}
		f.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339", nil)
			return
		}
		f.To = t
	}
	sum, err := h.Reporting.Summarize(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *AdminHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reporting.VerifyAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}
