package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/api/httpx"
	"github.com/aliaskarov/proxypanel/internal/inventory"
	"github.com/aliaskarov/proxypanel/internal/middleware"
	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/services"
)

// WalletHandler serves the authenticated user's own wallet.
type WalletHandler struct {
	Users     *services.UserService
	Ledger    *services.LedgerService
	Deposits  *services.DepositService
	Purchases *services.PurchaseService
}

func NewWalletHandler(us *services.UserService, ls *services.LedgerService, ds *services.DepositService, ps *services.PurchaseService) *WalletHandler {
	return &WalletHandler{Users: us, Ledger: ls, Deposits: ds, Purchases: ps}
}

func (h *WalletHandler) account(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return models.Account{}, false
	}
	acc, err := h.Users.AccountFor(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return models.Account{}, false
	}
	return acc, true
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.account(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, acc)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.account(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	txns, err := h.Ledger.ListByAccount(r.Context(), acc.ID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txns)
}

type createDepositReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *WalletHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.account(w, r)
	if !ok {
		return
	}
	var req createDepositReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "bad request body", nil)
		return
	}
	d, err := h.Deposits.Create(r.Context(), acc.ID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

func (h *WalletHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.account(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	ds, err := h.Deposits.ListByAccount(r.Context(), acc.ID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ds)
}

type purchaseReq struct {
	Selector    inventory.Selector `json:"selector"`
	Price       decimal.Decimal    `json:"price"`
	Description string             `json:"description"`
}

func (h *WalletHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.account(w, r)
	if !ok {
		return
	}
	var req purchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "bad request body", nil)
		return
	}
	desc := req.Description
	if desc == "" {
		desc = "proxy purchase"
	}
	res, err := h.Purchases.Purchase(r.Context(), acc.ID, req.Selector, req.Price, desc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func paging(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
