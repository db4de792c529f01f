package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aliaskarov/proxypanel/internal/api/httpx"
	"github.com/aliaskarov/proxypanel/internal/inventory"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
	"github.com/aliaskarov/proxypanel/internal/services"
)

// writeServiceError translates workflow errors into API responses. Raw
// storage errors never reach the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrDescriptionRequired),
		errors.Is(err, services.ErrActorRequired):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
	case errors.Is(err, repo.ErrAccountNotFound):
		httpx.WriteError(w, http.StatusNotFound, "account_not_found", "account not found", nil)
	case errors.Is(err, repo.ErrNoRows):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, repo.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusPaymentRequired, "insufficient_funds", "insufficient funds", nil)
	case errors.Is(err, repo.ErrAlreadyExists):
		httpx.WriteError(w, http.StatusConflict, "already_exists", "already exists", nil)
	case errors.Is(err, services.ErrInvalidStateTransition),
		errors.Is(err, repo.ErrDuplicateReference):
		httpx.WriteError(w, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, inventory.ErrResourceUnavailable):
		httpx.WriteError(w, http.StatusConflict, "resource_unavailable", "no matching proxy available", nil)
	case errors.Is(err, repo.ErrAccountFrozen):
		httpx.WriteError(w, http.StatusLocked, "account_frozen", "account frozen pending review", nil)
	case errors.Is(err, services.ErrLedgerWriteFailed):
		httpx.WriteError(w, http.StatusServiceUnavailable, "ledger_write_failed", "temporary failure, retry the request", nil)
	case errors.Is(err, repo.ErrIntegrityViolation):
		slog.Error("integrity violation surfaced to API", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "integrity_violation", "ledger integrity violation, operator review required", nil)
	default:
		slog.Error("unhandled service error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
