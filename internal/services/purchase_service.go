package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/inventory"
	"github.com/aliaskarov/proxypanel/internal/models"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
)

// PurchaseResult pairs the debit with the inventory allocation it paid for.
type PurchaseResult struct {
	Transaction  models.Transaction `json:"transaction"`
	AllocationID string             `json:"allocation_id"`
}

// PurchaseService charges a wallet and allocates a proxy as one unit.
// Reservation happens before the charge: a paid-but-unallocated purchase is
// the failure mode we refuse to have, a reserved-but-unpaid one we can
// compensate by releasing.
type PurchaseService struct {
	ledger    *LedgerService
	allocator inventory.Allocator
}

func NewPurchaseService(l *LedgerService, a inventory.Allocator) *PurchaseService {
	return &PurchaseService{ledger: l, allocator: a}
}

func (s *PurchaseService) Purchase(ctx context.Context, accountID string, sel inventory.Selector, price decimal.Decimal, description string) (PurchaseResult, error) {
	if !price.IsPositive() {
		return PurchaseResult{}, fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}

	allocationID, err := s.allocator.Reserve(ctx, sel)
	if err != nil {
		if errors.Is(err, inventory.ErrResourceUnavailable) {
			return PurchaseResult{}, err
		}
		return PurchaseResult{}, fmt.Errorf("%w: %v", inventory.ErrResourceUnavailable, err)
	}

	refID := allocationID
	t, err := s.ledger.Append(ctx, repo.AppendInput{
		AccountID:        accountID,
		Type:             models.TxnPurchase,
		Amount:           price.Neg(),
		Description:      description,
		Actor:            models.ActorSystem,
		ReferenceID:      &refID,
		DisallowNegative: true,
	})
	if err != nil {
		s.release(ctx, allocationID)
		switch {
		case errors.Is(err, repo.ErrInsufficientFunds),
			errors.Is(err, repo.ErrAccountNotFound),
			errors.Is(err, repo.ErrAccountFrozen),
			errors.Is(err, repo.ErrIntegrityViolation):
			return PurchaseResult{}, err
		default:
			return PurchaseResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
		}
	}

	return PurchaseResult{Transaction: t, AllocationID: allocationID}, nil
}

// release compensates a reservation whose charge did not commit. A failed
// release leaves an orphaned allocation; that is logged loudly rather than
// surfaced, since the caller's operation already failed for its own reason.
func (s *PurchaseService) release(ctx context.Context, allocationID string) {
	if err := s.allocator.Release(ctx, allocationID); err != nil {
		slog.Error("allocation release failed after debit failure",
			"allocation_id", allocationID, "err", err)
	}
}
