package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/metrics"
	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/payment"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
)

// DepositService runs the deposit request state machine:
// pending -> completed | cancelled | failed, all terminal.
// Completing a request appends exactly one deposit transaction carrying the
// request id as reference; the unique reference constraint in the ledger is
// what makes "exactly one" hold under races and retries.
type DepositService struct {
	deposits   repo.DepositRequests
	accounts   repo.Accounts
	ledger     *LedgerService
	refGen     payment.ReferenceGenerator
	minDeposit decimal.Decimal
}

func NewDepositService(d repo.DepositRequests, a repo.Accounts, l *LedgerService, g payment.ReferenceGenerator, minDeposit decimal.Decimal) *DepositService {
	return &DepositService{deposits: d, accounts: a, ledger: l, refGen: g, minDeposit: minDeposit}
}

func (s *DepositService) Create(ctx context.Context, accountID string, amount decimal.Decimal) (models.DepositRequest, error) {
	if !amount.IsPositive() {
		return models.DepositRequest{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidAmount)
	}
	if amount.LessThan(s.minDeposit) {
		return models.DepositRequest{}, fmt.Errorf("%w: minimum deposit is %s", ErrInvalidAmount, s.minDeposit)
	}
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return models.DepositRequest{}, err
	}

	ref, err := s.refGen.Generate(acc.ID, amount)
	if err != nil {
		return models.DepositRequest{}, fmt.Errorf("payment reference: %w", err)
	}

	d, err := s.deposits.Create(ctx, models.DepositRequest{
		AccountID:        acc.ID,
		Amount:           amount,
		PaymentReference: ref,
	})
	if err != nil {
		return models.DepositRequest{}, err
	}
	metrics.DepositTransitions.WithLabelValues("pending").Inc()
	return d, nil
}

func (s *DepositService) Get(ctx context.Context, id string) (models.DepositRequest, error) {
	return s.deposits.Get(ctx, id)
}

func (s *DepositService) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.DepositRequest, error) {
	return s.deposits.ListByAccount(ctx, accountID, limit, offset)
}

// Transition moves a pending request to a terminal state. For completed it
// returns the deposit transaction; replaying a transition that already
// completed returns the original transaction and mutates nothing.
func (s *DepositService) Transition(ctx context.Context, requestID string, newStatus models.DepositStatus, adminNotes, actorID string) (models.DepositRequest, *models.Transaction, error) {
	if !newStatus.Terminal() {
		return models.DepositRequest{}, nil, fmt.Errorf("%w: cannot transition to %q", ErrInvalidStateTransition, newStatus)
	}

	d, err := s.deposits.Get(ctx, requestID)
	if err != nil {
		return models.DepositRequest{}, nil, err
	}
	if d.Status.Terminal() {
		return s.replay(ctx, d, newStatus)
	}

	if newStatus != models.DepositCompleted {
		d, err = s.deposits.MarkTerminal(ctx, requestID, newStatus, adminNotes)
		if err != nil {
			if errors.Is(err, repo.ErrNoRows) {
				// Lost a race with another transition.
				if d2, gerr := s.deposits.Get(ctx, requestID); gerr == nil {
					return s.replay(ctx, d2, newStatus)
				}
			}
			return models.DepositRequest{}, nil, err
		}
		metrics.DepositTransitions.WithLabelValues(string(newStatus)).Inc()
		return d, nil, nil
	}

	return s.complete(ctx, d, adminNotes, actorID)
}

func (s *DepositService) complete(ctx context.Context, d models.DepositRequest, adminNotes, actorID string) (models.DepositRequest, *models.Transaction, error) {
	// Crash recovery: a deposit transaction may already exist for this
	// request if a previous attempt died between append and mark.
	if prev, err := s.ledger.GetByReference(ctx, d.ID); err == nil {
		return s.finishMark(ctx, d, prev, adminNotes)
	}

	refID := d.ID
	t, err := s.ledger.Append(ctx, repo.AppendInput{
		AccountID:   d.AccountID,
		Type:        models.TxnDeposit,
		Amount:      d.Amount,
		Description: "deposit " + d.PaymentReference,
		Actor:       actorID,
		ReferenceID: &refID,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateReference) {
			// A concurrent completion appended first; adopt its result.
			if prev, gerr := s.ledger.GetByReference(ctx, d.ID); gerr == nil {
				return s.finishMark(ctx, d, prev, adminNotes)
			}
		}
		// The request stays pending: never mark completed without a
		// transaction backing it.
		return models.DepositRequest{}, nil, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}
	return s.finishMark(ctx, d, t, adminNotes)
}

func (s *DepositService) finishMark(ctx context.Context, d models.DepositRequest, t models.Transaction, adminNotes string) (models.DepositRequest, *models.Transaction, error) {
	marked, err := s.deposits.MarkTerminal(ctx, d.ID, models.DepositCompleted, adminNotes)
	if err != nil {
		if errors.Is(err, repo.ErrNoRows) {
			// Already marked by the competing completion.
			if d2, gerr := s.deposits.Get(ctx, d.ID); gerr == nil && d2.Status == models.DepositCompleted {
				return d2, &t, nil
			}
		}
		slog.Error("deposit transaction appended but request not marked",
			"request_id", d.ID, "transaction_id", t.ID, "err", err)
		return models.DepositRequest{}, nil, fmt.Errorf("mark deposit completed: %w", err)
	}
	metrics.DepositTransitions.WithLabelValues(string(models.DepositCompleted)).Inc()
	return marked, &t, nil
}

// replay handles transitions against an already-terminal request: replaying
// the same outcome is a safe no-op, anything else is rejected.
func (s *DepositService) replay(ctx context.Context, d models.DepositRequest, newStatus models.DepositStatus) (models.DepositRequest, *models.Transaction, error) {
	if d.Status != newStatus {
		return models.DepositRequest{}, nil, fmt.Errorf("%w: request is %s", ErrInvalidStateTransition, d.Status)
	}
	if d.Status == models.DepositCompleted {
		if t, err := s.ledger.GetByReference(ctx, d.ID); err == nil {
			return d, &t, nil
		}
	}
	return d, nil, nil
}
