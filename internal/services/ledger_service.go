package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/metrics"
	"github.com/aliaskarov/proxypanel/internal/models"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
	"github.com/aliaskarov/proxypanel/internal/worker"
)

// LedgerService fronts the append-only ledger. All balance mutations in the
// system go through Append; the adjustment/refund workflow lives here too
// since it is a thin wrapper over it.
type LedgerService struct {
	ledger repo.Ledger
	audit  repo.AuditLogs
	wp     *worker.Pool

	// allowNegativeAdjustments is the configurable operator-override policy:
	// when false, adjustments and refunds may not drive a balance negative.
	allowNegativeAdjustments bool
}

func NewLedgerService(l repo.Ledger, a repo.AuditLogs, wp *worker.Pool, allowNegativeAdjustments bool) *LedgerService {
	return &LedgerService{ledger: l, audit: a, wp: wp, allowNegativeAdjustments: allowNegativeAdjustments}
}

// Append validates and commits one ledger entry. Sign policy is the caller's
// business; this layer only refuses what no workflow may ever do.
func (s *LedgerService) Append(ctx context.Context, in repo.AppendInput) (models.Transaction, error) {
	switch in.Type {
	case models.TxnDeposit, models.TxnPurchase, models.TxnAdjustment, models.TxnRefund:
	default:
		return models.Transaction{}, fmt.Errorf("unknown transaction type %q", in.Type)
	}
	if in.Actor == "" {
		in.Actor = models.ActorSystem
	}

	t, err := s.ledger.Append(ctx, in)
	if err != nil {
		metrics.TransactionsFailed.Inc()
		if errors.Is(err, repo.ErrIntegrityViolation) {
			metrics.IntegrityViolations.Inc()
		}
		return models.Transaction{}, err
	}

	metrics.TransactionsTotal.WithLabelValues(string(t.Type)).Inc()
	s.auditAsync(t.ID, "appended", map[string]any{
		"type":   string(t.Type),
		"amount": t.Amount.String(),
		"actor":  t.Actor,
	})
	return t, nil
}

// Adjust is the operator/system balance-change path: admin adjustments and
// refunds. Requires full attribution; zero amounts carry no information and
// are rejected instead of logged.
func (s *LedgerService) Adjust(ctx context.Context, accountID string, amount decimal.Decimal, description, actorID string, typ models.TransactionType) (models.Transaction, error) {
	if typ != models.TxnAdjustment && typ != models.TxnRefund {
		return models.Transaction{}, fmt.Errorf("adjust cannot produce %q transactions", typ)
	}
	if amount.IsZero() {
		return models.Transaction{}, fmt.Errorf("%w: zero-amount adjustment", ErrInvalidAmount)
	}
	if description == "" {
		return models.Transaction{}, ErrDescriptionRequired
	}
	if actorID == "" {
		return models.Transaction{}, ErrActorRequired
	}

	return s.Append(ctx, repo.AppendInput{
		AccountID:        accountID,
		Type:             typ,
		Amount:           amount,
		Description:      description,
		Actor:            actorID,
		DisallowNegative: !s.allowNegativeAdjustments,
	})
}

func (s *LedgerService) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return s.ledger.GetByID(ctx, id)
}

func (s *LedgerService) GetByReference(ctx context.Context, referenceID string) (models.Transaction, error) {
	return s.ledger.GetByReference(ctx, referenceID)
}

func (s *LedgerService) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	return s.ledger.ListByAccount(ctx, accountID, limit, offset)
}

func (s *LedgerService) auditAsync(entityID, action string, details map[string]any) {
	id := entityID
	log := models.AuditLog{
		EntityType: "transaction",
		EntityID:   &id,
		Action:     action,
		Details:    details,
	}
	if s.wp == nil {
		_ = s.audit.Create(context.Background(), log)
		return
	}
	s.wp.Submit(func() { _ = s.audit.Create(context.Background(), log) })
}
