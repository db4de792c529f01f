package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/models"
)

// AppendInput carries everything the ledger needs to append one transaction.
// The store computes balance_before/balance_after itself, inside the
// per-account critical section.
type AppendInput struct {
	AccountID   string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	Actor       string
	ReferenceID *string
	Metadata    map[string]any

	// DisallowNegative rejects the append with ErrInsufficientFunds when the
	// resulting balance would drop below zero. The check runs inside the same
	// critical section as the balance write, so concurrent debits cannot both
	// pass it.
	DisallowNegative bool
}

// SummaryFilter narrows Summarize. Zero values mean "no filter".
type SummaryFilter struct {
	AccountID string
	Type      models.TransactionType
	From      time.Time
	To        time.Time
}

// TypeSummary aggregates completed transactions of one type.
type TypeSummary struct {
	Count int64           `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// LedgerSummary is the reporting view over completed transactions. Derived
// data only; never consulted for write decisions.
type LedgerSummary struct {
	Counts      int64                                  `json:"count"`
	PerType     map[models.TransactionType]TypeSummary `json:"per_type"`
	TotalVolume decimal.Decimal                        `json:"total_volume"`
}

type Accounts interface {
	Create(ctx context.Context, userID string) (models.Account, error)
	Get(ctx context.Context, id string) (models.Account, error)
	GetByUser(ctx context.Context, userID string) (models.Account, error)
	// SetStatus is for soft-deactivation and freeze/unfreeze only. Balance is
	// written exclusively by Ledger.Append.
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
}

// Ledger is the only mutation path for balances. Append executes the whole
// read-compute-insert-write sequence as one serialized unit per account.
type Ledger interface {
	Append(ctx context.Context, in AppendInput) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	// GetByReference returns the completed transaction referencing the given
	// deposit request or purchase order, if any.
	GetByReference(ctx context.Context, referenceID string) (models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
	Summarize(ctx context.Context, f SummaryFilter) (LedgerSummary, error)
	// LastCompleted returns the newest completed transaction for the account,
	// used by the reporting chain verification.
	LastCompleted(ctx context.Context, accountID string) (models.Transaction, error)
}

type DepositRequests interface {
	Create(ctx context.Context, r models.DepositRequest) (models.DepositRequest, error)
	Get(ctx context.Context, id string) (models.DepositRequest, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.DepositRequest, error)
	// MarkTerminal moves a pending request to a terminal status. It only
	// touches rows still in pending state and returns ErrNoRows otherwise,
	// which closes the double-transition race.
	MarkTerminal(ctx context.Context, id string, status models.DepositStatus, adminNotes string) (models.DepositRequest, error)
}

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
