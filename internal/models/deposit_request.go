package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositCompleted DepositStatus = "completed"
	DepositCancelled DepositStatus = "cancelled"
	DepositFailed    DepositStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s DepositStatus) Terminal() bool {
	return s == DepositCompleted || s == DepositCancelled || s == DepositFailed
}

// DepositRequest is a user's declared intent to add funds. It stays
// independent of the ledger until an operator marks it completed, at which
// point exactly one deposit transaction referencing it is appended.
type DepositRequest struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           DepositStatus   `json:"status"`
	PaymentReference string          `json:"payment_reference"`
	AdminNotes       string          `json:"admin_notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
