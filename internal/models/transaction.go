package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnDeposit    TransactionType = "deposit"
	TxnPurchase   TransactionType = "purchase"
	TxnAdjustment TransactionType = "admin_adjustment"
	TxnRefund     TransactionType = "refund"
)

type TransactionStatus string

const (
	TxnCompleted TransactionStatus = "completed"
	// TxnFailed marks a transaction whose paired balance write could not be
	// applied. Compensating label, never an amendment of the amount.
	TxnFailed TransactionStatus = "failed"
)

// ActorSystem attributes transactions produced without a human operator.
const ActorSystem = "system"

// Transaction is one entry of the append-only ledger. Completed transactions
// are immutable; the only permitted later write is the re-label to failed
// after a detected balance-write failure.
type Transaction struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Description   string            `json:"description"`
	Status        TransactionStatus `json:"status"`
	Actor         string            `json:"actor"`
	ReferenceID   *string           `json:"reference_id,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
