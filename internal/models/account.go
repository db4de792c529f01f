package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive      AccountStatus = "active"
	AccountDeactivated AccountStatus = "deactivated"
	// AccountFrozen is set when a chain-invariant break is detected.
	// A frozen account rejects all further ledger writes until an
	// operator has reviewed it.
	AccountFrozen AccountStatus = "frozen"
)

// Account holds the current spendable balance for a user. The balance is
// never written directly; it is always the balance_after of the most recent
// completed transaction for the account.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}
