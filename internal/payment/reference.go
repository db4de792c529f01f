// Package payment produces the deposit payment instructions snapshot.
// The ledger stores the reference verbatim and never parses it.
package payment

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

type ReferenceGenerator interface {
	Generate(accountID string, amount decimal.Decimal) (string, error)
}

// BankTransferGenerator issues a transfer code the user is asked to put in
// the payment note so an operator can match the incoming wire.
type BankTransferGenerator struct {
	Prefix string
}

func (g BankTransferGenerator) Generate(accountID string, amount decimal.Decimal) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "PXP"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, hex.EncodeToString(buf), amount.StringFixed(2)), nil
}
