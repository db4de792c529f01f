package repository

import "errors"

var (
	ErrNoRows          = errors.New("no rows")
	ErrAccountNotFound = errors.New("account not found")
	ErrAlreadyExists   = errors.New("already exists")

	// ErrInsufficientFunds is returned by Append when DisallowNegative is set
	// and the resulting balance would be negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference is returned by Append when a completed transaction
	// already references the same reference_id. At most one ledger entry may
	// ever point at a given deposit request or purchase order.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrAccountFrozen is returned for any write against an account halted
	// after an integrity violation. Operator review required.
	ErrAccountFrozen = errors.New("account frozen pending review")

	// ErrIntegrityViolation means the stored balance does not match the
	// balance_after of the newest completed transaction. The append that
	// detected it freezes the account and refuses to write.
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)
