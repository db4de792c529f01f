package services

import "errors"

var (
	// ErrInvalidAmount covers amounts that are non-positive where positive is
	// required, below the configured deposit minimum, or zero where a
	// non-zero amount is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidStateTransition is returned when a deposit request is already
	// terminal and the requested transition does not match its outcome.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrLedgerWriteFailed wraps storage-level append failures. Retryable;
	// the owning workflow has already compensated any earlier step.
	ErrLedgerWriteFailed = errors.New("ledger write failed")

	// ErrActorRequired rejects adjustments without attribution.
	ErrActorRequired = errors.New("actor required")

	// ErrDescriptionRequired rejects adjustments without an audit description.
	ErrDescriptionRequired = errors.New("description required")
)
