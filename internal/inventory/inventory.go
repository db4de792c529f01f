// Package inventory talks to the proxy inventory service. The wallet only
// needs two calls from it: reserve a proxy resource before charging, and
// release a reservation when the charge could not be committed.
package inventory

import (
	"context"
	"errors"
)

var (
	// ErrResourceUnavailable covers "nothing matched the selector" and any
	// timeout or transport failure: a reservation we cannot confirm is a
	// reservation we do not have.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// Selector narrows which proxy the user wants. Opaque to the wallet.
type Selector struct {
	PlanID  string `json:"plan_id,omitempty"`
	ProxyID string `json:"proxy_id,omitempty"`
	Country string `json:"country,omitempty"`
}

type Allocator interface {
	// Reserve either returns an allocation id or fails with no side effect.
	Reserve(ctx context.Context, sel Selector) (allocationID string, err error)
	// Release compensates a reservation whose paired debit failed.
	Release(ctx context.Context, allocationID string) error
}
