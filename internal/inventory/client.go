package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type reserveResponse struct {
	AllocationID string `json:"allocation_id"`
}

// Client is the HTTP implementation of Allocator.
type Client struct {
	http *resty.Client
}

// NewClient builds an allocator against the inventory service base address.
// The timeout bounds every call; an expired reservation attempt is reported
// as ErrResourceUnavailable rather than left pending.
func NewClient(baseAddr string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseAddr).SetTimeout(timeout),
	}
}

func (c *Client) Reserve(ctx context.Context, sel Selector) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sel).
		Post("/api/v1/allocations")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusOK:
		var out reserveResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", fmt.Errorf("decode reserve response: %w", err)
		}
		if out.AllocationID == "" {
			return "", ErrResourceUnavailable
		}
		return out.AllocationID, nil
	case http.StatusConflict, http.StatusNotFound:
		return "", ErrResourceUnavailable
	default:
		return "", fmt.Errorf("%w: inventory status %d", ErrResourceUnavailable, resp.StatusCode())
	}
}

func (c *Client) Release(ctx context.Context, allocationID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/api/v1/allocations/" + allocationID)
	if err != nil {
		return fmt.Errorf("release allocation %s: %w", allocationID, err)
	}
	if resp.StatusCode() >= 300 && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("release allocation %s: status %d", allocationID, resp.StatusCode())
	}
	return nil
}
