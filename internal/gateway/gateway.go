// Package gateway talks to the card-payment provider.
package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// ChargeRequest is one logical charge.  IdempotencyKey must stay the same
// across retries of the same charge so the provider never captures twice.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	SourceToken    string
	ReferenceID    string
	Note           string
}

type Charge struct {
	PaymentID string
	Status    string
	Amount    int64
	CardBrand string
	CardLast4 string
}

type RefundRequest struct {
	PaymentID      string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

type Refund struct {
	RefundID string
	Status   string
	Amount   int64
}

// PaymentGateway is the subset of the provider API the booking flow uses.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Cancel(ctx context.Context, paymentID string) error
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// Doer sends HTTP requests.  *pester.Client and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Category   string
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("payment gateway: http %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("payment gateway: http %d %s: %s", e.StatusCode, e.Code, e.Detail)
}
