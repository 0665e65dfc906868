// Package gateway adapts external payment providers to one small interface.
package gateway

import (
	"context"
	"errors"

	"ms-pettag/internal/models"
)

// ErrInvalidReference is returned for references a provider cannot address.
var ErrInvalidReference = errors.New("invalid payment reference")

type Gateway interface {
	Name() string
	Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error)
	GetStatus(ctx context.Context, reference string) (*StatusResult, error)
}

type ChargeParams struct {
	OrderID     string
	Token       string
	Dues        int
	Amount      int64
	Currency    string
	Description string
	ClientIP    string
	Customer    models.Customer
	Shipping    models.Shipping
}

// ChargeResult carries the provider's raw state. Callers normalize it.
type ChargeResult struct {
	Success   bool
	Reference string
	StateCode string
	Status    string
	Message   string
}

type StatusResult struct {
	Success       bool
	Reference     string
	TransactionID string
	StateCode     string
	Status        string
	Response      string
	// OrderID is the order id the charge was created with.
	OrderID      string
	Amount       string
	Currency     string
	ApprovalCode string
	Franchise    string
	CardLast4    string
}
