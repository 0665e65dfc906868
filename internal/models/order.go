package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// UnitPrice is the price of one QR tag in COP (minor unit).
const (
	UnitPrice   int64 = 15000
	MinQuantity       = 1
	MaxQuantity       = 10
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

type Customer struct {
	Name      string `bun:"name" json:"name"`
	LastName  string `bun:"last_name" json:"lastName,omitempty"`
	Email     string `bun:"email" json:"email"`
	Phone     string `bun:"phone" json:"phone"`
	DocType   string `bun:"doc_type" json:"docType,omitempty"`
	DocNumber string `bun:"doc_number" json:"docNumber,omitempty"`
}

type Shipping struct {
	Address    string `bun:"address" json:"address"`
	City       string `bun:"city" json:"city"`
	State      string `bun:"state" json:"state"`
	PostalCode string `bun:"postal_code" json:"postalCode"`
	Country    string `bun:"country" json:"country"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID             string          `bun:"id,pk" json:"id"`
	UserID         string          `bun:"user_id,notnull" json:"userId"`
	Quantity       int             `bun:"quantity,notnull" json:"quantity"`
	TotalAmount    int64           `bun:"total_amount,notnull" json:"totalAmount"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	PaymentStatus  PaymentStatus   `bun:"payment_status,notnull" json:"paymentStatus"`
	Customer       Customer        `bun:"embed:customer_" json:"customer"`
	Shipping       Shipping        `bun:"embed:shipping_" json:"shipping"`
	GatewayRef     string          `bun:"gateway_ref,nullzero" json:"gatewayRef,omitempty"`
	PaymentDetails *PaymentDetails `bun:"payment_details,type:jsonb" json:"paymentDetails,omitempty"`
	QRCodes        []string        `bun:"qr_codes,type:jsonb" json:"qrCodes"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

// CheckInvariants rejects states no write may persist.
func (o *Order) CheckInvariants() error {
	if o.Quantity < MinQuantity || o.Quantity > MaxQuantity {
		return fmt.Errorf("quantity %d out of range [%d,%d]", o.Quantity, MinQuantity, MaxQuantity)
	}
	if o.TotalAmount != int64(o.Quantity)*UnitPrice {
		return fmt.Errorf("total amount %d does not match %d x %d", o.TotalAmount, o.Quantity, UnitPrice)
	}
	hasQRs := len(o.QRCodes) > 0
	if hasQRs != (o.Status == OrderStatusCompleted) {
		return fmt.Errorf("order status %q inconsistent with %d qr codes", o.Status, len(o.QRCodes))
	}
	return nil
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}

type CreateOrderRequest struct {
	Quantity int      `json:"quantity"`
	Customer Customer `json:"customer"`
	Shipping Shipping `json:"shipping"`
}

// ShippingUpdate carries the only fields an owner may change after creation.
type ShippingUpdate struct {
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`
	Country    *string `json:"country,omitempty"`
}

// OrderView is an order with its QR batch resolved for the owner.
type OrderView struct {
	*Order
	QRs []QRSummary `json:"qrs"`
}

type ConfirmResult struct {
	Order  *Order `json:"order"`
	Minted []QR   `json:"minted"`
}

type Invoice struct {
	OrderID        string          `json:"orderId"`
	IssuedAt       time.Time       `json:"issuedAt"`
	Customer       Customer        `json:"customer"`
	Shipping       Shipping        `json:"shipping"`
	Description    string          `json:"description"`
	Quantity       int             `json:"quantity"`
	UnitPrice      int64           `json:"unitPrice"`
	Total          int64           `json:"total"`
	Currency       string          `json:"currency"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`
}
