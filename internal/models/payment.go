package models

import "time"

// PaymentOutcome is the closed internal vocabulary for gateway states.
type PaymentOutcome string

const (
	OutcomeApproved PaymentOutcome = "approved"
	OutcomeRejected PaymentOutcome = "rejected"
	OutcomePending  PaymentOutcome = "pending"
	OutcomeFailed   PaymentOutcome = "failed"
)

// PaymentStatusFor maps an outcome onto the order's payment status field.
func PaymentStatusFor(o PaymentOutcome) PaymentStatus {
	switch o {
	case OutcomeApproved:
		return PaymentStatusCompleted
	case OutcomeRejected, OutcomeFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusProcessing
	}
}

type PaymentDetails struct {
	Provider      string         `json:"provider"`
	Reference     string         `json:"reference"`
	TransactionID string         `json:"transactionId,omitempty"`
	StateCode     string         `json:"stateCode,omitempty"`
	StateLabel    string         `json:"stateLabel,omitempty"`
	Outcome       PaymentOutcome `json:"outcome"`
	ApprovalCode  string         `json:"approvalCode,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	Franchise     string         `json:"franchise,omitempty"`
	CardLast4     string         `json:"cardLast4,omitempty"`
	RecordedAt    time.Time      `json:"recordedAt"`
}

// GatewayNotification is a webhook payload after provider-specific parsing.
type GatewayNotification struct {
	Provider      string
	Reference     string
	TransactionID string
	StateCode     string
	StateLabel    string
	Response      string
	OrderID       string
	ApprovalCode  string
	Amount        string
	Currency      string
	Franchise     string
	CardNumber    string
	Signature     string
}

// SyncConfirmResult answers a client-driven confirmation or charge.
type SyncConfirmResult struct {
	Success   bool           `json:"success"`
	Outcome   PaymentOutcome `json:"outcome"`
	Reference string         `json:"reference,omitempty"`
	Message   string         `json:"message"`
	Order     *Order         `json:"order,omitempty"`
	Minted    []QRSummary    `json:"qrs,omitempty"`
}

// Verification is a read-only gateway lookup.
type Verification struct {
	Reference string         `json:"reference"`
	Verified  bool           `json:"verified"`
	Outcome   PaymentOutcome `json:"outcome"`
	Status    string         `json:"status"`
	OrderID   string         `json:"orderId,omitempty"`
	Amount    string         `json:"amount,omitempty"`
	Currency  string         `json:"currency,omitempty"`
}

type ChargeRequest struct {
	Token string `json:"token"`
	// Dues is the number of card installments; ePayco requires at least 1.
	Dues int `json:"dues,omitempty"`
}
