package payment

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/payment/gateway"
)

// Ledger is the slice of the order service the reconciler drives.
type Ledger interface {
	LoadOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdatePaymentMetadata(ctx context.Context, orderID, gatewayRef string, status models.PaymentStatus, details *models.PaymentDetails) error
	ConfirmOrder(ctx context.Context, orderID string) (*models.ConfirmResult, error)
}

type EventPublisher interface {
	PaymentNotified(ctx context.Context, orderID, reference string, outcome models.PaymentOutcome)
}

type Reconciler struct {
	Ledger   Ledger
	Gateway  gateway.Gateway
	Events   EventPublisher
	Signer   Signer
	Logger   *logger.Logger
	Timeout  time.Duration
	Currency string
	now      func() time.Time
}

func NewReconciler(ledger Ledger, gw gateway.Gateway, events EventPublisher, signer Signer, timeout time.Duration, currency string, log *logger.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Reconciler{
		Ledger:   ledger,
		Gateway:  gw,
		Events:   events,
		Signer:   signer,
		Logger:   log,
		Timeout:  timeout,
		Currency: currency,
		now:      time.Now,
	}
}

// ---------------- WEBHOOKS ----------------

// HandleGatewayNotification processes one asynchronous gateway callback.
// Nothing escapes it: the caller always answers the gateway with 200.
func (r *Reconciler) HandleGatewayNotification(ctx context.Context, n models.GatewayNotification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("PAYMENT", fmt.Sprintf("panic handling %s notification %q: %v\n%s", n.Provider, n.Reference, rec, debug.Stack()))
		}
	}()

	if n.Reference == "" {
		r.Logger.Warn("PAYMENT", fmt.Sprintf("%s notification without reference ignored", n.Provider))
		return
	}
	if n.OrderID == "" {
		r.Logger.Warn("PAYMENT", fmt.Sprintf("%s notification %s carries no order id", n.Provider, n.Reference))
		return
	}
	if n.Provider == "epayco" && !r.Signer.Verify(n) {
		r.Logger.LogSecurity("PAYMENT_SIGNATURE", fmt.Sprintf("bad signature on notification %s for order %s", n.Reference, n.OrderID))
		return
	}

	outcome := NormalizeStatus(n.StateCode, n.StateLabel, n.Response)
	r.Logger.LogPayment("NOTIFY", n.Reference, fmt.Sprintf("%s order %s outcome %s", n.Provider, n.OrderID, outcome))
	r.Events.PaymentNotified(ctx, n.OrderID, n.Reference, outcome)

	if outcome != models.OutcomeApproved {
		return
	}

	order, err := r.Ledger.LoadOrder(ctx, n.OrderID)
	if err != nil {
		r.Logger.Error("PAYMENT", fmt.Sprintf("notification %s: load order %s: %v", n.Reference, n.OrderID, err))
		return
	}
	if order.Status != models.OrderStatusPending {
		r.Logger.Info("PAYMENT", fmt.Sprintf("order %s already %s, notification %s ignored", order.ID, order.Status, n.Reference))
		return
	}

	details := r.detailsFromNotification(n, outcome)
	if err := r.Ledger.UpdatePaymentMetadata(ctx, order.ID, n.Reference, models.PaymentStatusCompleted, details); err != nil {
		r.Logger.Error("PAYMENT", fmt.Sprintf("notification %s: record payment on %s: %v", n.Reference, order.ID, err))
		return
	}
	res, err := r.Ledger.ConfirmOrder(ctx, order.ID)
	if err != nil {
		r.Logger.Error("PAYMENT", fmt.Sprintf("notification %s: confirm %s: %v", n.Reference, order.ID, err))
		return
	}
	r.Logger.LogPayment("CONFIRMED", n.Reference, fmt.Sprintf("order %s minted %d tags", order.ID, len(res.Minted)))
}

// ---------------- CLIENT CONFIRMATION ----------------

// HandleSynchronousConfirmation asks the gateway about ref and, when it is
// approved and belongs to orderID, completes the order. Gateway trouble
// leaves the order untouched and is reported as retryable.
func (r *Reconciler) HandleSynchronousConfirmation(ctx context.Context, orderID, ref string) (*models.SyncConfirmResult, error) {
	if ref == "" {
		return nil, apperrors.Validation("payment reference is required")
	}

	status, err := r.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !status.Success {
		return nil, apperrors.NotFound("payment %s not found at %s", ref, r.Gateway.Name())
	}
	if status.OrderID != orderID {
		r.Logger.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("ref %s belongs to order %q, not %s", ref, status.OrderID, orderID))
		return nil, apperrors.Validation("payment %s does not belong to order %s", ref, orderID)
	}

	order, err := r.Ledger.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	outcome := NormalizeStatus(status.StateCode, status.Status, status.Response)
	details := r.detailsFromStatus(status, outcome)
	return r.settle(ctx, order, ref, outcome, details)
}

// VerifyPayment is a read-only pass-through to the gateway.
func (r *Reconciler) VerifyPayment(ctx context.Context, ref string) (*models.Verification, error) {
	if ref == "" {
		return nil, apperrors.Validation("payment id is required")
	}
	status, err := r.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	outcome := NormalizeStatus(status.StateCode, status.Status, status.Response)
	return &models.Verification{
		Reference: ref,
		Verified:  status.Success && outcome == models.OutcomeApproved,
		Outcome:   outcome,
		Status:    status.Status,
		OrderID:   status.OrderID,
		Amount:    status.Amount,
		Currency:  status.Currency,
	}, nil
}

// ---------------- CHARGES ----------------

// ChargeOrder charges the caller's pending order and confirms it right away
// when the gateway approves synchronously.
func (r *Reconciler) ChargeOrder(ctx context.Context, orderID, userID string, req models.ChargeRequest, clientIP string) (*models.SyncConfirmResult, error) {
	order, err := r.Ledger.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.Authorization("you do not have access to this order")
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.Validation("order %s is %s and cannot be charged", order.ID, order.Status)
	}
	if order.PaymentStatus == models.PaymentStatusCompleted {
		// paid but never fulfilled: retry minting, never charge twice
		r.Logger.LogPayment("CHARGE", order.GatewayRef, fmt.Sprintf("order %s already paid, retrying fulfillment", order.ID))
		return r.settle(ctx, order, order.GatewayRef, models.OutcomeApproved, nil)
	}
	if req.Token == "" {
		return nil, apperrors.Validation("payment token is required")
	}

	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	res, err := r.Gateway.Charge(cctx, gateway.ChargeParams{
		OrderID:     order.ID,
		Token:       req.Token,
		Dues:        req.Dues,
		Amount:      order.TotalAmount,
		Currency:    r.Currency,
		Description: fmt.Sprintf("Order of %d QR tags", order.Quantity),
		ClientIP:    clientIP,
		Customer:    order.Customer,
		Shipping:    order.Shipping,
	})
	if err != nil {
		r.Logger.Error("PAYMENT", fmt.Sprintf("charge order %s: %v", order.ID, err))
		return nil, apperrors.Gateway(err, "payment gateway unavailable, try again")
	}

	outcome := NormalizeStatus(res.StateCode, res.Status)
	if !res.Success && outcome == models.OutcomePending {
		outcome = models.OutcomeFailed
	}
	details := &models.PaymentDetails{
		Provider:   r.Gateway.Name(),
		Reference:  res.Reference,
		StateCode:  res.StateCode,
		StateLabel: res.Status,
		Outcome:    outcome,
		Amount:     fmt.Sprint(order.TotalAmount),
		Currency:   r.Currency,
		RecordedAt: r.now().UTC(),
	}
	result, err := r.settle(ctx, order, res.Reference, outcome, details)
	if err != nil {
		return nil, err
	}
	if !result.Success && res.Message != "" {
		result.Message = res.Message
	}
	return result, nil
}

// settle records the gateway verdict and confirms approved payments.
// A payment already recorded as COMPLETED is never rewritten.
func (r *Reconciler) settle(ctx context.Context, order *models.Order, ref string, outcome models.PaymentOutcome, details *models.PaymentDetails) (*models.SyncConfirmResult, error) {
	writable := order.Status == models.OrderStatusPending && order.PaymentStatus != models.PaymentStatusCompleted
	if outcome != models.OutcomeApproved {
		// a late decline must not overwrite a completed payment
		if writable {
			if err := r.Ledger.UpdatePaymentMetadata(ctx, order.ID, ref, models.PaymentStatusFor(outcome), details); err != nil {
				return nil, err
			}
		}
		return &models.SyncConfirmResult{
			Success:   false,
			Outcome:   outcome,
			Reference: ref,
			Message:   fmt.Sprintf("payment is %s", outcome),
			Order:     order,
		}, nil
	}

	if writable {
		if err := r.Ledger.UpdatePaymentMetadata(ctx, order.ID, ref, models.PaymentStatusCompleted, details); err != nil {
			return nil, err
		}
	}
	confirmed, err := r.Ledger.ConfirmOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	minted := make([]models.QRSummary, len(confirmed.Minted))
	for i := range confirmed.Minted {
		minted[i] = confirmed.Minted[i].Summary()
	}
	msg := "payment confirmed and order completed"
	if len(minted) == 0 {
		msg = "payment already processed"
	}
	r.Logger.LogPayment("SETTLED", ref, fmt.Sprintf("order %s: %s", order.ID, msg))
	return &models.SyncConfirmResult{
		Success:   true,
		Outcome:   outcome,
		Reference: ref,
		Message:   msg,
		Order:     confirmed.Order,
		Minted:    minted,
	}, nil
}

func (r *Reconciler) lookup(ctx context.Context, ref string) (*gateway.StatusResult, error) {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	status, err := r.Gateway.GetStatus(cctx, ref)
	if errors.Is(err, gateway.ErrInvalidReference) {
		return nil, apperrors.Validation("invalid payment reference %q", ref)
	}
	if err != nil {
		r.Logger.Error("PAYMENT", fmt.Sprintf("%s status for %s: %v", r.Gateway.Name(), ref, err))
		return nil, apperrors.Gateway(err, "payment gateway unavailable, try again")
	}
	return status, nil
}

func (r *Reconciler) detailsFromNotification(n models.GatewayNotification, outcome models.PaymentOutcome) *models.PaymentDetails {
	return &models.PaymentDetails{
		Provider:      n.Provider,
		Reference:     n.Reference,
		TransactionID: n.TransactionID,
		StateCode:     n.StateCode,
		StateLabel:    firstNonEmpty(n.StateLabel, n.Response),
		Outcome:       outcome,
		ApprovalCode:  n.ApprovalCode,
		Amount:        n.Amount,
		Currency:      n.Currency,
		Franchise:     n.Franchise,
		CardLast4:     gateway.LastFour(n.CardNumber),
		RecordedAt:    r.now().UTC(),
	}
}

func (r *Reconciler) detailsFromStatus(s *gateway.StatusResult, outcome models.PaymentOutcome) *models.PaymentDetails {
	return &models.PaymentDetails{
		Provider:      r.Gateway.Name(),
		Reference:     s.Reference,
		TransactionID: s.TransactionID,
		StateCode:     s.StateCode,
		StateLabel:    firstNonEmpty(s.Status, s.Response),
		Outcome:       outcome,
		ApprovalCode:  s.ApprovalCode,
		Amount:        s.Amount,
		Currency:      s.Currency,
		Franchise:     s.Franchise,
		CardLast4:     s.CardLast4,
		RecordedAt:    r.now().UTC(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
