package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	orderdb "ms-pettag/internal/order/db"
	"ms-pettag/internal/qr/tagsheet"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	UpdatePaymentMetadata(ctx context.Context, id, gatewayRef string, status models.PaymentStatus, details *models.PaymentDetails) error
	MarkPaymentCompleted(ctx context.Context, id string) error
	CompleteWithQRBatch(ctx context.Context, orderID string, batch []models.QR) (*models.Order, error)
	CancelPending(ctx context.Context, id string) error
	UpdateShipping(ctx context.Context, id string, shipping models.Shipping) error
	GetQRsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.QR, error)
}

type ConfirmLock interface {
	LockOrder(ctx context.Context, orderID, token string) (bool, error)
	UnlockOrder(ctx context.Context, orderID, token string) error
}

// QRMinter renders a batch without storing it.
type QRMinter interface {
	PrepareBatch(ctx context.Context, userID string, count int, orderID string) ([]models.QR, error)
}

type EventPublisher interface {
	OrderCreated(ctx context.Context, o *models.Order)
	OrderCompleted(ctx context.Context, o *models.Order)
	OrderCancelled(ctx context.Context, o *models.Order)
}

type SheetRenderer interface {
	Render(sheet tagsheet.Sheet) ([]byte, error)
}

// StatusNotifier pushes order changes to live subscribers.
type StatusNotifier interface {
	NotifyOrder(o *models.Order)
}

type OrderService struct {
	DB       DBLayer
	Lock     ConfirmLock
	QR       QRMinter
	Events   EventPublisher
	Notifier StatusNotifier
	Sheets   SheetRenderer
	Logger   *logger.Logger
	Currency string
	now      func() time.Time
}

func NewOrderService(db DBLayer, lock ConfirmLock, minter QRMinter, events EventPublisher, notifier StatusNotifier, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:       db,
		Lock:     lock,
		QR:       minter,
		Events:   events,
		Notifier: notifier,
		Sheets:   tagsheet.NewRenderer(""),
		Logger:   log,
		Currency: "COP",
		now:      time.Now,
	}
}

// ---------------- ORDERS ----------------

// CreateOrder prices and stores a pending order for userID.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.Order, error) {
	if userID == "" {
		return nil, apperrors.Authentication("authentication required")
	}
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Quantity:      req.Quantity,
		TotalAmount:   int64(req.Quantity) * models.UnitPrice,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Customer:      req.Customer,
		Shipping:      req.Shipping,
		QRCodes:       []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, apperrors.Storage(err, "could not create order")
	}

	s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("user %s, %d tags, total %d", userID, order.Quantity, order.TotalAmount))
	s.Events.OrderCreated(ctx, order)
	s.notify(order)
	return order, nil
}

// LoadOrder reads an order without an ownership check. Malformed ids are
// reported as not found.
func (s *OrderService) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperrors.NotFound("order not found")
	}
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("order not found")
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not load order")
	}
	return order, nil
}

// loadOwned returns the order when userID owns it.
func (s *OrderService) loadOwned(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		s.Logger.LogSecurity("ORDER_ACCESS_DENIED", fmt.Sprintf("user %s requested order %s", userID, orderID))
		return nil, apperrors.Authorization("you do not have access to this order")
	}
	return order, nil
}

// GetOrder returns the order with its QR batch in minting order.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderView, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	views, err := s.withQRs(ctx, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListOrdersForUser returns the caller's orders newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.OrderView, error) {
	orders, err := s.DB.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage(err, "could not list orders")
	}
	return s.withQRs(ctx, orders)
}

func (s *OrderService) withQRs(ctx context.Context, orders []models.Order) ([]models.OrderView, error) {
	views := make([]models.OrderView, len(orders))
	var withCodes []string
	for i := range orders {
		views[i] = models.OrderView{Order: &orders[i], QRs: []models.QRSummary{}}
		if len(orders[i].QRCodes) > 0 {
			withCodes = append(withCodes, orders[i].ID)
		}
	}
	if len(withCodes) == 0 {
		return views, nil
	}

	byOrder, err := s.DB.GetQRsByOrderIDs(ctx, withCodes)
	if err != nil {
		return nil, apperrors.Storage(err, "could not load order qr codes")
	}
	for i := range views {
		index := make(map[string]*models.QR, len(byOrder[views[i].ID]))
		for j := range byOrder[views[i].ID] {
			q := &byOrder[views[i].ID][j]
			index[q.ID] = q
		}
		// qr_codes keeps the minting order; deleted codes drop out
		for _, id := range views[i].QRCodes {
			if q, ok := index[id]; ok {
				views[i].QRs = append(views[i].QRs, q.Summary())
			}
		}
	}
	return views, nil
}

// ---------------- CONFIRMATION ----------------

// ConfirmOrder completes a paid order and mints exactly one QR batch for it.
// Repeated or concurrent calls return the stored order with no new codes.
// The Redis lock only spares duplicate rendering. CompleteWithQRBatch is the
// guard that keeps a second batch out.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*models.ConfirmResult, error) {
	order, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.QRCodes) > 0 {
		s.Logger.LogOrder("CONFIRM", order.ID, "already fulfilled, nothing to mint")
		return &models.ConfirmResult{Order: order, Minted: []models.QR{}}, nil
	}
	if order.Status == models.OrderStatusFailed {
		return nil, apperrors.Validation("order %s was cancelled and cannot be confirmed", order.ID)
	}

	if release := s.tryLock(ctx, order.ID); release != nil {
		defer release()
	}

	batch, err := s.QR.PrepareBatch(ctx, order.UserID, order.Quantity, order.ID)
	if err != nil {
		return nil, s.fulfillmentFailed(ctx, order.ID, err)
	}

	completed, err := s.DB.CompleteWithQRBatch(ctx, order.ID, batch)
	if errors.Is(err, orderdb.ErrNotPending) {
		current, lerr := s.LoadOrder(ctx, order.ID)
		if lerr != nil {
			return nil, lerr
		}
		if current.Status == models.OrderStatusFailed {
			return nil, apperrors.Validation("order %s was cancelled and cannot be confirmed", order.ID)
		}
		s.Logger.LogOrder("CONFIRM", order.ID, "lost confirmation race, returning stored batch")
		return &models.ConfirmResult{Order: current, Minted: []models.QR{}}, nil
	}
	if err != nil {
		return nil, s.fulfillmentFailed(ctx, order.ID, err)
	}

	s.Logger.LogOrder("CONFIRM", completed.ID, fmt.Sprintf("completed with %d tags", len(batch)))
	s.Events.OrderCompleted(ctx, completed)
	s.notify(completed)
	return &models.ConfirmResult{Order: completed, Minted: batch}, nil
}

// tryLock is best effort. A busy lock or a Redis outage falls through to the
// database guard.
func (s *OrderService) tryLock(ctx context.Context, orderID string) func() {
	if s.Lock == nil {
		return nil
	}
	token := uuid.New().String()
	ok, err := s.Lock.LockOrder(ctx, orderID, token)
	if err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("confirm lock for %s unavailable: %v", orderID, err))
		return nil
	}
	if !ok {
		s.Logger.Debug("ORDER", fmt.Sprintf("confirm lock for %s held elsewhere", orderID))
		return nil
	}
	return func() {
		// the request context may already be done
		if err := s.Lock.UnlockOrder(context.WithoutCancel(ctx), orderID, token); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("release confirm lock for %s: %v", orderID, err))
		}
	}
}

// fulfillmentFailed records that money was taken even though no codes exist.
func (s *OrderService) fulfillmentFailed(ctx context.Context, orderID string, cause error) error {
	s.Logger.Error("ORDER", fmt.Sprintf("fulfillment of %s failed: %v", orderID, cause))
	if err := s.DB.MarkPaymentCompleted(ctx, orderID); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("mark %s paid after failed fulfillment: %v", orderID, err))
	}
	return apperrors.Fulfillment(cause, "payment received but tags could not be generated for order %s", orderID)
}

// ---------------- UPDATES ----------------

// UpdatePaymentMetadata stores gateway data. It never changes Status.
func (s *OrderService) UpdatePaymentMetadata(ctx context.Context, orderID, gatewayRef string, status models.PaymentStatus, details *models.PaymentDetails) error {
	err := s.DB.UpdatePaymentMetadata(ctx, orderID, gatewayRef, status, details)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("order not found")
	}
	if err != nil {
		return apperrors.Storage(err, "could not update payment data")
	}
	s.Logger.LogPayment("METADATA", orderID, fmt.Sprintf("ref %q status %s", gatewayRef, status))
	if order, err := s.DB.GetOrderByID(ctx, orderID); err == nil {
		s.notify(order)
	}
	return nil
}

// CancelOrder moves the caller's pending order to failed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.Validation("only pending orders can be cancelled, order is %s", order.Status)
	}

	err = s.DB.CancelPending(ctx, order.ID)
	if errors.Is(err, orderdb.ErrNotPending) {
		return nil, apperrors.Validation("order %s is no longer pending", order.ID)
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not cancel order")
	}

	order.Status = models.OrderStatusFailed
	order.PaymentStatus = models.PaymentStatusFailed
	s.Logger.LogOrder("CANCEL", order.ID, "cancelled by owner")
	s.Events.OrderCancelled(ctx, order)
	s.notify(order)
	return order, nil
}

// UpdateShipping lets the owner fix the delivery address before payment completes.
func (s *OrderService) UpdateShipping(ctx context.Context, orderID, userID string, patch models.ShippingUpdate) (*models.Order, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.Validation("shipping can only change while the order is pending")
	}
	next, err := applyShipping(order.Shipping, patch)
	if err != nil {
		return nil, err
	}

	err = s.DB.UpdateShipping(ctx, order.ID, next)
	if errors.Is(err, orderdb.ErrNotPending) {
		return nil, apperrors.Validation("shipping can only change while the order is pending")
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not update shipping")
	}
	order.Shipping = next
	s.Logger.LogOrder("SHIPPING", order.ID, "address updated")
	return order, nil
}

// Invoice summarises the order for the owner's receipt page.
func (s *OrderService) Invoice(ctx context.Context, orderID, userID string) (*models.Invoice, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return &models.Invoice{
		OrderID:        order.ID,
		IssuedAt:       order.CreatedAt,
		Customer:       order.Customer,
		Shipping:       order.Shipping,
		Description:    fmt.Sprintf("Pet QR tag x%d", order.Quantity),
		Quantity:       order.Quantity,
		UnitPrice:      models.UnitPrice,
		Total:          order.TotalAmount,
		Currency:       s.Currency,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		PaymentDetails: order.PaymentDetails,
	}, nil
}

// TagSheet renders the owner's minted tags as a printable PDF.
func (s *OrderService) TagSheet(ctx context.Context, orderID, userID string) ([]byte, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, apperrors.Validation("order %s is %s, tags are printable once it is completed", order.ID, order.Status)
	}

	byOrder, err := s.DB.GetQRsByOrderIDs(ctx, []string{order.ID})
	if err != nil {
		return nil, apperrors.Storage(err, "could not load order qr codes")
	}
	index := make(map[string]models.QR, len(byOrder[order.ID]))
	for _, q := range byOrder[order.ID] {
		index[q.ID] = q
	}
	codes := make([]models.QR, 0, len(order.QRCodes))
	for _, id := range order.QRCodes {
		if q, ok := index[id]; ok {
			codes = append(codes, q)
		}
	}
	if len(codes) == 0 {
		return nil, apperrors.NotFound("order %s has no printable tags left", order.ID)
	}

	pdf, err := s.Sheets.Render(tagsheet.Sheet{OrderID: order.ID, Codes: codes})
	if err != nil {
		return nil, apperrors.Internal(err, "could not render tag sheet")
	}
	s.Logger.LogOrder("TAG_SHEET", order.ID, fmt.Sprintf("rendered %d tags", len(codes)))
	return pdf, nil
}

func (s *OrderService) notify(o *models.Order) {
	if s.Notifier != nil {
		s.Notifier.NotifyOrder(o)
	}
}
