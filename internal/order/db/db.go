package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
)

// ErrNotPending is returned by guarded writes when the order already left pending.
var ErrNotPending = errors.New("order is no longer pending")

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → insert a new order after checking its invariants
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.QRCodes == nil {
		order.QRCodes = []string{}
	}
	if err := order.CheckInvariants(); err != nil {
		return fmt.Errorf("reject order write: %w", err)
	}
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order, sql.ErrNoRows when absent
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser → newest first
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdatePaymentMetadata writes only the gateway columns. An empty ref keeps the stored one.
func (d *DB) UpdatePaymentMetadata(ctx context.Context, id, gatewayRef string, status models.PaymentStatus, details *models.PaymentDetails) error {
	order := &models.Order{
		ID:             id,
		GatewayRef:     gatewayRef,
		PaymentStatus:  status,
		PaymentDetails: details,
		UpdatedAt:      time.Now().UTC(),
	}
	columns := []string{"payment_status", "updated_at"}
	if gatewayRef != "" {
		columns = append(columns, "gateway_ref")
	}
	if details != nil {
		columns = append(columns, "payment_details")
	}

	res, err := d.Bun.NewUpdate().
		Model(order).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return requireRow(res, err)
}

// MarkPaymentCompleted records a real payment without touching status or qr_codes.
func (d *DB) MarkPaymentCompleted(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.PaymentStatusCompleted).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return requireRow(res, err)
}

// CompleteWithQRBatch inserts the batch and flips the order pending→completed in
// one transaction. When another caller already completed (or cancelled) the
// order the batch is rolled back and ErrNotPending is returned.
func (d *DB) CompleteWithQRBatch(ctx context.Context, orderID string, batch []models.QR) (*models.Order, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty qr batch for order %s", orderID)
	}
	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	err = d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
			return fmt.Errorf("insert qr batch: %w", err)
		}

		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderStatusCompleted).
			Set("payment_status = ?", models.PaymentStatusCompleted).
			Set("qr_codes = ?", string(encoded)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", orderID).
			Where("status = ?", models.OrderStatusPending).
			Where("quantity = ?", len(batch)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetOrderByID(ctx, orderID)
}

// CancelPending → pending→failed, ErrNotPending otherwise
func (d *DB) CancelPending(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusFailed).
		Set("payment_status = ?", models.PaymentStatusFailed).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.OrderStatusPending).
		Exec(ctx)
	return pendingRow(res, err)
}

// UpdateShipping → rewrite the shipping block of a pending order
func (d *DB) UpdateShipping(ctx context.Context, id string, shipping models.Shipping) error {
	order := &models.Order{ID: id, Shipping: shipping, UpdatedAt: time.Now().UTC()}
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("shipping_address", "shipping_city", "shipping_state", "shipping_postal_code", "shipping_country", "updated_at").
		WherePK().
		Where("status = ?", models.OrderStatusPending).
		Exec(ctx)
	return pendingRow(res, err)
}

// ---------------- RELATION QUERIES ----------------

// GetQRsByOrderIDs → qr rows grouped by order, in creation order
func (d *DB) GetQRsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.QR, error) {
	grouped := make(map[string][]models.QR)
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	var qrs []models.QR
	err := d.Bun.NewSelect().
		Model(&qrs).
		Where("order_id IN (?)", bun.In(orderIDs)).
		Order("order_id", "created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, qr := range qrs {
		grouped[qr.OrderID] = append(grouped[qr.OrderID], qr)
	}
	return grouped, nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func pendingRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPending
	}
	return nil
}
