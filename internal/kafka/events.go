package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Event is the envelope every message carries.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// Events publishes domain events. Failures are logged and never returned:
// a broker outage must not fail an order or a scan.
type Events struct {
	pub    Publisher
	prefix string
	log    *logger.Logger
}

func NewEvents(pub Publisher, prefix string, log *logger.Logger) *Events {
	return &Events{pub: pub, prefix: prefix, log: log}
}

func (e *Events) emit(ctx context.Context, topic, key string, payload interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	name := topicName(e.prefix, topic)
	value, err := json.Marshal(Event{Type: topic, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		e.log.Error("KAFKA", fmt.Sprintf("marshal %s event: %v", topic, err))
		return
	}
	if err := e.pub.Publish(ctx, name, key, value); err != nil {
		e.log.Warn("KAFKA", fmt.Sprintf("publish %s for %s failed: %v", name, key, err))
		return
	}
	e.log.LogKafka("PUBLISH", name, key)
}

type orderEvent struct {
	OrderID       string               `json:"orderId"`
	UserID        string               `json:"userId"`
	Quantity      int                  `json:"quantity"`
	TotalAmount   int64                `json:"totalAmount"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	QRCodes       []string             `json:"qrCodes,omitempty"`
}

func newOrderEvent(o *models.Order) orderEvent {
	return orderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Quantity:      o.Quantity,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		QRCodes:       o.QRCodes,
	}
}

func (e *Events) OrderCreated(ctx context.Context, o *models.Order) {
	e.emit(ctx, TopicOrderCreated, o.ID, newOrderEvent(o))
}

func (e *Events) OrderCompleted(ctx context.Context, o *models.Order) {
	e.emit(ctx, TopicOrderCompleted, o.ID, newOrderEvent(o))
}

func (e *Events) OrderCancelled(ctx context.Context, o *models.Order) {
	e.emit(ctx, TopicOrderCancelled, o.ID, newOrderEvent(o))
}

func (e *Events) PaymentNotified(ctx context.Context, orderID, reference string, outcome models.PaymentOutcome) {
	e.emit(ctx, TopicPaymentNotice, orderID, map[string]string{
		"orderId":   orderID,
		"reference": reference,
		"outcome":   string(outcome),
	})
}

func (e *Events) QRLinked(ctx context.Context, qr *models.QR) {
	e.emit(ctx, TopicQRLinked, qr.ID, map[string]string{
		"qrId":   qr.ID,
		"petId":  qr.PetID,
		"userId": qr.UserID,
	})
}

// QRScanned lets the notification service alert the owner of a linked pet.
func (e *Events) QRScanned(ctx context.Context, scan *models.ScanEvent, petID string) {
	e.emit(ctx, TopicQRScanned, scan.QRID, struct {
		*models.ScanEvent
		PetID string `json:"petId,omitempty"`
	}{scan, petID})
}

// LogPublisher stands in for Kafka when it is disabled.
type LogPublisher struct {
	Logger *logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.Logger.Debug("KAFKA", fmt.Sprintf("kafka disabled, dropping %s/%s: %s", topic, key, value))
	return nil
}
