package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrderSubscriber interface {
	Subscribe(ctx context.Context, orderID string) <-chan models.Order
}

// SSEHandler streams status changes of one order to its owner.
type SSEHandler struct {
	Orders    OrderService
	Events    OrderSubscriber
	Logger    *logger.Logger
	Heartbeat time.Duration
}

func NewSSEHandler(orders OrderService, events OrderSubscriber, log *logger.Logger) *SSEHandler {
	return &SSEHandler{Orders: orders, Events: events, Logger: log, Heartbeat: 25 * time.Second}
}

// HandleOrderEvents sends the current order, then every update until the
// order is terminal or the client goes away.
func (h *SSEHandler) HandleOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, apperrors.Validation("streaming unsupported"))
		return
	}

	// subscribe before the read so an update between the two is not lost
	events := h.Events.Subscribe(ctx, orderID)
	current, err := h.Orders.GetOrder(ctx, orderID, auth.UserID(ctx))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	h.send(w, "order", current.Order)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to order events for order: %s", orderID))

	if current.IsTerminal() {
		return
	}

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case order, ok := <-events:
			if !ok {
				return
			}
			h.send(w, "order", &order)
			flusher.Flush()
			if order.IsTerminal() {
				return
			}
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from order events for: %s", orderID))
			return
		}
	}
}

func (h *SSEHandler) send(w http.ResponseWriter, event string, o *models.Order) {
	data, err := json.Marshal(o)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize order event: %v", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
