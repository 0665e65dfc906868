package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, userID string) (*models.OrderView, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]models.OrderView, error)
	CancelOrder(ctx context.Context, orderID, userID string) (*models.Order, error)
	UpdateShipping(ctx context.Context, orderID, userID string, patch models.ShippingUpdate) (*models.Order, error)
	Invoice(ctx context.Context, orderID, userID string) (*models.Invoice, error)
	TagSheet(ctx context.Context, orderID, userID string) ([]byte, error)
}

type PaymentService interface {
	HandleSynchronousConfirmation(ctx context.Context, orderID, ref string) (*models.SyncConfirmResult, error)
	ChargeOrder(ctx context.Context, orderID, userID string, req models.ChargeRequest, clientIP string) (*models.SyncConfirmResult, error)
}

type Handler struct {
	OrderService   OrderService
	PaymentService PaymentService
	Logger         *logger.Logger
}

func NewHandler(orders OrderService, payments PaymentService, log *logger.Logger) *Handler {
	return &Handler{
		OrderService:   orders,
		PaymentService: payments,
		Logger:         log,
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: userId=%s", userID))

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	order, err := h.OrderService.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: %v", err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusCreated, "order created", order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListOrdersForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "orders retrieved", orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Debug("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	order, err := h.OrderService.GetOrder(r.Context(), orderID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "order retrieved", order)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.OrderService.Invoice(r.Context(), chi.URLParam(r, "orderId"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "invoice retrieved", invoice)
}

// GetTagSheet streams the printable PDF of a completed order's tags.
func (h *Handler) GetTagSheet(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	pdf, err := h.OrderService.TagSheet(r.Context(), orderID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="pettags-%s.pdf"`, orderID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("GetTagSheet: write %s: %v", orderID, err))
	}
}

func (h *Handler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var patch models.ShippingUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	order, err := h.OrderService.UpdateShipping(r.Context(), orderID, auth.UserID(r.Context()), patch)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateShipping: orderId=%s: %v", orderID, err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "shipping updated", order)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: orderId=%s", orderID))

	order, err := h.OrderService.CancelOrder(r.Context(), orderID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CancelOrder: failed to cancel order: %v", err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "order cancelled", order)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, msg string, data interface{}) {
	if err := utils.WriteSuccess(w, status, msg, data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.Logger.Error("API", err.Error())
	}
	if werr := utils.WriteError(w, err); werr != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode error response: %v", werr))
	}
}
