package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/models"

	"github.com/go-chi/chi/v5"
)

// PayOrder charges the order with a card token from the checkout form.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("PayOrder: orderId=%s", orderID))

	var req models.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	res, err := h.PaymentService.ChargeOrder(r.Context(), orderID, auth.UserID(r.Context()), req, clientIP(r))
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("PayOrder: orderId=%s: %v", orderID, err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, res.Message, res)
}

// ConfirmOrder is the client-driven confirmation after the gateway redirect.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var body struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	if body.Ref == "" {
		body.Ref = r.URL.Query().Get("ref_payco")
	}
	h.Logger.Info("API", fmt.Sprintf("ConfirmOrder: orderId=%s ref=%s", orderID, body.Ref))

	// ownership first; the reconciler itself trusts the order id
	if _, err := h.OrderService.GetOrder(r.Context(), orderID, auth.UserID(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.PaymentService.HandleSynchronousConfirmation(r.Context(), orderID, body.Ref)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("ConfirmOrder: orderId=%s: %v", orderID, err))
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, res.Message, res)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
