package payment_api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/payment/gateway"
	"ms-pettag/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBody caps what we read from a gateway callback.
const maxWebhookBody = 64 << 10

type Reconciler interface {
	HandleGatewayNotification(ctx context.Context, n models.GatewayNotification)
	VerifyPayment(ctx context.Context, ref string) (*models.Verification, error)
}

type Handler struct {
	Payments      Reconciler
	WebhookSecret string
	FrontendURL   string
	Logger        *logger.Logger
}

func NewHandler(payments Reconciler, stripeWebhookSecret, frontendURL string, log *logger.Logger) *Handler {
	return &Handler{
		Payments:      payments,
		WebhookSecret: stripeWebhookSecret,
		FrontendURL:   frontendURL,
		Logger:        log,
	}
}

// EpaycoConfirmation receives ePayco's confirmation callback as a form post
// or as query parameters. ePayco retries anything but 200, so the answer is
// always 200 and problems only reach the log.
func (h *Handler) EpaycoConfirmation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		h.Logger.Warn("PAYMENT", fmt.Sprintf("epayco confirmation: unreadable form: %v", err))
	}

	n := notificationFromForm(r.Form)
	h.Logger.Info("PAYMENT", fmt.Sprintf("epayco confirmation received: ref=%s order=%s state=%s", n.Reference, n.OrderID, n.StateCode))
	// the gateway hanging up must not abort a half-done confirmation
	h.Payments.HandleGatewayNotification(context.WithoutCancel(r.Context()), n)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func notificationFromForm(f url.Values) models.GatewayNotification {
	return models.GatewayNotification{
		Provider:      "epayco",
		Reference:     f.Get("x_ref_payco"),
		TransactionID: f.Get("x_transaction_id"),
		StateCode:     first(f.Get("x_cod_transaction_state"), f.Get("x_cod_response")),
		StateLabel:    f.Get("x_transaction_state"),
		Response:      f.Get("x_response"),
		OrderID:       first(f.Get("x_extra1"), f.Get("x_id_invoice")),
		ApprovalCode:  f.Get("x_approval_code"),
		Amount:        f.Get("x_amount"),
		Currency:      f.Get("x_currency_code"),
		Franchise:     f.Get("x_franchise"),
		CardNumber:    f.Get("x_cardnumber"),
		Signature:     f.Get("x_signature"),
	}
}

// StripeWebhook verifies the Stripe-Signature header and feeds
// payment_intent events to the reconciler. Always 200.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Warn("PAYMENT", fmt.Sprintf("stripe webhook: read body: %v", err))
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.Logger.LogSecurity("STRIPE_SIGNATURE", fmt.Sprintf("webhook rejected: %v", err))
		return
	}

	switch event.Type {
	case "payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"payment_intent.processing":
	default:
		h.Logger.Debug("PAYMENT", fmt.Sprintf("stripe event %s ignored", event.Type))
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.Logger.Error("PAYMENT", fmt.Sprintf("stripe webhook %s: decode payment intent: %v", event.ID, err))
		return
	}

	st := gateway.StatusFromIntent(&pi)
	h.Payments.HandleGatewayNotification(context.WithoutCancel(r.Context()), models.GatewayNotification{
		Provider:      "stripe",
		Reference:     st.Reference,
		TransactionID: st.TransactionID,
		StateLabel:    st.Status,
		OrderID:       st.OrderID,
		ApprovalCode:  st.ApprovalCode,
		Amount:        st.Amount,
		Currency:      st.Currency,
		Franchise:     st.Franchise,
		CardNumber:    st.CardLast4,
	})
}

// PaymentResponse is where ePayco sends the shopper's browser after checkout.
func (h *Handler) PaymentResponse(w http.ResponseWriter, r *http.Request) {
	target := h.FrontendURL + "/payment/success"
	if ref := r.URL.Query().Get("ref_payco"); ref != "" {
		target += "?ref_payco=" + url.QueryEscape(ref)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "paymentId")
	v, err := h.Payments.VerifyPayment(r.Context(), ref)
	if err != nil {
		if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
			h.Logger.Error("PAYMENT", fmt.Sprintf("verify %s: %v", ref, err))
		}
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payment status retrieved", v)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
