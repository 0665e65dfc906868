package payment_api

import (
	"net/http"

	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"

	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/payments. Gateway callbacks are public.
func (h *Handler) Routes(v auth.Verifier, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/confirmation", h.EpaycoConfirmation)
	r.Get("/confirmation", h.EpaycoConfirmation)
	r.Post("/stripe/webhook", h.StripeWebhook)
	r.Get("/response", h.PaymentResponse)

	r.With(auth.Middleware(v, log)).Get("/verify/{paymentId}", h.VerifyPayment)
	return r
}
