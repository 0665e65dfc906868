package order_api

import (
	"net/http"

	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"

	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/orders. Every route needs a signed-in caller.
func Routes(h *Handler, s *SSEHandler, v auth.Verifier, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware(v, log))

	r.Post("/", h.CreateOrder)
	r.Get("/", h.ListOrders)
	r.Route("/{orderId}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Get("/invoice", h.GetInvoice)
		r.Get("/tags.pdf", h.GetTagSheet)
		r.Patch("/shipping", h.UpdateShipping)
		r.Post("/pay", h.PayOrder)
		r.Post("/confirm", h.ConfirmOrder)
		r.Post("/cancel", h.CancelOrder)
		r.Get("/events", s.HandleOrderEvents)
	})
	return r
}
