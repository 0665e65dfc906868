package qr_api

import (
	"net/http"

	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"

	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/qr.
func (h *Handler) Routes(v auth.Verifier, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.With(auth.Optional(v)).Get("/scan/{qrId}", h.ScanQR)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(v, log))

		r.Post("/link", h.LinkQR)
		r.Get("/user", h.ListUserQRs)
		r.Get("/user/my-codes", h.ListMyCodes)
		r.Get("/{qrId}", h.GetQR)
		r.Get("/{qrId}/history", h.GetHistory)
		r.Delete("/{qrId}", h.DeleteQR)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/", h.ListAll)
			r.Post("/admin/generate", h.AdminGenerate)
			r.Post("/admin/{qrId}/deactivate", h.Deactivate)
		})
	})
	return r
}
