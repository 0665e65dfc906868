package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"ms-pettag/internal/analytics"
	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/utils"
)

type StatsService interface {
	GetStats(ctx context.Context, actor models.Identity) (*analytics.Stats, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service StatsService
	Logger  *logger.Logger
}

func NewHandler(service StatsService, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// GetStats serves GET /api/admin/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	stats, err := h.Service.GetStats(r.Context(), actor)
	if err != nil {
		if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("GetStats: %v", err))
		}
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "stats retrieved", stats)
}
