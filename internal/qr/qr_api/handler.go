package qr_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/utils"

	"github.com/go-chi/chi/v5"
)

type QRService interface {
	Scan(ctx context.Context, qrID, scannerID string, loc *models.Location) (*models.ScanResult, error)
	LinkToPet(ctx context.Context, qrID, petID string, actor models.Identity) (*models.LinkResult, error)
	ListForUser(ctx context.Context, userID string) ([]models.QRView, error)
	ListMyCodes(ctx context.Context, userID string) ([]models.QRView, error)
	GetByID(ctx context.Context, qrID string, actor models.Identity) (*models.QRView, error)
	GetHistory(ctx context.Context, qrID, requesterID string) ([]models.ScanEvent, error)
	DeleteOwn(ctx context.Context, qrID string, actor models.Identity) error
	ListAll(ctx context.Context, actor models.Identity) ([]models.QRView, error)
	AdminMint(ctx context.Context, actor models.Identity, userID string, count int) ([]models.QR, error)
	Deactivate(ctx context.Context, qrID string, actor models.Identity) error
}

type Handler struct {
	QRService QRService
	Logger    *logger.Logger
}

func NewHandler(svc QRService, log *logger.Logger) *Handler {
	return &Handler{QRService: svc, Logger: log}
}

// ScanQR is public. A signed-in scanner is recorded, anonymous scans are not.
func (h *Handler) ScanQR(w http.ResponseWriter, r *http.Request) {
	qrID := chi.URLParam(r, "qrId")

	loc, err := locationFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.QRService.Scan(r.Context(), qrID, auth.UserID(r.Context()), loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	msg := "qr scanned"
	if res.NeedsLinking {
		msg = "qr not linked to a pet yet"
	}
	h.writeSuccess(w, http.StatusOK, msg, res)
}

func (h *Handler) LinkQR(w http.ResponseWriter, r *http.Request) {
	var req models.LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	if req.QRID == "" || req.PetID == "" {
		h.writeError(w, apperrors.Validation("qrId and petId are required"))
		return
	}

	actor, _ := auth.IdentityFrom(r.Context())
	res, err := h.QRService.LinkToPet(r.Context(), req.QRID, req.PetID, actor)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("LinkQR: qrId=%s petId=%s: %v", req.QRID, req.PetID, err))
		h.writeError(w, err)
		return
	}
	msg := "qr linked to pet"
	if res.AlreadyLinked {
		msg = "qr already linked"
	}
	h.writeSuccess(w, http.StatusOK, msg, res)
}

func (h *Handler) ListUserQRs(w http.ResponseWriter, r *http.Request) {
	list, err := h.QRService.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr codes retrieved", list)
}

func (h *Handler) ListMyCodes(w http.ResponseWriter, r *http.Request) {
	list, err := h.QRService.ListMyCodes(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr codes retrieved", list)
}

func (h *Handler) GetQR(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	view, err := h.QRService.GetByID(r.Context(), chi.URLParam(r, "qrId"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr retrieved", view)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.QRService.GetHistory(r.Context(), chi.URLParam(r, "qrId"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "scan history retrieved", events)
}

func (h *Handler) DeleteQR(w http.ResponseWriter, r *http.Request) {
	qrID := chi.URLParam(r, "qrId")
	actor, _ := auth.IdentityFrom(r.Context())
	if err := h.QRService.DeleteOwn(r.Context(), qrID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr deleted", nil)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	list, err := h.QRService.ListAll(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr codes retrieved", list)
}

func (h *Handler) AdminGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Count  int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	actor, _ := auth.IdentityFrom(r.Context())
	batch, err := h.QRService.AdminMint(r.Context(), actor, body.UserID, body.Count)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("AdminGenerate: %v", err))
		h.writeError(w, err)
		return
	}

	out := make([]models.QRView, 0, len(batch))
	for i := range batch {
		out = append(out, batch[i].View())
	}
	h.writeSuccess(w, http.StatusCreated, fmt.Sprintf("%d qr codes generated", len(out)), out)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	qrID := chi.URLParam(r, "qrId")
	actor, _ := auth.IdentityFrom(r.Context())
	if err := h.QRService.Deactivate(r.Context(), qrID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "qr deactivated", nil)
}

// locationFromQuery reads lat, lng and address. Both coordinates or neither.
func locationFromQuery(r *http.Request) (*models.Location, error) {
	q := r.URL.Query()
	lat, lng := q.Get("lat"), q.Get("lng")
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, apperrors.Validation("lat and lng must be sent together")
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, apperrors.Validation("invalid lat %q", lat)
	}
	longitude, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, apperrors.Validation("invalid lng %q", lng)
	}
	return &models.Location{Latitude: latitude, Longitude: longitude, Address: q.Get("address")}, nil
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
