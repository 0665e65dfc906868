package qr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/pets"
	qrdb "ms-pettag/internal/qr/db"

	"github.com/google/uuid"
)

// MaxAdminBatch bounds manual minting from the admin console.
const MaxAdminBatch = 100

type DBLayer interface {
	InsertBatch(ctx context.Context, batch []models.QR) error
	GetByID(ctx context.Context, id string) (*models.QR, error)
	ListByUser(ctx context.Context, userID string) ([]models.QR, error)
	ListAll(ctx context.Context) ([]models.QR, error)
	LinkToPet(ctx context.Context, id, petID string) error
	Deactivate(ctx context.Context, id string) error
	DeleteOwned(ctx context.Context, id, userID string) error
}

type PetDirectory interface {
	FindByID(ctx context.Context, petID string) (*models.Pet, error)
	GetPublicProfile(ctx context.Context, petID string) (*models.PetPublicProfile, error)
	UpdateLastSeenLocation(ctx context.Context, petID string, loc models.Location) error
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

type ImageRenderer interface {
	Generate(qrID string) ([]byte, error)
}

type ScanLog interface {
	Append(ctx context.Context, qrID, scannedBy string, at time.Time, loc *models.Location) (*models.ScanEvent, error)
	QueryByQR(ctx context.Context, qrID string) ([]models.ScanEvent, error)
}

type EventPublisher interface {
	QRLinked(ctx context.Context, qr *models.QR)
	QRScanned(ctx context.Context, scan *models.ScanEvent, petID string)
}

type QRService struct {
	DB       DBLayer
	Pets     PetDirectory
	Renderer ImageRenderer
	Scans    ScanLog
	Events   EventPublisher
	Logger   *logger.Logger
	now      func() time.Time
}

func NewQRService(db DBLayer, petDir PetDirectory, renderer ImageRenderer, scans ScanLog, events EventPublisher, log *logger.Logger) *QRService {
	return &QRService{
		DB:       db,
		Pets:     petDir,
		Renderer: renderer,
		Scans:    scans,
		Events:   events,
		Logger:   log,
		now:      time.Now,
	}
}

// ---------------- MINTING ----------------

// PrepareBatch renders count QRs for userID without persisting them. The
// order ledger stores them in the same transaction that completes the order.
func (s *QRService) PrepareBatch(ctx context.Context, userID string, count int, orderID string) ([]models.QR, error) {
	if count <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", count)
	}
	created := s.now().UTC()
	batch := make([]models.QR, count)
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := uuid.New().String()
		img, err := s.Renderer.Generate(id)
		if err != nil {
			return nil, fmt.Errorf("render qr %d/%d: %w", i+1, count, err)
		}
		batch[i] = models.QR{
			ID:        id,
			OrderID:   orderID,
			UserID:    userID,
			IsActive:  true,
			Image:     img,
			CreatedAt: created,
		}
	}
	return batch, nil
}

// MintBatch renders and stores count QRs. Callers own idempotency.
func (s *QRService) MintBatch(ctx context.Context, userID string, count int, orderID string) ([]models.QR, error) {
	batch, err := s.PrepareBatch(ctx, userID, count, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.InsertBatch(ctx, batch); err != nil {
		return nil, apperrors.Storage(err, "could not store qr batch")
	}
	s.Logger.LogQR("MINT", orderID, fmt.Sprintf("%d codes minted for user %s", count, userID))
	return batch, nil
}

// AdminMint is the manual batch path for support staff.
func (s *QRService) AdminMint(ctx context.Context, actor models.Identity, userID string, count int) ([]models.QR, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Authorization("only administrators can generate codes")
	}
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}
	if count < 1 || count > MaxAdminBatch {
		return nil, apperrors.Validation("count must be between 1 and %d", MaxAdminBatch)
	}
	return s.MintBatch(ctx, userID, count, "")
}

// ---------------- SCANNING ----------------

// Scan resolves a tag for a finder. Every successful lookup is logged,
// whether the scanner is anonymous or the tag is linked.
func (s *QRService) Scan(ctx context.Context, qrID, scannerID string, loc *models.Location) (*models.ScanResult, error) {
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, apperrors.Validation("invalid location: %v", err)
		}
	}

	qr, err := s.loadActive(ctx, qrID)
	if err != nil {
		return nil, err
	}

	event, err := s.Scans.Append(ctx, qr.ID, scannerID, s.now(), loc)
	if err != nil {
		return nil, err
	}
	s.Events.QRScanned(ctx, event, qr.PetID)

	if !qr.IsLinked {
		s.Logger.LogQR("SCAN", qr.ID, "unlinked tag scanned")
		return &models.ScanResult{QRID: qr.ID, NeedsLinking: true}, nil
	}

	profile, err := s.Pets.GetPublicProfile(ctx, qr.PetID)
	if errors.Is(err, pets.ErrPetNotFound) {
		s.Logger.Warn("QR", fmt.Sprintf("qr %s points at deleted pet %s", qr.ID, qr.PetID))
		return &models.ScanResult{QRID: qr.ID, IsLinked: true, Orphaned: true}, nil
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not load pet profile")
	}

	if loc != nil {
		if err := s.Pets.UpdateLastSeenLocation(ctx, qr.PetID, *loc); err != nil {
			s.Logger.Error("QR", fmt.Sprintf("update last seen location for pet %s: %v", qr.PetID, err))
		} else {
			profile.LastSeenLocation = loc
		}
	}

	s.Logger.LogQR("SCAN", qr.ID, fmt.Sprintf("linked tag scanned, location given: %t", loc != nil))
	return &models.ScanResult{
		QRID:             qr.ID,
		IsLinked:         true,
		Pet:              profile,
		RequiresLocation: loc == nil,
	}, nil
}

// ---------------- LINKING ----------------

// LinkToPet binds a tag to a pet once. Repeating the call on a linked tag
// succeeds and returns the pet it is already bound to.
func (s *QRService) LinkToPet(ctx context.Context, qrID, petID string, actor models.Identity) (*models.LinkResult, error) {
	if actor.UserID == "" {
		return nil, apperrors.Authentication("authentication required")
	}
	qr, err := s.loadActive(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if qr.IsLinked {
		return s.existingLink(ctx, qr)
	}

	if petID == "" {
		return nil, apperrors.Validation("petId is required")
	}
	pet, err := s.Pets.FindByID(ctx, petID)
	if errors.Is(err, pets.ErrPetNotFound) {
		return nil, apperrors.NotFound("pet not found")
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not load pet")
	}
	if pet.OwnerID != actor.UserID && !actor.IsAdmin() {
		s.Logger.LogSecurity("QR_LINK_DENIED", fmt.Sprintf("user %s tried to link qr %s to pet %s", actor.UserID, qr.ID, petID))
		return nil, apperrors.Authorization("only the pet owner can link this code")
	}

	err = s.DB.LinkToPet(ctx, qr.ID, petID)
	if errors.Is(err, qrdb.ErrNotLinkable) {
		// lost a race: someone linked or deactivated it in between
		current, lerr := s.loadActive(ctx, qr.ID)
		if lerr != nil {
			return nil, lerr
		}
		return s.existingLink(ctx, current)
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not link qr")
	}

	qr.IsLinked = true
	qr.PetID = petID
	s.Events.QRLinked(ctx, qr)
	s.Logger.LogQR("LINK", qr.ID, fmt.Sprintf("linked to pet %s by %s", petID, actor.UserID))

	profile, err := s.Pets.GetPublicProfile(ctx, petID)
	if err != nil {
		return nil, apperrors.Storage(err, "could not load pet profile")
	}
	return &models.LinkResult{QR: qr.View(), Pet: profile}, nil
}

func (s *QRService) existingLink(ctx context.Context, qr *models.QR) (*models.LinkResult, error) {
	profile, err := s.Pets.GetPublicProfile(ctx, qr.PetID)
	if errors.Is(err, pets.ErrPetNotFound) {
		// same shape Scan reports for a link whose pet was deleted
		return &models.LinkResult{QR: qr.View(), AlreadyLinked: true, Orphaned: true}, nil
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not load pet profile")
	}
	return &models.LinkResult{QR: qr.View(), Pet: profile, AlreadyLinked: true}, nil
}

// ---------------- LIFECYCLE ----------------

// Deactivate is admin-only and cannot be undone.
func (s *QRService) Deactivate(ctx context.Context, qrID string, actor models.Identity) error {
	if !actor.IsAdmin() {
		return apperrors.Authorization("only administrators can deactivate codes")
	}
	if _, err := uuid.Parse(qrID); err != nil {
		return apperrors.NotFound("qr not found")
	}
	err := s.DB.Deactivate(ctx, qrID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("qr not found")
	}
	if err != nil {
		return apperrors.Storage(err, "could not deactivate qr")
	}
	s.Logger.LogQR("DEACTIVATE", qrID, "deactivated by "+actor.UserID)
	return nil
}

// DeleteOwn hard-deletes a tag the caller owns, whatever its state.
func (s *QRService) DeleteOwn(ctx context.Context, qrID string, actor models.Identity) error {
	qr, err := s.load(ctx, qrID)
	if err != nil {
		return err
	}
	if qr.UserID != actor.UserID {
		return apperrors.Authorization("you can only delete your own codes")
	}
	err = s.DB.DeleteOwned(ctx, qr.ID, actor.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("qr not found")
	}
	if err != nil {
		return apperrors.Storage(err, "could not delete qr")
	}
	s.Logger.LogQR("DELETE", qr.ID, "deleted by owner")
	return nil
}

// ---------------- QUERIES ----------------

func (s *QRService) ListForUser(ctx context.Context, userID string) ([]models.QRView, error) {
	qrs, err := s.DB.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage(err, "could not list codes")
	}
	return views(qrs), nil
}

// ListMyCodes adds the linked pet's name to each of the caller's codes.
func (s *QRService) ListMyCodes(ctx context.Context, userID string) ([]models.QRView, error) {
	qrs, err := s.DB.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage(err, "could not list codes")
	}

	var petIDs []string
	for _, q := range qrs {
		if q.IsLinked {
			petIDs = append(petIDs, q.PetID)
		}
	}
	names, err := s.Pets.NamesByIDs(ctx, petIDs)
	if err != nil {
		return nil, apperrors.Storage(err, "could not load pet names")
	}

	out := views(qrs)
	for i := range out {
		out[i].PetName = names[out[i].PetID]
	}
	return out, nil
}

// GetByID returns a code to its owner or an administrator. Anyone else gets not-found.
func (s *QRService) GetByID(ctx context.Context, qrID string, actor models.Identity) (*models.QRView, error) {
	qr, err := s.load(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if qr.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperrors.NotFound("qr not found")
	}
	v := qr.View()
	return &v, nil
}

func (s *QRService) ListAll(ctx context.Context, actor models.Identity) ([]models.QRView, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Authorization("admin role required")
	}
	qrs, err := s.DB.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "could not list codes")
	}
	return views(qrs), nil
}

// GetHistory lists scans of a tag, newest first, for its owner only.
func (s *QRService) GetHistory(ctx context.Context, qrID, requesterID string) ([]models.ScanEvent, error) {
	qr, err := s.load(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if qr.UserID != requesterID {
		return nil, apperrors.Authorization("only the owner can view scan history")
	}
	return s.Scans.QueryByQR(ctx, qr.ID)
}

// load maps malformed and missing ids to the same not-found.
func (s *QRService) load(ctx context.Context, qrID string) (*models.QR, error) {
	if _, err := uuid.Parse(qrID); err != nil {
		return nil, apperrors.NotFound("qr not found")
	}
	qr, err := s.DB.GetByID(ctx, qrID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("qr not found")
	}
	if err != nil {
		return nil, apperrors.Storage(err, "could not load qr")
	}
	return qr, nil
}

// loadActive also hides deactivated codes.
func (s *QRService) loadActive(ctx context.Context, qrID string) (*models.QR, error) {
	qr, err := s.load(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if !qr.IsActive {
		return nil, apperrors.NotFound("qr not found")
	}
	return qr, nil
}

func views(qrs []models.QR) []models.QRView {
	out := make([]models.QRView, len(qrs))
	for i := range qrs {
		out[i] = qrs[i].View()
	}
	return out
}
