// Package scanlog keeps the append-only history of QR scans.
package scanlog

import (
	"context"
	"fmt"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"

	"github.com/google/uuid"
)

type Store interface {
	InsertScan(ctx context.Context, event *models.ScanEvent) error
	ListByQR(ctx context.Context, qrID string) ([]models.ScanEvent, error)
}

type Service struct {
	DB     Store
	Logger *logger.Logger
}

func NewService(db Store, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// Append records one scan. scannedBy is empty for anonymous finders.
func (s *Service) Append(ctx context.Context, qrID, scannedBy string, at time.Time, loc *models.Location) (*models.ScanEvent, error) {
	event := &models.ScanEvent{
		ID:        uuid.New().String(),
		QRID:      qrID,
		ScannedBy: scannedBy,
		ScannedAt: at.UTC(),
		Location:  loc,
	}
	if err := s.DB.InsertScan(ctx, event); err != nil {
		s.Logger.Error("SCANLOG", fmt.Sprintf("append scan for qr %s failed: %v", qrID, err))
		return nil, apperrors.Storage(err, "could not record scan")
	}
	return event, nil
}

func (s *Service) QueryByQR(ctx context.Context, qrID string) ([]models.ScanEvent, error) {
	events, err := s.DB.ListByQR(ctx, qrID)
	if err != nil {
		return nil, apperrors.Storage(err, "could not load scan history")
	}
	return events, nil
}
