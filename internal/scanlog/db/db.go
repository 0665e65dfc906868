package db

import (
	"context"
	"time"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertScan(ctx context.Context, event *models.ScanEvent) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// ListByQR → newest first
func (d *DB) ListByQR(ctx context.Context, qrID string) ([]models.ScanEvent, error) {
	events := []models.ScanEvent{}
	err := d.Bun.NewSelect().
		Model(&events).
		Where("qr_id = ?", qrID).
		OrderExpr("scanned_at DESC, id DESC").
		Scan(ctx)
	return events, err
}

func (d *DB) CountSince(ctx context.Context, since time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.ScanEvent)(nil)).
		Where("scanned_at >= ?", since).
		Count(ctx)
}
