package db

import (
	"context"
	"database/sql"
	"errors"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
)

// ErrNotLinkable means the QR was linked or deactivated between read and write.
var ErrNotLinkable = errors.New("qr is no longer linkable")

type DB struct {
	Bun *bun.DB
}

// InsertBatch → insert freshly minted QRs
func (d *DB) InsertBatch(ctx context.Context, batch []models.QR) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&batch).Exec(ctx)
	return err
}

// GetByID → sql.ErrNoRows when absent
func (d *DB) GetByID(ctx context.Context, id string) (*models.QR, error) {
	var qr models.QR
	err := d.Bun.NewSelect().
		Model(&qr).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.QR, error) {
	qrs := []models.QR{}
	err := d.Bun.NewSelect().
		Model(&qrs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return qrs, err
}

func (d *DB) ListAll(ctx context.Context) ([]models.QR, error) {
	qrs := []models.QR{}
	err := d.Bun.NewSelect().
		Model(&qrs).
		Order("created_at DESC").
		Scan(ctx)
	return qrs, err
}

// LinkToPet sets pet_id once. The is_linked guard makes a concurrent second link lose.
func (d *DB) LinkToPet(ctx context.Context, id, petID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.QR)(nil)).
		Set("is_linked = ?", true).
		Set("pet_id = ?", petID).
		Where("id = ?", id).
		Where("is_linked = ?", false).
		Where("is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotLinkable
	}
	return nil
}

// Deactivate → one-way is_active=false
func (d *DB) Deactivate(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.QR)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOwned removes the row only when userID owns it.
func (d *DB) DeleteOwned(ctx context.Context, id, userID string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.QR)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
