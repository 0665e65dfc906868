// Package pets reads the pet records owned by the pet profile service. The only
// write this service performs is the last-seen location reported by finders.
package pets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
)

var ErrPetNotFound = errors.New("pet not found")

type Directory struct {
	Bun *bun.DB
	now func() time.Time
}

func NewDirectory(db *bun.DB) *Directory {
	return &Directory{Bun: db, now: time.Now}
}

// FindByID loads the pet with its owner, ErrPetNotFound when absent.
func (d *Directory) FindByID(ctx context.Context, petID string) (*models.Pet, error) {
	var pet models.Pet
	err := d.Bun.NewSelect().
		Model(&pet).
		Relation("Owner").
		Where("pet.id = ?", petID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pet %s: %w", petID, err)
	}
	return &pet, nil
}

// GetPublicProfile is what finders see. Owner contact details appear only
// when the owner opted in.
func (d *Directory) GetPublicProfile(ctx context.Context, petID string) (*models.PetPublicProfile, error) {
	pet, err := d.FindByID(ctx, petID)
	if err != nil {
		return nil, err
	}
	return PublicProfile(pet, d.now()), nil
}

func (d *Directory) UpdateLastSeenLocation(ctx context.Context, petID string, loc models.Location) error {
	res, err := d.Bun.NewUpdate().
		Model(&models.Pet{ID: petID, LastSeenLocation: &loc, LastSeenAt: d.now().UTC()}).
		Column("last_seen_location", "last_seen_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update pet %s location: %w", petID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPetNotFound
	}
	return nil
}

// NamesByIDs resolves display names for the owner's QR list.
func (d *Directory) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var pets []models.Pet
	err := d.Bun.NewSelect().
		Model(&pets).
		Column("id", "name").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pets {
		names[p.ID] = p.Name
	}
	return names, nil
}

func PublicProfile(pet *models.Pet, now time.Time) *models.PetPublicProfile {
	profile := &models.PetPublicProfile{
		ID:               pet.ID,
		Name:             pet.Name,
		Species:          pet.Species,
		Breed:            pet.Breed,
		Color:            pet.Color,
		Age:              pet.AgeYears(now),
		Description:      pet.Description,
		ProfilePicture:   pet.ProfilePicture,
		Photos:           pet.Photos,
		LastSeenLocation: pet.LastSeenLocation,
	}
	if profile.Photos == nil {
		profile.Photos = []string{}
	}
	if pet.Owner != nil {
		profile.Owner = &models.OwnerContact{ID: pet.Owner.ID, Name: pet.Owner.Name}
		if pet.Owner.ShowContact {
			profile.Owner.Email = pet.Owner.Email
			profile.Owner.Phone = pet.Owner.Phone
		}
	}
	return profile
}
