package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the slice of the account record the pet directory reads.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string `bun:"id,pk" json:"id"`
	Name        string `bun:"name" json:"name"`
	Email       string `bun:"email" json:"email"`
	Phone       string `bun:"phone" json:"phone,omitempty"`
	ShowContact bool   `bun:"show_contact,notnull" json:"showContact"`
}

type Pet struct {
	bun.BaseModel `bun:"table:pets"`

	ID               string    `bun:"id,pk" json:"id"`
	OwnerID          string    `bun:"owner_id,notnull" json:"ownerId"`
	Name             string    `bun:"name,notnull" json:"name"`
	Species          string    `bun:"species" json:"species"`
	Breed            string    `bun:"breed" json:"breed"`
	Color            string    `bun:"color" json:"color"`
	BirthDate        time.Time `bun:"birth_date,nullzero" json:"birthDate,omitempty"`
	Description      string    `bun:"description" json:"description"`
	ProfilePicture   string    `bun:"profile_picture,nullzero" json:"profilePicture,omitempty"`
	Photos           []string  `bun:"photos,type:jsonb" json:"photos"`
	LastSeenLocation *Location `bun:"last_seen_location,type:jsonb" json:"lastSeenLocation,omitempty"`
	LastSeenAt       time.Time `bun:"last_seen_at,nullzero" json:"lastSeenAt,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"createdAt"`

	Owner *User `bun:"rel:belongs-to,join:owner_id=id" json:"-"`
}

// AgeYears returns whole years since BirthDate, or nil when unknown.
func (p *Pet) AgeYears(now time.Time) *int {
	if p.BirthDate.IsZero() {
		return nil
	}
	years := now.Year() - p.BirthDate.Year()
	if now.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}

type OwnerContact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type PetPublicProfile struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Species          string        `json:"species"`
	Breed            string        `json:"breed"`
	Color            string        `json:"color,omitempty"`
	Age              *int          `json:"age,omitempty"`
	Description      string        `json:"description,omitempty"`
	ProfilePicture   string        `json:"profilePicture,omitempty"`
	Photos           []string      `json:"photos"`
	LastSeenLocation *Location     `json:"lastSeenLocation,omitempty"`
	Owner            *OwnerContact `json:"owner,omitempty"`
}
