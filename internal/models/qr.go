package models

import (
	"encoding/base64"
	"time"

	"github.com/uptrace/bun"
)

type QR struct {
	bun.BaseModel `bun:"table:qr_codes"`

	ID        string    `bun:"id,pk" json:"id"`
	OrderID   string    `bun:"order_id,nullzero" json:"orderId,omitempty"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	IsActive  bool      `bun:"is_active,notnull" json:"isActive"`
	IsLinked  bool      `bun:"is_linked,notnull" json:"isLinked"`
	PetID     string    `bun:"pet_id,nullzero" json:"petId,omitempty"`
	Image     []byte    `bun:"qr_image" json:"-"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// ImageDataURL renders the PNG payload the way browsers embed it.
func (q *QR) ImageDataURL() string {
	if len(q.Image) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(q.Image)
}

func (q *QR) Summary() QRSummary {
	return QRSummary{ID: q.ID, Image: q.ImageDataURL(), IsLinked: q.IsLinked, IsActive: q.IsActive}
}

func (q *QR) View() QRView {
	return QRView{
		ID:        q.ID,
		OrderID:   q.OrderID,
		IsActive:  q.IsActive,
		IsLinked:  q.IsLinked,
		PetID:     q.PetID,
		Image:     q.ImageDataURL(),
		CreatedAt: q.CreatedAt,
	}
}

type QRSummary struct {
	ID       string `json:"id"`
	Image    string `json:"qrImage"`
	IsLinked bool   `json:"isLinked"`
	IsActive bool   `json:"isActive"`
}

type QRView struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId,omitempty"`
	IsActive  bool      `json:"isActive"`
	IsLinked  bool      `json:"isLinked"`
	PetID     string    `json:"petId,omitempty"`
	PetName   string    `json:"petName,omitempty"`
	Image     string    `json:"qrImage"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScanResult is what a finder sees after scanning a tag.
type ScanResult struct {
	QRID             string            `json:"qrId"`
	IsLinked         bool              `json:"isLinked"`
	NeedsLinking     bool              `json:"needsLinking"`
	Orphaned         bool              `json:"orphaned,omitempty"`
	Pet              *PetPublicProfile `json:"pet,omitempty"`
	RequiresLocation bool              `json:"requiresLocation"`
}

type LinkRequest struct {
	QRID  string `json:"qrId"`
	PetID string `json:"petId"`
}

type LinkResult struct {
	QR            QRView            `json:"qr"`
	Pet           *PetPublicProfile `json:"pet"`
	AlreadyLinked bool              `json:"alreadyLinked"`
	Orphaned      bool              `json:"orphaned,omitempty"`
}
