package models

import (
	"fmt"
	"math"
	"time"

	"github.com/uptrace/bun"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

func (l Location) Validate() error {
	if !finite(l.Latitude) || !finite(l.Longitude) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

type ScanEvent struct {
	bun.BaseModel `bun:"table:qr_scans"`

	ID        string    `bun:"id,pk" json:"id"`
	QRID      string    `bun:"qr_id,notnull" json:"qrId"`
	ScannedBy string    `bun:"scanned_by,nullzero" json:"scannedBy,omitempty"`
	ScannedAt time.Time `bun:"scanned_at,notnull" json:"scannedAt"`
	Location  *Location `bun:"location,type:jsonb" json:"location,omitempty"`
}
