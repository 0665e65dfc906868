package analytics

import (
	"context"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/models"
)

// DailyWindow is how far back the dashboard chart goes.
const DailyWindow = 30 * 24 * time.Hour

type Store interface {
	OrderCountsByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
	CompletedRevenue(ctx context.Context) (RevenueData, error)
	QRCounts(ctx context.Context) (QRCountData, error)
	DailyRevenueSince(ctx context.Context, since time.Time) ([]DailyRevenueData, error)
}

type ScanCounter interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Service handles analytics operations
type Service struct {
	db    Store
	scans ScanCounter
	now   func() time.Time
}

func NewService(db Store, scans ScanCounter) *Service {
	return &Service{db: db, scans: scans, now: time.Now}
}

type OrderStats struct {
	Total     int   `json:"total"`
	Pending   int   `json:"pending"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Revenue   int64 `json:"revenue"`
	TagsSold  int   `json:"tagsSold"`
}

type QRStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Linked int `json:"linked"`
}

type DailyRevenue struct {
	Date     string `json:"date"`
	Revenue  int64  `json:"revenue"`
	Orders   int    `json:"orders"`
	TagsSold int    `json:"tagsSold"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	Orders       OrderStats     `json:"orders"`
	QRs          QRStats        `json:"qrs"`
	ScansLast24h int            `json:"scansLast24h"`
	DailyRevenue []DailyRevenue `json:"dailyRevenue"`
	Currency     string         `json:"currency"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// GetStats aggregates orders, tags and scans. Admin only.
func (s *Service) GetStats(ctx context.Context, actor models.Identity) (*Stats, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Authorization("admin role required")
	}
	now := s.now()

	counts, err := s.db.OrderCountsByStatus(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "could not count orders")
	}
	revenue, err := s.db.CompletedRevenue(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "could not sum revenue")
	}
	qrs, err := s.db.QRCounts(ctx)
	if err != nil {
		return nil, apperrors.Storage(err, "could not count qr codes")
	}
	scans, err := s.scans.CountSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, apperrors.Storage(err, "could not count scans")
	}
	daily, err := s.db.DailyRevenueSince(ctx, now.Add(-DailyWindow))
	if err != nil {
		return nil, apperrors.Storage(err, "could not load daily revenue")
	}

	stats := &Stats{
		Orders: OrderStats{
			Pending:   counts[models.OrderStatusPending],
			Completed: counts[models.OrderStatusCompleted],
			Failed:    counts[models.OrderStatusFailed],
			Revenue:   revenue.Revenue,
			TagsSold:  revenue.TagsSold,
		},
		QRs:          QRStats{Total: qrs.Total, Active: qrs.Active, Linked: qrs.Linked},
		ScansLast24h: scans,
		DailyRevenue: make([]DailyRevenue, 0, len(daily)),
		Currency:     "COP",
		GeneratedAt:  now.UTC(),
	}
	for _, n := range counts {
		stats.Orders.Total += n
	}
	for _, d := range daily {
		stats.DailyRevenue = append(stats.DailyRevenue, DailyRevenue{
			Date:     d.Day,
			Revenue:  d.Revenue,
			Orders:   d.Orders,
			TagsSold: d.TagsSold,
		})
	}
	return stats, nil
}
