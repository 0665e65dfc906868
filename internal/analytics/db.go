package analytics

import (
	"context"
	"time"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
)

// DB runs the aggregate queries behind the admin dashboard. The SQL stays
// inside what Postgres and SQLite both understand.
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

type statusCount struct {
	Status models.OrderStatus `bun:"status"`
	Count  int                `bun:"count"`
}

func (db *DB) OrderCountsByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	var rows []statusCount
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.OrderStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// RevenueData is money and tags of completed orders.
type RevenueData struct {
	Revenue  int64 `bun:"revenue"`
	TagsSold int   `bun:"tags_sold"`
}

func (db *DB) CompletedRevenue(ctx context.Context) (RevenueData, error) {
	var out RevenueData
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("COALESCE(SUM(total_amount), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS tags_sold").
		Where("status = ?", models.OrderStatusCompleted).
		Scan(ctx, &out)
	return out, err
}

type QRCountData struct {
	Total  int `bun:"total"`
	Active int `bun:"active"`
	Linked int `bun:"linked"`
}

func (db *DB) QRCounts(ctx context.Context) (QRCountData, error) {
	var out QRCountData
	err := db.bun.NewSelect().
		Model((*models.QR)(nil)).
		ColumnExpr("COUNT(*) AS total").
		ColumnExpr("COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active").
		ColumnExpr("COALESCE(SUM(CASE WHEN is_linked THEN 1 ELSE 0 END), 0) AS linked").
		Scan(ctx, &out)
	return out, err
}

// DailyRevenueData represents one day of completed sales
type DailyRevenueData struct {
	Day      string `bun:"day"`
	Revenue  int64  `bun:"revenue"`
	Orders   int    `bun:"orders"`
	TagsSold int    `bun:"tags_sold"`
}

// DailyRevenueSince groups completed orders by the day they were placed.
func (db *DB) DailyRevenueSince(ctx context.Context, since time.Time) ([]DailyRevenueData, error) {
	var rows []DailyRevenueData
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("CAST(DATE(created_at) AS TEXT) AS day").
		ColumnExpr("SUM(total_amount) AS revenue").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("SUM(quantity) AS tags_sold").
		Where("status = ?", models.OrderStatusCompleted).
		Where("created_at >= ?", since).
		GroupExpr("DATE(created_at)").
		OrderExpr("DATE(created_at)").
		Scan(ctx, &rows)
	return rows, err
}
