package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-pettag/internal/analytics"
	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/database/dbtest"
	"ms-pettag/internal/models"
	scandb "ms-pettag/internal/scanlog/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var admin = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}

func order(status models.OrderStatus, qty int) *models.Order {
	now := time.Now()
	return &models.Order{
		ID:            uuid.NewString(),
		UserID:        "u-1",
		Quantity:      qty,
		TotalAmount:   int64(qty) * models.UnitPrice,
		Status:        status,
		PaymentStatus: models.PaymentStatusPending,
		QRCodes:       []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func seed(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()

	for _, o := range []*models.Order{
		order(models.OrderStatusCompleted, 2),
		order(models.OrderStatusCompleted, 1),
		order(models.OrderStatusPending, 5),
		order(models.OrderStatusFailed, 3),
	} {
		_, err := db.NewInsert().Model(o).Exec(ctx)
		require.NoError(t, err)
	}

	qrs := []models.QR{
		{ID: uuid.NewString(), UserID: "u-1", IsActive: true, IsLinked: true, PetID: "p-1", CreatedAt: time.Now()},
		{ID: uuid.NewString(), UserID: "u-1", IsActive: true, CreatedAt: time.Now()},
		{ID: uuid.NewString(), UserID: "u-1", IsActive: false, CreatedAt: time.Now()},
	}
	_, err := db.NewInsert().Model(&qrs).Exec(ctx)
	require.NoError(t, err)

	scans := []models.ScanEvent{
		{ID: uuid.NewString(), QRID: qrs[0].ID, ScannedAt: time.Now().Add(-time.Hour)},
		{ID: uuid.NewString(), QRID: qrs[0].ID, ScannedAt: time.Now().Add(-2 * time.Hour)},
		{ID: uuid.NewString(), QRID: qrs[1].ID, ScannedAt: time.Now().Add(-48 * time.Hour)},
	}
	_, err = db.NewInsert().Model(&scans).Exec(ctx)
	require.NoError(t, err)
}

func TestGetStats(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	svc := analytics.NewService(analytics.NewDB(db), &scandb.DB{Bun: db})

	stats, err := svc.GetStats(context.Background(), admin)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Orders.Total)
	assert.Equal(t, 2, stats.Orders.Completed)
	assert.Equal(t, 1, stats.Orders.Pending)
	assert.Equal(t, 1, stats.Orders.Failed)
	assert.Equal(t, 3*models.UnitPrice, stats.Orders.Revenue)
	assert.Equal(t, 3, stats.Orders.TagsSold)

	assert.Equal(t, analytics.QRStats{Total: 3, Active: 2, Linked: 1}, stats.QRs)
	assert.Equal(t, 2, stats.ScansLast24h)

	var daily int64
	for _, d := range stats.DailyRevenue {
		daily += d.Revenue
	}
	assert.Equal(t, stats.Orders.Revenue, daily)
}

func TestGetStats_EmptyDatabase(t *testing.T) {
	db := dbtest.NewSQLite(t)
	svc := analytics.NewService(analytics.NewDB(db), &scandb.DB{Bun: db})

	stats, err := svc.GetStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Zero(t, stats.Orders.Total)
	assert.Zero(t, stats.Orders.Revenue)
	assert.Zero(t, stats.QRs.Total)
	assert.Empty(t, stats.DailyRevenue)
}

func TestGetStats_AdminOnly(t *testing.T) {
	db := dbtest.NewSQLite(t)
	svc := analytics.NewService(analytics.NewDB(db), &scandb.DB{Bun: db})

	_, err := svc.GetStats(context.Background(), models.Identity{UserID: "u-1", Role: models.RoleUser})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}

type downScans struct{}

func (downScans) CountSince(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestGetStats_StorageFailure(t *testing.T) {
	db := dbtest.NewSQLite(t)
	svc := analytics.NewService(analytics.NewDB(db), downScans{})

	_, err := svc.GetStats(context.Background(), admin)
	assert.True(t, apperrors.Is(err, apperrors.KindStorage))
}
