//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-pettag/internal/database/migrations"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/order/db"
	qrdb "ms-pettag/internal/qr/db"
	scandb "ms-pettag/internal/scanlog/db"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// setupPostgres starts a throwaway Postgres, applies the embedded migrations
// and returns a bun handle on it.
func setupPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pettag"),
		postgres.WithUsername("pettag"),
		postgres.WithPassword("pettag"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	runner := migrations.NewRunner(sqldb, migrations.DefaultOptions(), logger.NewNop())
	require.NoError(t, runner.RunMigrations())
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func TestPostgres_ConcurrentCompletionKeepsOneBatch(t *testing.T) {
	orderDB := &db.DB{Bun: setupPostgres(t)}
	ctx := context.Background()

	o := newOrder("user-1", 3, time.Now().UTC())
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = orderDB.CompleteWithQRBatch(ctx, o.ID, newBatch(o))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, db.ErrNotPending), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	got, err := orderDB.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)
	assert.Len(t, got.QRCodes, 3)

	byOrder, err := orderDB.GetQRsByOrderIDs(ctx, []string{o.ID})
	require.NoError(t, err)
	assert.Len(t, byOrder[o.ID], 3, "losing batches must roll back")
}

func TestPostgres_CheckConstraints(t *testing.T) {
	bunDB := setupPostgres(t)
	ctx := context.Background()

	// bypass CreateOrder so the schema itself is what rejects the rows
	tooMany := newOrder("user-1", 11, time.Now().UTC())
	tooMany.TotalAmount = 11 * models.UnitPrice
	tooMany.QRCodes = []string{}
	_, err := bunDB.NewInsert().Model(tooMany).Exec(ctx)
	assert.Error(t, err)

	mispriced := newOrder("user-1", 2, time.Now().UTC())
	mispriced.TotalAmount = 1
	mispriced.QRCodes = []string{}
	_, err = bunDB.NewInsert().Model(mispriced).Exec(ctx)
	assert.Error(t, err)

	linkedWithoutPet := models.QR{ID: newBatch(mispriced)[0].ID, UserID: "user-1", IsActive: true, IsLinked: true, CreatedAt: time.Now().UTC()}
	_, err = bunDB.NewInsert().Model(&linkedWithoutPet).Exec(ctx)
	assert.Error(t, err)
}

func TestPostgres_ScanHistorySurvivesQRDeletion(t *testing.T) {
	bunDB := setupPostgres(t)
	ctx := context.Background()
	qrs := &qrdb.DB{Bun: bunDB}
	scans := &scandb.DB{Bun: bunDB}

	o := newOrder("user-1", 1, time.Now().UTC())
	qr := newBatch(o)[0]
	qr.OrderID = ""
	require.NoError(t, qrs.InsertBatch(ctx, []models.QR{qr}))
	require.NoError(t, scans.InsertScan(ctx, &models.ScanEvent{
		ID:        uuid.NewString(),
		QRID:      qr.ID,
		ScannedAt: time.Now().UTC(),
		Location:  &models.Location{Latitude: 4.65, Longitude: -74.05},
	}))

	require.NoError(t, qrs.DeleteOwned(ctx, qr.ID, "user-1"))

	history, err := scans.ListByQR(ctx, qr.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
