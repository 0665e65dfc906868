// Package dbtest opens throwaway SQLite databases for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"ms-pettag/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// AllModels lists every table the service touches.
var AllModels = []interface{}{
	(*models.User)(nil),
	(*models.Pet)(nil),
	(*models.Order)(nil),
	(*models.QR)(nil),
	(*models.ScanEvent)(nil),
}

// NewSQLite returns an in-memory database with the given tables created.
// With no models it creates AllModels.
func NewSQLite(t testing.TB, tables ...interface{}) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	if len(tables) == 0 {
		tables = AllModels
	}
	for _, m := range tables {
		if _, err := bunDB.NewCreateTable().Model(m).Exec(context.Background()); err != nil {
			t.Fatalf("create table %T: %v", m, err)
		}
	}
	return bunDB
}
