// Package dbtest spins up an in-memory SQLite database with the production
// schema for repository and transaction tests. All production SQL is kept
// dialect-portable so the same queries run here and on PostgreSQL.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a bun.DB over a private in-memory SQLite instance with all
// application tables created. The database is closed when the test ends.
func New(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=private")
	require.NoError(t, err)

	// A second connection would see an empty database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range database.SchemaModels() {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db
}
