package migration

import (
	"bytes"
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arvalo/arvalo/store"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接是独立的数据库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"PostgreSQL", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDatabaseType(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestAvailableMigrations_AllDialectsMatch(t *testing.T) {
	var names [][]string
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		files, err := availableMigrations(dt)
		require.NoError(t, err)
		var n []string
		for _, f := range files {
			n = append(n, f.name)
		}
		names = append(names, n)
	}
	assert.Equal(t, []string{"init_schema", "seed_merchant_policies"}, names[0])
	assert.Equal(t, names[0], names[1])
	assert.Equal(t, names[0], names[2])
}

func TestNewMigrator_Invalid(t *testing.T) {
	_, err := NewMigrator(nil, DatabaseTypeSQLite, nil)
	assert.Error(t, err)
	_, err = NewMigratorFromGorm(nil, nil)
	assert.Error(t, err)
}

func TestMigrator_SQLite_Integration(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	m, err := NewMigratorFromGorm(db, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	v, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "second Up is a no-op")

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 2, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	for _, model := range store.Models() {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}

	// 迁移后的表结构能被 store 直接使用
	repo := store.NewRepository(db)
	policy, err := repo.GetMerchantPolicy(ctx, "Best Buy")
	require.NoError(t, err)
	assert.Equal(t, 15, policy.PriceMatchDays)
	require.NoError(t, repo.SavePurchase(ctx, &store.Purchase{UserID: "u1", Merchant: "Target", Price: 20}))

	require.NoError(t, m.Down(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	_, err = repo.GetMerchantPolicy(ctx, "best buy")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, m.DownAll(ctx))
	assert.False(t, db.Migrator().HasTable(&store.Purchase{}))

	// 迁移器不关闭借用的连接
	require.NoError(t, m.Close())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestCLI_Output(t *testing.T) {
	ctx := context.Background()
	m, err := NewMigratorFromGorm(openSQLite(t), nil)
	require.NoError(t, err)
	defer m.Close()

	var buf bytes.Buffer
	cli := NewCLI(m, &buf)

	require.NoError(t, cli.Version(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet.")

	buf.Reset()
	require.NoError(t, cli.Up(ctx))
	assert.Contains(t, buf.String(), "Migrated from version 0 to 2.")

	buf.Reset()
	require.NoError(t, cli.Up(ctx))
	assert.Contains(t, buf.String(), "up to date (version 2)")

	buf.Reset()
	require.NoError(t, cli.Down(ctx, false))
	assert.Contains(t, buf.String(), "Rolled back to version 1.")

	buf.Reset()
	require.NoError(t, cli.Status(ctx))
	out := buf.String()
	assert.Regexp(t, `000001\s+init_schema\s+applied`, out)
	assert.Contains(t, out, "seed_merchant_policies  pending")
	assert.Contains(t, out, "1 applied, 1 pending")

	buf.Reset()
	require.NoError(t, cli.Version(ctx))
	assert.Contains(t, buf.String(), "Current version: 1")
}
