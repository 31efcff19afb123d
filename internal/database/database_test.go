package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/config"
)

func testConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		LogLevel:     "silent",
	}
}

func TestNew_Sqlite(t *testing.T) {
	db, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.False(t, db.IsPostgres())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Driver = "mysql"

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_Transaction(t *testing.T) {
	db, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	type row struct {
		ID   uint `gorm:"primarykey"`
		Name string
	}
	require.NoError(t, db.AutoMigrate(&row{}))

	ctx := context.Background()

	require.NoError(t, db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row{Name: "kept"}).Error
	}))

	wantErr := assert.AnError
	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&row{Name: "rolled back"}).Error; err != nil {
			return err
		}
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	var count int64
	require.NoError(t, db.Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
