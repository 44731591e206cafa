package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, HealthCheck(context.Background(), db))
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	db, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, Migrate(db, &widget{}))
	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	require.NoError(t, Close(db))

	reopened, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer Close(reopened)

	var count int64
	require.NoError(t, reopened.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestMigrateAndDrop(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db, &widget{}))
	assert.True(t, HasTable(db, &widget{}))

	require.NoError(t, DropAllTables(db, &widget{}))
	assert.False(t, HasTable(db, &widget{}))
}

func TestHealthCheck_Closed(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	require.NoError(t, Close(db))

	assert.Error(t, HealthCheck(context.Background(), db))
}
