package storage

import (
	"context"
	"testing"

	"sciphi-chat/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

// testKVStore runs the behavior every KVStore implementation shares.
func testKVStore(t *testing.T, store KVStore) {
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "chat.selected.v1", "abc"))
	value, ok, err := store.Get(ctx, "chat.selected.v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	require.NoError(t, store.Set(ctx, "chat.selected.v1", "def"))
	value, _, err = store.Get(ctx, "chat.selected.v1")
	require.NoError(t, err)
	assert.Equal(t, "def", value)

	require.NoError(t, store.Set(ctx, "empty", ""))
	value, ok, err = store.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)

	require.NoError(t, store.Delete(ctx, "chat.selected.v1"))
	_, ok, err = store.Get(ctx, "chat.selected.v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, "never-set"))

	flag, err := GetBool(ctx, store, "accepted", false)
	require.NoError(t, err)
	assert.False(t, flag)

	require.NoError(t, SetBool(ctx, store, "accepted", true))
	flag, err = GetBool(ctx, store, "accepted", false)
	require.NoError(t, err)
	assert.True(t, flag)

	require.NoError(t, store.Set(ctx, "garbled", "maybe"))
	flag, err = GetBool(ctx, store, "garbled", true)
	require.NoError(t, err)
	assert.True(t, flag)
}

func TestMemoryKVStore(t *testing.T) {
	testKVStore(t, NewMemoryKVStore())
}

func TestDBKVStore(t *testing.T) {
	testKVStore(t, NewDBKVStore(setupDB(t), "client-a"))
}

func TestDBKVStoreNamespaces(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	a := NewDBKVStore(db, "client-a")
	b := NewDBKVStore(db, "client-b")

	require.NoError(t, a.Set(ctx, "firstTime", "false"))

	_, ok, err := b.Get(ctx, "firstTime")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "firstTime", "true"))
	require.NoError(t, b.Delete(ctx, "firstTime"))

	value, ok, err := a.Get(ctx, "firstTime")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", value)
}
