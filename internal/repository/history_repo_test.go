package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsink/playsink/internal/config"
	"github.com/playsink/playsink/internal/database"
	"github.com/playsink/playsink/internal/models"
	"github.com/playsink/playsink/internal/state"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHistoryRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db.DB, "playsink-player-state")

	saved := state.History{
		"http://example.com/a.mkv": {Position: 120.5, Timestamp: time.Now().UTC().Truncate(time.Second)},
		"http://example.com/b.mp4": {Position: 33, Timestamp: time.Now().UTC().Truncate(time.Second)},
	}
	require.NoError(t, repo.SaveHistory(context.Background(), saved))

	loaded, err := repo.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 120.5, loaded["http://example.com/a.mkv"].Position)
}

func TestHistoryMissingRowYieldsEmpty(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db.DB, "nothing-here")

	loaded, err := repo.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestHistoryUpsertLastWriterWins(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db.DB, "playsink-player-state")

	require.NoError(t, repo.SaveHistory(context.Background(), state.History{
		"u": {Position: 10, Timestamp: time.Now()},
	}))
	require.NoError(t, repo.SaveHistory(context.Background(), state.History{
		"u": {Position: 20, Timestamp: time.Now()},
	}))

	loaded, err := repo.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, loaded["u"].Position)

	// Only one row exists for the key.
	var count int64
	require.NoError(t, db.Model(&models.KVEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHistoryPersistedLayout(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db.DB, "playsink-player-state")
	require.NoError(t, repo.SaveHistory(context.Background(), state.History{
		"u": {Position: 7, Timestamp: time.Now()},
	}))

	var entry models.KVEntry
	require.NoError(t, db.First(&entry, "key = ?", "playsink-player-state").Error)

	// The blob is the documented {history: {url: {position, timestamp}}}
	// shape.
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(entry.Value, &decoded))
	assert.Contains(t, decoded, "history")
}

func TestHistoryCorruptBlob(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.KVEntry{
		Key:   "broken",
		Value: []byte("{not json"),
	}).Error)

	repo := NewHistoryRepository(db.DB, "broken")
	_, err := repo.LoadHistory(context.Background())
	assert.Error(t, err)
}

func TestMemoryHistoryRepo(t *testing.T) {
	repo := NewMemoryHistoryRepository()

	loaded, err := repo.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)

	h := state.History{"u": {Position: 50, Timestamp: time.Now()}}
	require.NoError(t, repo.SaveHistory(context.Background(), h))

	// Mutating the caller's map must not affect the stored copy.
	h["u"] = state.HistoryEntry{Position: 999}

	loaded, err = repo.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50.0, loaded["u"].Position)
}
