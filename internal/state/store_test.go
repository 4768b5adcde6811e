package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory HistoryRepository that counts saves.
type memRepo struct {
	mu      sync.Mutex
	history History
	saves   int
	loadErr error
}

func (m *memRepo) LoadHistory(ctx context.Context) (History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.history.Clone(), nil
}

func (m *memRepo) SaveHistory(ctx context.Context, h History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = h.Clone()
	m.saves++
	return nil
}

func (m *memRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func testStore(t *testing.T, repo HistoryRepository) *Store {
	t.Helper()
	return NewStore(context.Background(), repo, DefaultStoreConfig())
}

func TestStoreLoadsHistoryOnCreation(t *testing.T) {
	repo := &memRepo{history: History{
		"http://example.com/a.mkv": {Position: 90, Timestamp: time.Now()},
	}}
	s := testStore(t, repo)

	assert.Equal(t, 90.0, s.SavedPosition("http://example.com/a.mkv"))
}

func TestStoreSavePositionPersists(t *testing.T) {
	repo := &memRepo{}
	s := testStore(t, repo)

	s.SavePosition("http://example.com/a.mp4", 42)
	assert.Equal(t, 1, repo.saveCount())
	assert.Equal(t, 42.0, repo.history["http://example.com/a.mp4"].Position)
}

func TestStoreSaveThrottleSkipsPersist(t *testing.T) {
	repo := &memRepo{}
	s := testStore(t, repo)

	s.SavePosition("u", 11)
	s.SavePosition("u", 13) // same 5s interval, dropped
	s.SavePosition("u", 16)

	assert.Equal(t, 2, repo.saveCount())
}

func TestSavedPositionEligibility(t *testing.T) {
	s := testStore(t, &memRepo{})

	// Below the minimum position: not worth resuming.
	s.SavePosition("short", 4)
	assert.Zero(t, s.SavedPosition("short"))

	s.SavePosition("long", 300)
	assert.Equal(t, 300.0, s.SavedPosition("long"))

	// Simulate the clock moving past the resume window.
	s.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	assert.Zero(t, s.SavedPosition("long"))

	assert.Zero(t, s.SavedPosition("never-seen"))
}

func TestStoreResetKeepsHistory(t *testing.T) {
	s := testStore(t, &memRepo{})
	s.Dispatch(Action{Kind: ActionSetURL, URL: "http://example.com/a.mp4"})
	s.Dispatch(Action{Kind: ActionSetStatus, Text: "playing"})
	s.SavePosition("http://example.com/a.mp4", 60)

	s.Reset()

	snap := s.State()
	assert.Equal(t, "idle", snap.Status)
	assert.Empty(t, snap.URL)
	assert.Equal(t, 60.0, s.SavedPosition("http://example.com/a.mp4"))
}

func TestStoreResetHistory(t *testing.T) {
	repo := &memRepo{}
	s := testStore(t, repo)
	s.SavePosition("u", 100)

	require.NoError(t, s.ResetHistory())
	assert.Zero(t, s.SavedPosition("u"))
	assert.Empty(t, repo.history)
}

func TestStoreSubscribe(t *testing.T) {
	s := testStore(t, &memRepo{})

	var got []string
	unsub := s.Subscribe(func(p PlayerState) {
		got = append(got, p.Status)
	})

	s.Dispatch(Action{Kind: ActionSetStatus, Text: "loading"})
	s.Dispatch(Action{Kind: ActionSetStatus, Text: "ready"})
	unsub()
	s.Dispatch(Action{Kind: ActionSetStatus, Text: "playing"})

	assert.Equal(t, []string{"loading", "ready"}, got)
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := testStore(t, &memRepo{})
	s.SavePosition("u", 50)

	snap := s.State()
	snap.History["u"] = HistoryEntry{Position: 999}

	assert.Equal(t, 50.0, s.State().History["u"].Position, "mutating a snapshot must not affect the store")
}

func TestStoreBrokenHistoryLoadIsNonFatal(t *testing.T) {
	repo := &memRepo{loadErr: assert.AnError}
	s := testStore(t, repo)

	// Store still works; history starts empty.
	s.SavePosition("u", 30)
	assert.Equal(t, 30.0, s.SavedPosition("u"))
}
