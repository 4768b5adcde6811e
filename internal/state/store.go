package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HistoryRepository persists the resume-history mapping.
// internal/repository provides database-backed and in-memory versions.
type HistoryRepository interface {
	LoadHistory(ctx context.Context) (History, error)
	SaveHistory(ctx context.Context, h History) error
}

// StoreConfig holds store tunables.
type StoreConfig struct {
	// ResumeWindow is how long a saved position stays eligible for resume.
	ResumeWindow time.Duration
	// MinResumePosition is the minimum position (seconds) worth resuming.
	MinResumePosition float64
	// SaveIntervalSeconds throttles position writes per URL.
	SaveIntervalSeconds float64
	// Logger for store logging.
	Logger *slog.Logger
}

// DefaultStoreConfig returns store defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		ResumeWindow:        7 * 24 * time.Hour,
		MinResumePosition:   5,
		SaveIntervalSeconds: 5,
	}
}

// Store is the single-writer, multi-reader player state store. All
// mutations funnel through Dispatch; readers get value snapshots.
type Store struct {
	cfg     StoreConfig
	reducer Reducer
	repo    HistoryRepository
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	state   PlayerState
	nextSub int
	subs    map[int]func(PlayerState)
}

// NewStore creates a store and loads history from the repository once.
// A failed history load is degraded to a warning: playback must not be
// blocked by a broken history blob.
func NewStore(ctx context.Context, repo HistoryRepository, cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cfg:     cfg,
		reducer: Reducer{SaveIntervalSeconds: cfg.SaveIntervalSeconds},
		repo:    repo,
		logger:  logger.With(slog.String("component", "state")),
		now:     time.Now,
		state:   InitialState(),
		subs:    make(map[int]func(PlayerState)),
	}

	if repo != nil {
		history, err := repo.LoadHistory(ctx)
		if err != nil {
			s.logger.Warn("loading history", slog.String("error", err.Error()))
		} else {
			s.Dispatch(Action{Kind: ActionLoadHistory, History: history})
		}
	}
	return s
}

// Dispatch applies one action. If the action changed the history, the new
// mapping is written back to the repository (last-writer-wins).
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	before := s.state
	s.state = s.reducer.Reduce(s.state, a)
	after := s.state
	subs := make([]func(PlayerState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if a.Kind == ActionSavePosition && !historyEqual(before.History, after.History) {
		s.persistHistory(after.History)
	}

	snapshot := after.snapshot()
	for _, fn := range subs {
		fn(snapshot)
	}
}

// State returns a snapshot of the current state.
func (s *Store) State() PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// Subscribe registers a listener called with a snapshot after every
// dispatch. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(PlayerState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SavePosition records the playback position for a URL, throttled to one
// write per elapsed save interval.
func (s *Store) SavePosition(url string, position float64) {
	s.Dispatch(Action{Kind: ActionSavePosition, URL: url, Float: position, At: s.now()})
}

// SavedPosition returns the resumable position for a URL, or 0 when the
// entry is absent, too old, or too close to the start to matter.
func (s *Store) SavedPosition(url string) float64 {
	s.mu.RLock()
	entry, ok := s.state.History[url]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	if s.now().Sub(entry.Timestamp) >= s.cfg.ResumeWindow {
		return 0
	}
	if entry.Position <= s.cfg.MinResumePosition {
		return 0
	}
	return entry.Position
}

// Reset wipes playback state. History survives.
func (s *Store) Reset() {
	s.Dispatch(Action{Kind: ActionReset})
}

// ResetHistory clears the persisted history mapping.
func (s *Store) ResetHistory() error {
	s.Dispatch(Action{Kind: ActionLoadHistory, History: History{}})
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveHistory(context.Background(), History{}); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// History returns a copy of the current history mapping.
func (s *Store) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.History.Clone()
}

func (s *Store) persistHistory(h History) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveHistory(context.Background(), h); err != nil {
		s.logger.Warn("persisting history", slog.String("error", err.Error()))
	}
}

// snapshot returns a copy whose history cannot be mutated by readers.
func (p PlayerState) snapshot() PlayerState {
	p.History = p.History.Clone()
	return p
}

func historyEqual(a, b History) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || va != vb {
			return false
		}
	}
	return true
}
