package playback

import (
	"context"
	"log/slog"
	"sync"
)

// ManagerConfig holds manager tunables.
type ManagerConfig struct {
	// Autoplay attempts playback as soon as a session reaches ready. A
	// refusal by the host environment is logged and swallowed; the
	// session stays ready and waits for an explicit Play.
	Autoplay bool
	// Logger for manager logging.
	Logger *slog.Logger
}

// Manager owns the single live session. Starting playback for a new URL
// fully tears down the previous session before the new one begins, so at
// most one backend holds resources at any time.
type Manager struct {
	deps     SessionDeps
	autoplay bool
	logger   *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager around the shared session dependencies.
func NewManager(deps SessionDeps, cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps:     deps,
		autoplay: cfg.Autoplay,
		logger:   logger.With(slog.String("component", "playback")),
	}
}

// Play replaces the current session with a new one for url and drives it
// to ready. Teardown of the old session completes before any resource of
// the new one is acquired: a still-initializing predecessor is aborted
// and its initialization awaited first. When a resumable position is on
// record for the URL, the playhead is moved there after ready.
func (m *Manager) Play(ctx context.Context, url string, events SessionEvents) (*Session, error) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Teardown()
		prev.awaitInit()
	}

	session := NewSession(url, m.deps, events)
	m.mu.Lock()
	m.current = session
	m.mu.Unlock()

	if err := session.Initialize(ctx); err != nil {
		return session, err
	}

	// A concurrent Play may have superseded this session while it was
	// initializing; it must not keep what it acquired.
	m.mu.Lock()
	superseded := m.current != session
	m.mu.Unlock()
	if superseded {
		session.Teardown()
		return session, ErrSessionTornDown
	}

	if m.deps.Store != nil {
		if pos := m.deps.Store.SavedPosition(url); pos > 0 {
			m.logger.Info("resuming from saved position",
				slog.String("url", url),
				slog.Float64("position", pos),
			)
			session.SeekTo(pos)
		}
	}

	if m.autoplay {
		if err := session.Play(); err != nil {
			// Autoplay refusals are policy, not failure.
			m.logger.Warn("autoplay refused", slog.String("error", err.Error()))
		}
	}
	return session, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop tears down the live session, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	session := m.current
	m.current = nil
	m.mu.Unlock()
	if session != nil {
		session.Teardown()
	}
}
