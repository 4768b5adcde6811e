package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/playsink/playsink/internal/classifier"
	"github.com/playsink/playsink/internal/media"
	"github.com/playsink/playsink/internal/remux"
	"github.com/playsink/playsink/internal/state"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusRemuxing Status = "remuxing"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusEnded    Status = "ended"
	StatusError    Status = "error"
)

// Remuxer is the slice of the remux pipeline a session needs.
// *remux.Pipeline satisfies it.
type Remuxer interface {
	Prepare(ctx context.Context, job remux.Job, onProgress remux.ProgressFunc) (*remux.Artifact, error)
}

// Prober produces a descriptive media snapshot for a URL.
// *remux.Pipeline satisfies it.
type Prober interface {
	Probe(ctx context.Context, url string, hint media.StreamKind) (*media.MediaInfo, error)
}

// SessionEvents is the notification surface of a session. Nil handlers
// are skipped. Handlers are called from the goroutine driving the
// session; they must not call back into the session synchronously.
type SessionEvents struct {
	OnStreamInfo    func(media.StreamDescriptor)
	OnMediaInfo     func(media.MediaInfo)
	OnRemuxProgress func(progress float64)
	OnReady         func()
	OnPlay          func()
	OnPause         func()
	OnTimeUpdate    func(currentTime, duration float64)
	OnBuffering     func(buffering bool)
	OnEnded         func()
	OnError         func(error)
}

// SessionDeps are the collaborators a session orchestrates.
type SessionDeps struct {
	Sink           Sink
	EngineProvider EngineProvider
	Remuxer        Remuxer
	Prober         Prober
	Blobs          *BlobRegistry
	// Store is optional; when set, the session mirrors its lifecycle into
	// the shared state store.
	Store  *state.Store
	Logger *slog.Logger
}

// Session drives one URL from classification through backend selection to
// playing, and owns the resources the backend acquired until Teardown.
type Session struct {
	id     string
	url    string
	deps   SessionDeps
	events SessionEvents
	logger *slog.Logger

	mu           sync.Mutex
	status       Status
	initializing bool
	tornDown     bool
	initCancel   context.CancelFunc
	initDone     chan struct{}
	backend      Backend
	descriptor   media.StreamDescriptor
	mediaInfo    media.MediaInfo
	jobID        string
	unsubSink    func()
	unsubEngine  func()
}

// NewSession creates a session for one URL. Nothing happens until
// Initialize.
func NewSession(url string, deps SessionDeps, events SessionEvents) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		url:    url,
		deps:   deps,
		events: events,
		logger: logger.With(
			slog.String("component", "playback"),
			slog.String("session_id", id),
		),
		status:  StatusIdle,
		backend: Backend{Kind: media.BackendNone},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// URL returns the session's source URL.
func (s *Session) URL() string { return s.url }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Descriptor returns the classification result, valid once Initialize has
// started.
func (s *Session) Descriptor() media.StreamDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

// Backend returns the selected backend variant.
func (s *Session) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// MediaInfo returns the descriptive snapshot gathered during
// initialization. Zero-valued fields were not determined.
func (s *Session) MediaInfo() media.MediaInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaInfo
}

// Initialize classifies the URL, selects a backend, and drives it to
// ready. Blocking; run it on its own goroutine when callers need the
// event surface instead. A second call while one is in flight is dropped
// with ErrInitializationInFlight.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return ErrSessionTornDown
	}
	if s.initializing {
		s.mu.Unlock()
		return ErrInitializationInFlight
	}
	// Teardown cancels this context so a superseded initialization
	// unwinds instead of racing the next session for the shared sink.
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.initializing = true
	s.initCancel = cancel
	s.initDone = done
	s.status = StatusLoading
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.initializing = false
		s.initCancel = nil
		s.mu.Unlock()
		close(done)
	}()

	s.dispatch(state.Action{Kind: state.ActionSetURL, URL: s.url})
	s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusLoading)})

	desc := classifier.Classify(s.url)
	s.mu.Lock()
	s.descriptor = desc
	s.mu.Unlock()

	s.logger.Info("session initializing",
		slog.String("url", s.url),
		slog.String("kind", desc.Kind.String()),
		slog.String("category", desc.Category.String()),
	)
	s.dispatch(state.Action{Kind: state.ActionSetStreamInfo, StreamInfo: &desc})
	s.emitStreamInfo(desc)

	var err error
	switch {
	case desc.Category == media.CategoryRemux:
		err = s.initRemux(ctx, desc)
	case desc.Category == media.CategoryLive && !s.deps.Sink.CanPlayNatively(desc.Kind):
		err = s.initAdaptive(ctx, desc)
	default:
		// Native, plus the sink-plays-it-natively refinement for live
		// kinds and the optimistic attempt for unknown ones.
		err = s.initNative(ctx, s.url, media.BackendNative)
	}
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	torn := s.tornDown
	s.mu.Unlock()
	if torn {
		return ErrSessionTornDown
	}

	s.becomeReady()
	return nil
}

// awaitInit blocks until an in-flight Initialize has returned, if any.
func (s *Session) awaitInit() {
	s.mu.Lock()
	done := s.initDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// initNative points the sink at src and waits for it to become playable.
func (s *Session) initNative(ctx context.Context, src string, kind media.BackendKind) error {
	ready := make(chan struct{}, 1)
	failed := make(chan *SinkError, 1)
	unsub := s.deps.Sink.Subscribe(SinkEvents{
		OnCanPlay: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnError: func(e *SinkError) {
			select {
			case failed <- e:
			default:
			}
		},
	})
	defer unsub()

	s.deps.Sink.SetSource(src)
	s.deps.Sink.Load()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-failed:
		return e
	case <-ready:
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return ErrSessionTornDown
	}
	s.backend.Kind = kind
	s.mu.Unlock()

	info := s.collectNativeInfo(ctx)
	s.setMediaInfo(info)
	s.subscribeSink()
	return nil
}

// initAdaptive hands the URL to an adaptive engine attached to the sink.
func (s *Session) initAdaptive(ctx context.Context, desc media.StreamDescriptor) error {
	provider := s.deps.EngineProvider
	if provider == nil || !provider.IsSupported() {
		return ErrEngineUnsupported
	}

	engine := provider.NewEngine()
	profile := EngineProfile{}
	if desc.Category == media.CategoryLive {
		profile = LiveProfile()
	}
	engine.Configure(profile)

	if err := engine.Attach(s.deps.Sink); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineLoad, err)
	}
	if err := engine.Load(ctx, s.url); err != nil {
		// A failed engine never becomes the session backend; release it
		// here since Teardown will not see it.
		if derr := engine.Destroy(); derr != nil {
			s.logger.Warn("destroying failed engine", slog.String("error", derr.Error()))
		}
		return fmt.Errorf("%w: %w", ErrEngineLoad, err)
	}

	s.mu.Lock()
	if s.tornDown {
		// Teardown already ran and will never see this engine; release it
		// before unwinding.
		s.mu.Unlock()
		if derr := engine.Destroy(); derr != nil {
			s.logger.Warn("destroying superseded engine", slog.String("error", derr.Error()))
		}
		return ErrSessionTornDown
	}
	s.backend = Backend{Kind: media.BackendAdaptive, Engine: engine}
	s.unsubEngine = engine.Subscribe(EngineEvents{
		OnError:     func(err error) { s.fail(err) },
		OnBuffering: s.emitBuffering,
	})
	s.mu.Unlock()

	for _, track := range engine.ActiveRenditionTracks() {
		if track.Active {
			s.setMediaInfo(track.MediaInfo())
			break
		}
	}
	s.subscribeSink()
	return nil
}

// initRemux runs the remux pipeline and hands the artifact to the sink as
// a blob-backed native source.
func (s *Session) initRemux(ctx context.Context, desc media.StreamDescriptor) error {
	s.setStatus(StatusRemuxing)
	s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusRemuxing)})

	var known float64
	if s.deps.Prober != nil {
		if info, err := s.deps.Prober.Probe(ctx, s.url, desc.Kind); err != nil {
			s.logger.Warn("probe failed, progress will be approximate",
				slog.String("error", err.Error()))
		} else {
			known = info.Duration
			s.setMediaInfo(*info)
		}
	}

	job := remux.NewJob(s.url, desc.Kind)
	job.DurationSeconds = known
	s.mu.Lock()
	s.jobID = job.ID
	s.mu.Unlock()

	artifact, err := s.deps.Remuxer.Prepare(ctx, job, func(u remux.ProgressUpdate) {
		// Output from a superseded job must not leak into this session.
		s.mu.Lock()
		stale := s.jobID != u.JobID || s.tornDown
		s.mu.Unlock()
		if stale {
			return
		}
		s.dispatch(state.Action{Kind: state.ActionSetRemuxProgress, Float: u.Progress})
		s.emitRemuxProgress(u.Progress)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	stale := s.jobID != artifact.JobID || s.tornDown
	s.mu.Unlock()
	if stale {
		return ErrSessionTornDown
	}

	handle := s.deps.Blobs.Create(artifact.Data, artifact.MIMEType)
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		s.deps.Blobs.Revoke(handle)
		return ErrSessionTornDown
	}
	s.backend = Backend{Kind: media.BackendRemuxing, BlobHandle: handle}
	s.mu.Unlock()

	return s.initNative(ctx, handle, media.BackendRemuxing)
}

// collectNativeInfo merges sink-reported dimensions with whatever the
// prober can extract. Probe failures degrade to a dimensions-only
// snapshot.
func (s *Session) collectNativeInfo(ctx context.Context) media.MediaInfo {
	s.mu.Lock()
	info := s.mediaInfo
	isBlob := s.backend.BlobHandle != ""
	s.mu.Unlock()

	if info.IsZero() && s.deps.Prober != nil && !isBlob {
		if probed, err := s.deps.Prober.Probe(ctx, s.url, s.Descriptor().Kind); err != nil {
			s.logger.Debug("probe failed", slog.String("error", err.Error()))
		} else {
			info = *probed
		}
	}

	if w, h := s.deps.Sink.Dimensions(); w > 0 && h > 0 {
		info.Width = w
		info.Height = h
	}
	if d := s.deps.Sink.Duration(); d > 0 && info.Duration == 0 {
		info.Duration = d
	}
	return info
}

// subscribeSink installs the long-lived sink subscription that drives the
// session after ready.
func (s *Session) subscribeSink() {
	unsub := s.deps.Sink.Subscribe(SinkEvents{
		OnError: func(e *SinkError) { s.fail(e) },
		OnEnded: func() {
			s.setStatus(StatusEnded)
			s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusEnded)})
			s.dispatch(state.Action{Kind: state.ActionSetPlaying, Bool: false})
			s.emitEnded()
		},
		OnTimeUpdate: func(currentTime, duration, buffered float64) {
			s.dispatch(state.Action{Kind: state.ActionSetTime, Float: currentTime})
			if duration > 0 {
				s.dispatch(state.Action{Kind: state.ActionSetDuration, Float: duration})
			}
			s.dispatch(state.Action{Kind: state.ActionSetBuffered, Float: buffered})
			if s.deps.Store != nil {
				s.deps.Store.SavePosition(s.url, currentTime)
			}
			s.emitTimeUpdate(currentTime, duration)
		},
	})
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubSink = unsub
	s.mu.Unlock()
}

func (s *Session) becomeReady() {
	s.setStatus(StatusReady)
	s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusReady)})
	s.logger.Info("session ready", slog.String("backend", s.Backend().Kind.String()))
	if s.events.OnReady != nil {
		s.events.OnReady()
	}
}

// Play starts or resumes playback. An autoplay-policy refusal comes back
// as the sink's error; callers decide whether that is fatal. The ended
// and error states are terminal; playing again means a fresh session.
func (s *Session) Play() error {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return ErrSessionTornDown
	}
	if s.status == StatusError || s.status == StatusEnded {
		st := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionTerminal, st)
	}
	s.mu.Unlock()

	if err := s.deps.Sink.Play(); err != nil {
		return err
	}
	s.setStatus(StatusPlaying)
	s.dispatch(state.Action{Kind: state.ActionSetPlaying, Bool: true})
	s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusPlaying)})
	if s.events.OnPlay != nil {
		s.events.OnPlay()
	}
	return nil
}

// Pause pauses playback. A no-op in the terminal ended and error states.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.tornDown || s.status == StatusError || s.status == StatusEnded {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.deps.Sink.Pause()
	s.setStatus(StatusPaused)
	s.dispatch(state.Action{Kind: state.ActionSetPlaying, Bool: false})
	s.dispatch(state.Action{Kind: state.ActionSetStatus, Text: string(StatusPaused)})
	if s.events.OnPause != nil {
		s.events.OnPause()
	}
}

// SeekTo moves the playhead.
func (s *Session) SeekTo(seconds float64) {
	s.deps.Sink.SeekTo(seconds)
	s.dispatch(state.Action{Kind: state.ActionSetTime, Float: seconds})
}

// Teardown releases everything the session acquired, in dependency
// order: pause first, then destroy the engine, then revoke the blob,
// then detach the sink source so buffered media is dropped. Safe to call
// any number of times; only the first does work.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	s.jobID = ""
	backend := s.backend
	initCancel := s.initCancel
	unsubSink := s.unsubSink
	unsubEngine := s.unsubEngine
	s.unsubSink = nil
	s.unsubEngine = nil
	s.mu.Unlock()

	// Abort any in-flight initialization; the torn-down checks at its
	// commit points release whatever it acquired meanwhile.
	if initCancel != nil {
		initCancel()
	}

	if unsubSink != nil {
		unsubSink()
	}
	if unsubEngine != nil {
		unsubEngine()
	}

	s.deps.Sink.Pause()

	if backend.Engine != nil {
		// Engine destruction failing must not stop the rest of teardown.
		if err := backend.Engine.Destroy(); err != nil {
			s.logger.Warn("destroying engine", slog.String("error", err.Error()))
		}
	}

	if backend.BlobHandle != "" {
		s.deps.Blobs.Revoke(backend.BlobHandle)
	}

	s.deps.Sink.ClearSource()

	s.mu.Lock()
	s.status = StatusIdle
	s.backend = Backend{Kind: media.BackendNone}
	s.mu.Unlock()

	s.logger.Info("session torn down")
}

// fail moves the session to the error state and notifies, once.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.tornDown || s.status == StatusError || s.status == StatusEnded {
		s.mu.Unlock()
		return
	}
	s.status = StatusError
	s.mu.Unlock()

	s.logger.Error("session failed", slog.String("error", err.Error()))
	s.dispatch(state.Action{Kind: state.ActionSetError, Text: err.Error()})
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()
}

func (s *Session) setMediaInfo(info media.MediaInfo) {
	if info.IsZero() {
		return
	}
	s.mu.Lock()
	s.mediaInfo = info
	s.mu.Unlock()
	s.dispatch(state.Action{Kind: state.ActionSetMediaInfo, MediaInfo: &info})
	if info.Duration > 0 {
		s.dispatch(state.Action{Kind: state.ActionSetDuration, Float: info.Duration})
	}
	if s.events.OnMediaInfo != nil {
		s.events.OnMediaInfo(info)
	}
}

func (s *Session) dispatch(a state.Action) {
	if s.deps.Store != nil {
		s.deps.Store.Dispatch(a)
	}
}

func (s *Session) emitStreamInfo(d media.StreamDescriptor) {
	if s.events.OnStreamInfo != nil {
		s.events.OnStreamInfo(d)
	}
}

func (s *Session) emitRemuxProgress(p float64) {
	if s.events.OnRemuxProgress != nil {
		s.events.OnRemuxProgress(p)
	}
}

func (s *Session) emitBuffering(b bool) {
	if s.events.OnBuffering != nil {
		s.events.OnBuffering(b)
	}
}

func (s *Session) emitTimeUpdate(cur, dur float64) {
	if s.events.OnTimeUpdate != nil {
		s.events.OnTimeUpdate(cur, dur)
	}
}

func (s *Session) emitEnded() {
	if s.events.OnEnded != nil {
		s.events.OnEnded()
	}
}
