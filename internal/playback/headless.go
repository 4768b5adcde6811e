package playback

import (
	"context"
	"sync"
	"time"

	"github.com/playsink/playsink/internal/media"
)

// SourceValidator checks that a URL-backed source is reachable before the
// sink reports it playable. *httpclient.Client satisfies it via
// FetchPrefix.
type SourceValidator interface {
	FetchPrefix(ctx context.Context, url string, n int64) ([]byte, error)
}

// HeadlessConfig holds headless sink tunables.
type HeadlessConfig struct {
	// Blobs resolves blob handles handed to SetSource.
	Blobs *BlobRegistry
	// Validator, when set, verifies URL sources by fetching a small
	// prefix during Load. Nil skips validation.
	Validator SourceValidator
	// ValidatePrefixBytes is how much Load fetches to validate a URL.
	ValidatePrefixBytes int64
	// ValidateTimeout bounds the validation fetch.
	ValidateTimeout time.Duration
	// TickInterval is the wall-clock period between time updates while
	// playing. Zero disables the ticker; tests drive time with Advance.
	TickInterval time.Duration
	// NativeHLS makes CanPlayNatively report true for HLS, modeling
	// environments whose native sink speaks HLS itself.
	NativeHLS bool
	// BlockAutoplay makes the first Play return an autoplay refusal,
	// modeling restrictive host policies.
	BlockAutoplay bool
}

// DefaultHeadlessConfig returns headless sink defaults.
func DefaultHeadlessConfig() HeadlessConfig {
	return HeadlessConfig{
		ValidatePrefixBytes: 64 * 1024,
		ValidateTimeout:     10 * time.Second,
		TickInterval:        250 * time.Millisecond,
	}
}

// HeadlessSink is a Sink with no presentation surface: it validates
// sources, models playback time, and delivers the full event surface, so
// the orchestrator runs identically with or without a real player.
type HeadlessSink struct {
	cfg HeadlessConfig

	mu          sync.Mutex
	src         string
	canPlay     bool
	playing     bool
	playedOnce  bool
	currentTime float64
	duration    float64
	volume      float64
	muted       bool
	width       int
	height      int
	nextSub     int
	subs        map[int]SinkEvents
	stopTicker  chan struct{}
}

var _ Sink = (*HeadlessSink)(nil)

// NewHeadlessSink creates a headless sink.
func NewHeadlessSink(cfg HeadlessConfig) *HeadlessSink {
	if cfg.ValidatePrefixBytes <= 0 {
		cfg.ValidatePrefixBytes = 64 * 1024
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 10 * time.Second
	}
	return &HeadlessSink{
		cfg:    cfg,
		volume: 1.0,
		subs:   make(map[int]SinkEvents),
	}
}

// SetDuration seeds the modeled media duration, normally discovered by a
// real sink from the container.
func (h *HeadlessSink) SetDuration(seconds float64) {
	h.mu.Lock()
	h.duration = seconds
	h.mu.Unlock()
}

// SetDimensions seeds the modeled natural video dimensions.
func (h *HeadlessSink) SetDimensions(width, height int) {
	h.mu.Lock()
	h.width = width
	h.height = height
	h.mu.Unlock()
}

func (h *HeadlessSink) SetSource(src string) {
	h.mu.Lock()
	h.src = src
	h.canPlay = false
	h.currentTime = 0
	h.mu.Unlock()
}

func (h *HeadlessSink) ClearSource() {
	h.Pause()
	h.mu.Lock()
	h.src = ""
	h.canPlay = false
	h.currentTime = 0
	h.playedOnce = false
	h.mu.Unlock()
}

// Load validates the attached source and reports CanPlay or Error
// synchronously.
func (h *HeadlessSink) Load() {
	h.mu.Lock()
	src := h.src
	h.mu.Unlock()

	if src == "" {
		h.emitError(&SinkError{Code: SinkErrAborted, Message: "no source attached"})
		return
	}

	if IsBlobHandle(src) {
		if h.cfg.Blobs == nil {
			h.emitError(&SinkError{Code: SinkErrDecode, Message: "no blob registry configured"})
			return
		}
		if _, ok := h.cfg.Blobs.Get(src); !ok {
			h.emitError(&SinkError{Code: SinkErrDecode, Message: "unknown blob handle"})
			return
		}
	} else if h.cfg.Validator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ValidateTimeout)
		defer cancel()
		if _, err := h.cfg.Validator.FetchPrefix(ctx, src, h.cfg.ValidatePrefixBytes); err != nil {
			h.emitError(&SinkError{Code: SinkErrNetwork, Message: err.Error()})
			return
		}
	}

	h.mu.Lock()
	h.canPlay = true
	h.mu.Unlock()
	h.emitCanPlay()
}

func (h *HeadlessSink) Play() error {
	h.mu.Lock()
	if h.cfg.BlockAutoplay && !h.playedOnce {
		h.playedOnce = true
		h.mu.Unlock()
		return &SinkError{Code: SinkErrAborted, Message: "play blocked by autoplay policy"}
	}
	h.playedOnce = true
	if h.playing {
		h.mu.Unlock()
		return nil
	}
	h.playing = true
	var stop chan struct{}
	if h.cfg.TickInterval > 0 {
		stop = make(chan struct{})
		h.stopTicker = stop
	}
	h.mu.Unlock()

	if stop != nil {
		go h.run(stop)
	}
	return nil
}

func (h *HeadlessSink) Pause() {
	h.mu.Lock()
	h.playing = false
	if h.stopTicker != nil {
		close(h.stopTicker)
		h.stopTicker = nil
	}
	h.mu.Unlock()
}

func (h *HeadlessSink) run(stop chan struct{}) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Advance(h.cfg.TickInterval.Seconds())
		}
	}
}

// Advance moves modeled playback time forward and delivers a TimeUpdate;
// reaching the known duration ends playback. Tests call this directly for
// deterministic clocks.
func (h *HeadlessSink) Advance(seconds float64) {
	h.mu.Lock()
	if !h.playing {
		h.mu.Unlock()
		return
	}
	h.currentTime += seconds
	ended := h.duration > 0 && h.currentTime >= h.duration
	if ended {
		h.currentTime = h.duration
		h.playing = false
		if h.stopTicker != nil {
			close(h.stopTicker)
			h.stopTicker = nil
		}
	}
	cur, dur := h.currentTime, h.duration
	h.mu.Unlock()

	h.emitTimeUpdate(cur, dur, cur)
	if ended {
		h.emitEnded()
	}
}

func (h *HeadlessSink) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTime
}

func (h *HeadlessSink) SeekTo(seconds float64) {
	h.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if h.duration > 0 && seconds > h.duration {
		seconds = h.duration
	}
	h.currentTime = seconds
	h.mu.Unlock()
}

func (h *HeadlessSink) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

func (h *HeadlessSink) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

func (h *HeadlessSink) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

func (h *HeadlessSink) SetMuted(muted bool) {
	h.mu.Lock()
	h.muted = muted
	h.mu.Unlock()
}

func (h *HeadlessSink) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

func (h *HeadlessSink) Dimensions() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

func (h *HeadlessSink) CanPlayNatively(kind media.StreamKind) bool {
	switch kind {
	case media.KindMP4, media.KindWebM:
		return true
	case media.KindHLS:
		return h.cfg.NativeHLS
	default:
		return false
	}
}

func (h *HeadlessSink) Subscribe(ev SinkEvents) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ev
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *HeadlessSink) snapshotSubs() []SinkEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SinkEvents, 0, len(h.subs))
	for _, ev := range h.subs {
		out = append(out, ev)
	}
	return out
}

func (h *HeadlessSink) emitCanPlay() {
	for _, ev := range h.snapshotSubs() {
		if ev.OnCanPlay != nil {
			ev.OnCanPlay()
		}
	}
}

func (h *HeadlessSink) emitError(e *SinkError) {
	for _, ev := range h.snapshotSubs() {
		if ev.OnError != nil {
			ev.OnError(e)
		}
	}
}

func (h *HeadlessSink) emitTimeUpdate(cur, dur, buffered float64) {
	for _, ev := range h.snapshotSubs() {
		if ev.OnTimeUpdate != nil {
			ev.OnTimeUpdate(cur, dur, buffered)
		}
	}
}

func (h *HeadlessSink) emitEnded() {
	for _, ev := range h.snapshotSubs() {
		if ev.OnEnded != nil {
			ev.OnEnded()
		}
	}
}
