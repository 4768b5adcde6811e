// Package playback implements the playback session orchestrator: backend
// selection (native sink, adaptive engine, remux-then-native), the session
// state machine, idempotent ordered teardown, and the single-session
// manager.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playsink/playsink/internal/media"
)

// Session errors.
var (
	ErrInitializationInFlight = errors.New("playback: initialization already in flight")
	ErrSessionTornDown        = errors.New("playback: session torn down")
	ErrSessionTerminal        = errors.New("playback: session in terminal state")
	ErrEngineUnsupported      = errors.New("playback: adaptive engine not supported in this environment")
	ErrEngineLoad             = errors.New("playback: adaptive engine load failed")
)

// SinkErrorCode is the closed set of standardized sink error codes.
type SinkErrorCode string

const (
	SinkErrAborted     SinkErrorCode = "aborted"
	SinkErrNetwork     SinkErrorCode = "network"
	SinkErrDecode      SinkErrorCode = "decode"
	SinkErrUnsupported SinkErrorCode = "unsupported-format"
)

// SinkError is an error event raised by a presentation sink.
type SinkError struct {
	Code    SinkErrorCode
	Message string
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s error: %s", e.Code, e.Message)
}

// SinkEvents is the subscription surface of a presentation sink. Nil
// handlers are skipped.
type SinkEvents struct {
	OnCanPlay    func()
	OnError      func(*SinkError)
	OnEnded      func()
	OnTimeUpdate func(currentTime, duration, buffered float64)
}

// Sink is the presentation sink boundary: a native playback element or a
// headless stand-in. Implementations deliver events to all subscribers.
type Sink interface {
	// SetSource attaches a source URL (or blob handle) to the sink.
	SetSource(src string)
	// ClearSource detaches the source and forces buffered media to be
	// dropped.
	ClearSource()
	// Load begins loading the attached source; readiness is signaled via
	// the CanPlay event, failure via the Error event.
	Load()

	// Play starts playback. The host environment may refuse (autoplay
	// policy); the refusal is returned as an error.
	Play() error
	Pause()

	CurrentTime() float64
	SeekTo(seconds float64)
	Duration() float64

	SetVolume(v float64)
	Volume() float64
	SetMuted(muted bool)
	Muted() bool

	// Dimensions returns the natural video dimensions once the sink is
	// ready, or zeros when unknown.
	Dimensions() (width, height int)

	// CanPlayNatively reports whether the sink can play the given stream
	// kind without an adaptive engine (the Safari-class HLS case).
	CanPlayNatively(kind media.StreamKind) bool

	// Subscribe registers event handlers; the returned function removes
	// them.
	Subscribe(ev SinkEvents) (remove func())
}

// EngineTrack is one rendition reported by the adaptive engine.
type EngineTrack struct {
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Bandwidth  int64  `json:"bandwidth,omitempty"`
	Active     bool   `json:"active"`
}

// MediaInfo converts the track into the shared MediaInfo shape.
func (t EngineTrack) MediaInfo() media.MediaInfo {
	return media.MediaInfo{
		Width:      t.Width,
		Height:     t.Height,
		VideoCodec: t.VideoCodec,
		AudioCodec: t.AudioCodec,
		Bandwidth:  t.Bandwidth,
	}
}

// EngineEvents is the subscription surface of an adaptive engine.
type EngineEvents struct {
	OnError     func(error)
	OnBuffering func(buffering bool)
}

// Engine is the adaptive-streaming engine boundary: manifest-driven,
// bitrate-adaptive playback as an opaque collaborator.
type Engine interface {
	Attach(sink Sink) error
	Configure(profile EngineProfile)
	Load(ctx context.Context, url string) error
	ActiveRenditionTracks() []EngineTrack
	// Destroy releases the engine. Destroy-time failures are downgraded
	// to warnings by callers, never escalated.
	Destroy() error
	Subscribe(ev EngineEvents) (remove func())
}

// EngineProvider constructs adaptive engines when the environment
// supports them.
type EngineProvider interface {
	IsSupported() bool
	NewEngine() Engine
}

// RetryPolicy is a bounded exponential-backoff budget.
type RetryPolicy struct {
	BaseDelay   time.Duration `json:"base_delay"`
	Multiplier  float64       `json:"multiplier"`
	MaxAttempts int           `json:"max_attempts"`
}

// Delay returns the backoff before the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// EngineProfile configures an adaptive engine.
type EngineProfile struct {
	// LowLatencyMode tightens buffering goals for live streams.
	LowLatencyMode bool `json:"low_latency_mode"`
	// MaxBufferSeconds bounds the forward buffer.
	MaxBufferSeconds float64 `json:"max_buffer_seconds"`
	// BackBufferSeconds bounds the look-behind buffer.
	BackBufferSeconds float64 `json:"back_buffer_seconds"`
	// Retry applies identically to manifest and segment retrieval.
	Retry RetryPolicy `json:"retry"`
}

// LiveProfile returns the low-latency configuration applied when the
// stream category is LIVE.
func LiveProfile() EngineProfile {
	return EngineProfile{
		LowLatencyMode:    true,
		MaxBufferSeconds:  30,
		BackBufferSeconds: 10,
		Retry: RetryPolicy{
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  1.5,
			MaxAttempts: 10,
		},
	}
}

// Backend is the closed tagged variant of live playback backends. The
// remuxed variant composes into a native handoff carrying a blob handle
// rather than being an independent fourth backend.
type Backend struct {
	Kind media.BackendKind
	// Engine is non-nil only for the adaptive variant.
	Engine Engine
	// BlobHandle is non-empty only for the remuxed variant.
	BlobHandle string
}
