package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playsink/playsink/internal/manifest"
)

// ManifestFetcher retrieves playlist bytes. *httpclient.Client satisfies
// it.
type ManifestFetcher interface {
	FetchAll(ctx context.Context, url string) ([]byte, error)
}

// HLSEngineProvider builds manifest-driven HLS engines on top of the
// shared HTTP client.
type HLSEngineProvider struct {
	Fetcher ManifestFetcher
	Logger  *slog.Logger
}

var _ EngineProvider = (*HLSEngineProvider)(nil)

// IsSupported reports whether the provider can build engines.
func (p *HLSEngineProvider) IsSupported() bool {
	return p.Fetcher != nil
}

// NewEngine builds an engine. One engine drives one load.
func (p *HLSEngineProvider) NewEngine() Engine {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &hlsEngine{
		fetcher: p.Fetcher,
		logger:  logger.With(slog.String("component", "hls-engine")),
		subs:    make(map[int]EngineEvents),
	}
}

// hlsEngine resolves a multivariant playlist to its best rendition and
// points the attached sink at it. Rendition selection is static: the
// highest-bandwidth variant wins at load time.
type hlsEngine struct {
	fetcher ManifestFetcher
	logger  *slog.Logger

	mu        sync.Mutex
	sink      Sink
	profile   EngineProfile
	tracks    []EngineTrack
	nextSub   int
	subs      map[int]EngineEvents
	destroyed bool
}

func (e *hlsEngine) Attach(sink Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("attaching destroyed engine")
	}
	e.sink = sink
	return nil
}

func (e *hlsEngine) Configure(profile EngineProfile) {
	e.mu.Lock()
	e.profile = profile
	e.mu.Unlock()
}

// Load fetches the playlist (with the profile's retry budget), selects
// the best rendition, and drives the sink to playable.
func (e *hlsEngine) Load(ctx context.Context, url string) error {
	e.mu.Lock()
	sink := e.sink
	retry := e.profile.Retry
	e.mu.Unlock()

	if sink == nil {
		return fmt.Errorf("no sink attached")
	}

	data, err := e.fetchWithRetry(ctx, url, retry)
	if err != nil {
		return fmt.Errorf("fetching playlist: %w", err)
	}

	renditions, err := manifest.InspectHLS(data, url)
	if err != nil {
		return fmt.Errorf("inspecting playlist: %w", err)
	}

	// A media playlist has no variants; the sink plays it directly.
	src := url
	if best := manifest.BestTrack(renditions); best != nil {
		src = best.URI
		e.setTracks(renditions, best.URI)
		e.logger.Info("selected rendition",
			slog.String("uri", best.URI),
			slog.Int64("bandwidth", best.Bandwidth),
			slog.String("resolution", best.Resolution),
		)
	}

	return e.loadSink(ctx, sink, src)
}

// fetchWithRetry applies the engine profile's retry budget to the
// playlist fetch.
func (e *hlsEngine) fetchWithRetry(ctx context.Context, url string, retry RetryPolicy) ([]byte, error) {
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := e.fetcher.FetchAll(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		delay := retry.Delay(attempt)
		e.logger.Debug("playlist fetch failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// loadSink points the sink at src and waits for playable or error.
func (e *hlsEngine) loadSink(ctx context.Context, sink Sink, src string) error {
	ready := make(chan struct{}, 1)
	failed := make(chan *SinkError, 1)
	unsub := sink.Subscribe(SinkEvents{
		OnCanPlay: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnError: func(se *SinkError) {
			select {
			case failed <- se:
			default:
			}
		},
	})
	defer unsub()

	sink.SetSource(src)
	sink.Load()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case se := <-failed:
		return se
	case <-ready:
		return nil
	}
}

func (e *hlsEngine) setTracks(renditions []manifest.RenditionTrack, activeURI string) {
	tracks := make([]EngineTrack, 0, len(renditions))
	for _, r := range renditions {
		info := r.MediaInfo()
		tracks = append(tracks, EngineTrack{
			VideoCodec: info.VideoCodec,
			AudioCodec: info.AudioCodec,
			Width:      info.Width,
			Height:     info.Height,
			Bandwidth:  info.Bandwidth,
			Active:     r.URI == activeURI,
		})
	}
	e.mu.Lock()
	e.tracks = tracks
	e.mu.Unlock()
}

func (e *hlsEngine) ActiveRenditionTracks() []EngineTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EngineTrack, len(e.tracks))
	copy(out, e.tracks)
	return out
}

// Destroy releases the engine. Idempotent.
func (e *hlsEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
	e.sink = nil
	e.tracks = nil
	return nil
}

func (e *hlsEngine) Subscribe(ev EngineEvents) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ev
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}
