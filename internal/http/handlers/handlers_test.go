package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsink/playsink/internal/media"
	"github.com/playsink/playsink/internal/playback"
	"github.com/playsink/playsink/internal/remux"
	"github.com/playsink/playsink/internal/repository"
	"github.com/playsink/playsink/internal/state"
)

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler("1.2.3")

	out, err := handler.GetHealth(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.Equal(t, "disabled", out.Body.Components["database"].Status)
	assert.Greater(t, out.Body.CPU.Cores, 0)
}

func TestHealthLivezReadyz(t *testing.T) {
	handler := NewHealthHandler("1.2.3")

	livez, err := handler.GetLivez(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", livez.Body.Status)

	readyz, err := handler.GetReadyz(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ready", readyz.Body.Status)
}

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	return state.NewStore(context.Background(), repository.NewMemoryHistoryRepository(), state.DefaultStoreConfig())
}

func newTestManager(store *state.Store) *playback.Manager {
	blobs := playback.NewBlobRegistry()
	sinkCfg := playback.DefaultHeadlessConfig()
	sinkCfg.TickInterval = 0
	sinkCfg.Blobs = blobs
	return playback.NewManager(playback.SessionDeps{
		Sink:  playback.NewHeadlessSink(sinkCfg),
		Blobs: blobs,
		Store: store,
	}, playback.ManagerConfig{})
}

func TestPlaybackStartGetStop(t *testing.T) {
	store := newTestStore(t)
	handler := NewPlaybackHandler(newTestManager(store), store, nil)

	req := &PlayRequest{}
	req.Body.URL = "http://example.com/movie.mp4"
	out, err := handler.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ready", out.Body.Status)
	assert.Equal(t, "mp4", out.Body.Kind)
	assert.Equal(t, "native", out.Body.Category)
	assert.Equal(t, "native", out.Body.Backend)
	assert.NotEmpty(t, out.Body.SessionID)

	got, err := handler.Get(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, got.Body.Session)
	assert.Equal(t, out.Body.SessionID, got.Body.Session.SessionID)
	assert.Equal(t, "http://example.com/movie.mp4", got.Body.State.URL)

	_, err = handler.Stop(context.Background(), nil)
	require.NoError(t, err)

	got, err = handler.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got.Body.Session)
	assert.Equal(t, "idle", got.Body.State.Status)
}

func TestPlaybackPauseResumeSeek(t *testing.T) {
	store := newTestStore(t)
	handler := NewPlaybackHandler(newTestManager(store), store, nil)

	req := &PlayRequest{}
	req.Body.URL = "http://example.com/movie.webm"
	_, err := handler.Start(context.Background(), req)
	require.NoError(t, err)

	out, err := handler.Resume(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "playing", out.Body.Status)

	out, err = handler.Pause(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "paused", out.Body.Status)

	seek := &SeekRequest{}
	seek.Body.Position = 42
	out, err = handler.Seek(context.Background(), seek)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.Body.Position)
}

func TestPlaybackControlsRequireSession(t *testing.T) {
	store := newTestStore(t)
	handler := NewPlaybackHandler(newTestManager(store), store, nil)

	_, err := handler.Pause(context.Background(), nil)
	assert.Error(t, err)

	_, err = handler.Resume(context.Background(), nil)
	assert.Error(t, err)

	seek := &SeekRequest{}
	seek.Body.Position = 10
	_, err = handler.Seek(context.Background(), seek)
	assert.Error(t, err)
}

func TestHistoryHandler(t *testing.T) {
	store := newTestStore(t)
	store.SavePosition("http://example.com/old.mp4", 100)
	time.Sleep(time.Millisecond)
	store.SavePosition("http://example.com/new.mp4", 200)

	handler := NewHistoryHandler(store)

	out, err := handler.Get(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, out.Body.Entries, 2)

	// Most recent first, and both deep enough to resume.
	assert.Equal(t, "http://example.com/new.mp4", out.Body.Entries[0].URL)
	assert.True(t, out.Body.Entries[0].Resumable)

	_, err = handler.Clear(context.Background(), nil)
	require.NoError(t, err)

	out, err = handler.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Body.Entries)
}

type stubProber struct {
	info *media.MediaInfo
	err  error
	urls []string
}

func (s *stubProber) Probe(ctx context.Context, url string, hint media.StreamKind) (*media.MediaInfo, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

func TestProbeHandler(t *testing.T) {
	prober := &stubProber{info: &media.MediaInfo{VideoCodec: "h264", Duration: 120}}
	handler := NewProbeHandler(prober, nil)

	req := &ProbeRequest{}
	req.Body.URL = "http://example.com/movie.mkv"
	out, err := handler.Probe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mkv", out.Body.Kind)
	assert.Equal(t, "remux", out.Body.Category)
	require.NotNil(t, out.Body.Media)
	assert.Equal(t, "h264", out.Body.Media.VideoCodec)
}

func TestProbeHandlerSkipsLiveManifests(t *testing.T) {
	prober := &stubProber{info: &media.MediaInfo{}}
	handler := NewProbeHandler(prober, nil)

	req := &ProbeRequest{}
	req.Body.URL = "http://example.com/live.m3u8"
	out, err := handler.Probe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hls", out.Body.Kind)
	assert.Nil(t, out.Body.Media)
	assert.Empty(t, prober.urls)
}

func TestProbeHandlerFetchFailure(t *testing.T) {
	prober := &stubProber{err: fmt.Errorf("%w: connection refused", remux.ErrFetch)}
	handler := NewProbeHandler(prober, nil)

	req := &ProbeRequest{}
	req.Body.URL = "http://example.com/movie.mp4"
	_, err := handler.Probe(context.Background(), req)
	assert.Error(t, err)
}
