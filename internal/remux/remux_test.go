package remux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsink/playsink/internal/executor"
	"github.com/playsink/playsink/internal/media"
)

// fakeExec is an in-memory Executor whose Exec behavior is scripted per
// test via execFn.
type fakeExec struct {
	mu          sync.Mutex
	files       map[string][]byte
	lastArgs    []string
	execFn      func(f *fakeExec, args []string) error
	nextHandler int
	logFns      map[int]executor.LogFunc
	progressFns map[int]executor.ProgressFunc
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		files:       make(map[string][]byte),
		logFns:      make(map[int]executor.LogFunc),
		progressFns: make(map[int]executor.ProgressFunc),
	}
}

func (f *fakeExec) Load(context.Context) error { return nil }

func (f *fakeExec) WriteFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	return nil
}

func (f *fakeExec) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", name)
	}
	return data, nil
}

func (f *fakeExec) DeleteFile(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

func (f *fakeExec) Exec(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.lastArgs = args
	fn := f.execFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(f, args)
}

func (f *fakeExec) OnLog(fn executor.LogFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextHandler
	f.nextHandler++
	f.logFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.logFns, id)
	}
}

func (f *fakeExec) OnProgress(fn executor.ProgressFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextHandler
	f.nextHandler++
	f.progressFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.progressFns, id)
	}
}

func (f *fakeExec) Terminate() {}

func (f *fakeExec) emitLog(line string) {
	f.mu.Lock()
	fns := make([]executor.LogFunc, 0, len(f.logFns))
	for _, fn := range f.logFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(line)
	}
}

func (f *fakeExec) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeFetcher serves canned bytes and records prefix sizes.
type fakeFetcher struct {
	data       []byte
	err        error
	prefixSize int64
}

func (ff *fakeFetcher) FetchAll(ctx context.Context, url string) ([]byte, error) {
	return ff.data, ff.err
}

func (ff *fakeFetcher) FetchPrefix(ctx context.Context, url string, n int64) ([]byte, error) {
	ff.prefixSize = n
	if ff.err != nil {
		return nil, ff.err
	}
	if int64(len(ff.data)) > n {
		return ff.data[:n], nil
	}
	return ff.data, nil
}

func testPipeline(fake *fakeExec, fetcher Fetcher) *Pipeline {
	loader := executor.NewSingleton(func() executor.Executor { return fake })
	return NewPipeline(loader, fetcher, DefaultConfig())
}

func TestPrepareProducesArtifactAndCleansUp(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		out := args[len(args)-1]
		return f.WriteFile(out, []byte("fragmented-mp4"))
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("matroska-bytes")})

	job := NewJob("http://example.com/movie.mkv", media.KindMKV)
	artifact, err := p.Prepare(context.Background(), job, nil)
	require.NoError(t, err)

	assert.Equal(t, job.ID, artifact.JobID)
	assert.Equal(t, "fragmented-mp4", string(artifact.Data))
	assert.Equal(t, ArtifactMIMEType, artifact.MIMEType)
	assert.Zero(t, fake.fileCount(), "scratch files must not survive the job")

	assert.Equal(t, []string{
		"-i", job.ID + ".input",
		"-c", "copy",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		job.ID + ".mp4",
	}, fake.lastArgs)
}

func TestPrepareFetchError(t *testing.T) {
	fake := newFakeExec()
	p := testPipeline(fake, &fakeFetcher{err: errors.New("connection refused")})

	_, err := p.Prepare(context.Background(), NewJob("http://example.com/a.mkv", media.KindMKV), nil)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Zero(t, fake.fileCount())
}

func TestPrepareExecFailureStillCleansUp(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		return errors.New("muxer exploded")
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("bytes")})

	_, err := p.Prepare(context.Background(), NewJob("http://example.com/a.avi", media.KindAVI), nil)
	assert.ErrorIs(t, err, ErrExecutor)
	assert.Zero(t, fake.fileCount(), "input must be deleted even on failure")
}

func TestPrepareProgressFromLogLines(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		f.emitLog("frame= 720 fps= 24 time=00:00:30.00 speed=10x")
		return f.WriteFile(args[len(args)-1], []byte("out"))
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	var updates []ProgressUpdate
	job := NewJob("http://example.com/a.mkv", media.KindMKV)
	_, err := p.Prepare(context.Background(), job, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	assert.Equal(t, job.ID, updates[0].JobID)
	// 30s elapsed against the 60s assumed-duration fallback.
	assert.InDelta(t, 0.5, updates[0].Progress, 0.001)
	assert.Equal(t, 30*time.Second, updates[0].Elapsed)
}

func TestPrepareProgressUsesKnownDuration(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		f.emitLog("time=00:00:30.00")
		return f.WriteFile(args[len(args)-1], []byte("out"))
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	job := NewJob("http://example.com/a.mkv", media.KindMKV)
	job.DurationSeconds = 120

	var last ProgressUpdate
	_, err := p.Prepare(context.Background(), job, func(u ProgressUpdate) { last = u })
	require.NoError(t, err)
	assert.InDelta(t, 0.25, last.Progress, 0.001)
}

func TestPrepareSegmentedDeliversChunksInOrder(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		pattern := args[len(args)-1]
		for i := 0; i < 3; i++ {
			if err := f.WriteFile(fmt.Sprintf(pattern, i), []byte(fmt.Sprintf("segment-%d", i))); err != nil {
				return err
			}
		}
		return nil
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	job := NewJob("http://example.com/a.mkv", media.KindMKV)
	var chunks []Chunk
	err := p.PrepareSegmented(context.Background(), job, func(c Chunk) error {
		// The segment is deleted from the scratch filesystem before the
		// callback runs.
		_, readErr := fake.ReadFile(fmt.Sprintf(job.ID+"-%03d.mp4", c.Index))
		assert.Error(t, readErr)
		chunks = append(chunks, c)
		return nil
	}, nil)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, fmt.Sprintf("segment-%d", i), string(c.Data))
		assert.Equal(t, 4.0, c.DurationSeconds)
		assert.Equal(t, job.ID, c.JobID)
	}
	assert.Zero(t, fake.fileCount())
}

func TestPrepareSegmentedChunkErrorCleansRemaining(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		pattern := args[len(args)-1]
		for i := 0; i < 4; i++ {
			f.WriteFile(fmt.Sprintf(pattern, i), []byte("seg"))
		}
		return nil
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	consumeErr := errors.New("sink full")
	err := p.PrepareSegmented(context.Background(), NewJob("http://example.com/a.mkv", media.KindMKV), func(c Chunk) error {
		if c.Index == 1 {
			return consumeErr
		}
		return nil
	}, nil)
	require.ErrorIs(t, err, consumeErr)
	assert.Zero(t, fake.fileCount(), "remaining segments must be deleted after abort")
}

func TestPrepareSegmentedNoSegmentsIsError(t *testing.T) {
	fake := newFakeExec()
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	err := p.PrepareSegmented(context.Background(), NewJob("http://example.com/a.mkv", media.KindMKV), func(Chunk) error {
		return nil
	}, nil)
	assert.ErrorIs(t, err, ErrExecutor)
}

func TestProbeParsesDiagnostics(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		f.emitLog("Input #0, matroska,webm, from 'probe.input':")
		f.emitLog("  Duration: 01:30:15.50, start: 0.000000, bitrate: 4500 kb/s")
		f.emitLog("  Stream #0:0: Video: h264 (High), yuv420p, 1920x1080, 23.98 fps")
		f.emitLog("  Stream #0:1: Audio: aac (LC), 48000 Hz, stereo")
		f.emitLog("At least one output file must be specified")
		return &executor.ExitError{Code: 1, Err: errors.New("exit status 1")}
	}
	fetcher := &fakeFetcher{data: make([]byte, 4<<20)}
	p := testPipeline(fake, fetcher)

	info, err := p.Probe(context.Background(), "http://example.com/movie.mkv", media.KindMKV)
	require.NoError(t, err, "non-zero exit with no output requested is not a failure")

	assert.Equal(t, int64(1<<20), fetcher.prefixSize)
	assert.InDelta(t, 5415.5, info.Duration, 0.001)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, int64(4_500_000), info.Bandwidth)
	assert.Zero(t, fake.fileCount(), "probe input must be deleted")
}

func TestProbeRealExecutorFailure(t *testing.T) {
	fake := newFakeExec()
	fake.execFn = func(f *fakeExec, args []string) error {
		return errors.New("binary vanished")
	}
	p := testPipeline(fake, &fakeFetcher{data: []byte("in")})

	_, err := p.Probe(context.Background(), "http://example.com/a.mkv", media.KindMKV)
	assert.ErrorIs(t, err, ErrExecutor)
}

func TestEstimateProgress(t *testing.T) {
	assert.InDelta(t, 0.5, EstimateProgress(30*time.Second, 60), 0.001)
	assert.Equal(t, 1.0, EstimateProgress(2*time.Hour, 60))
	assert.Equal(t, 0.0, EstimateProgress(time.Second, 0))
}

func TestNewJobIDsAreUnique(t *testing.T) {
	a := NewJob("http://example.com/a.mkv", media.KindMKV)
	b := NewJob("http://example.com/a.mkv", media.KindMKV)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 26)
}
