// Package remux coordinates the remux pipeline: fetch the source, drive
// the external executor with a fixed stream-copy command, parse progress
// out of its diagnostic output, and hand back a playable fragmented-MP4
// artifact (or a sequence of timed chunks in segmented mode).
package remux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/playsink/playsink/internal/executor"
	"github.com/playsink/playsink/internal/media"
)

// Sentinel errors matching the pipeline failure taxonomy.
var (
	ErrFetch    = errors.New("remux: fetching source failed")
	ErrExecutor = errors.New("remux: executor invocation failed")
)

// ArtifactMIMEType is the container type of all pipeline output.
const ArtifactMIMEType = "video/mp4"

// Job identifies one pipeline invocation.
type Job struct {
	// ID is a ULID; callbacks carry it so consumers can drop output from
	// superseded jobs.
	ID string
	// URL is the source to fetch.
	URL string
	// InputFormat is the classified container kind of the source.
	InputFormat media.StreamKind
	// DurationSeconds is the known media duration, if any. Zero means
	// unknown; progress estimation then falls back to the configured
	// assumed duration.
	DurationSeconds float64
}

// NewJob creates a Job with a fresh ULID.
func NewJob(url string, kind media.StreamKind) Job {
	return Job{
		ID:          ulid.Make().String(),
		URL:         url,
		InputFormat: kind,
	}
}

// Artifact is a completed batch-mode output blob.
type Artifact struct {
	JobID    string
	Data     []byte
	MIMEType string
}

// Chunk is one fixed-duration segment from segmented mode.
type Chunk struct {
	JobID           string
	Index           int
	Data            []byte
	DurationSeconds float64
}

// ProgressUpdate is a progress estimate for a running job.
type ProgressUpdate struct {
	JobID    string
	Progress float64 // in [0,1], approximate
	Elapsed  time.Duration
}

// ProgressFunc receives progress updates during Prepare/PrepareSegmented.
type ProgressFunc func(ProgressUpdate)

// ChunkFunc consumes one segment. Returning an error aborts the job.
type ChunkFunc func(Chunk) error

// Fetcher retrieves source bytes. *httpclient.Client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, url string) ([]byte, error)
	FetchPrefix(ctx context.Context, url string, n int64) ([]byte, error)
}

// Config holds pipeline tunables.
type Config struct {
	// AssumedDurationSeconds is the progress-estimation fallback when the
	// true duration is unknown.
	AssumedDurationSeconds float64
	// SegmentDurationSeconds is the fixed segment length in segmented mode.
	SegmentDurationSeconds float64
	// ProbePrefixBytes is how much of the source Probe fetches.
	ProbePrefixBytes int64
	// Logger for pipeline logging.
	Logger *slog.Logger
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{
		AssumedDurationSeconds: 60,
		SegmentDurationSeconds: 4,
		ProbePrefixBytes:       1 << 20,
	}
}

// Pipeline drives remux jobs against a singleton executor.
type Pipeline struct {
	loader  *executor.Singleton
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(loader *executor.Singleton, fetcher Fetcher, cfg Config) *Pipeline {
	if cfg.AssumedDurationSeconds <= 0 {
		cfg.AssumedDurationSeconds = 60
	}
	if cfg.SegmentDurationSeconds <= 0 {
		cfg.SegmentDurationSeconds = 4
	}
	if cfg.ProbePrefixBytes <= 0 {
		cfg.ProbePrefixBytes = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:  loader,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "remux")),
	}
}

// batchArgs is the fixed non-transcoding command: stream copy into a
// fragmented MP4 container. No re-encode happens on this path.
func batchArgs(in, out string) []string {
	return []string{
		"-i", in,
		"-c", "copy",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		out,
	}
}

// segmentArgs asks the executor for fixed-duration fragmented segments
// with reset per-segment timestamps, written to an indexed name pattern.
func segmentArgs(in string, segmentSeconds float64, outPattern string) []string {
	return []string{
		"-i", in,
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segmentSeconds, 'f', -1, 64),
		"-segment_format", "mp4",
		"-segment_format_options", "movflags=frag_keyframe+empty_moov+default_base_moof",
		"-reset_timestamps", "1",
		outPattern,
	}
}

// Prepare runs batch mode: fetch the whole source, stream-copy it into a
// single fragmented-MP4 blob, and clean up every scratch file on all paths.
func (p *Pipeline) Prepare(ctx context.Context, job Job, onProgress ProgressFunc) (*Artifact, error) {
	exec, err := p.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	data, err := p.fetcher.FetchAll(ctx, job.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	in := job.ID + ".input"
	out := job.ID + ".mp4"
	defer func() {
		exec.DeleteFile(in)
		exec.DeleteFile(out)
	}()

	if err := exec.WriteFile(in, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	remove := p.watchProgress(exec, job, onProgress)
	defer remove()

	start := time.Now()
	if err := exec.Exec(ctx, batchArgs(in, out)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	blob, err := exec.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	p.logger.Info("remux complete",
		slog.String("job_id", job.ID),
		slog.String("input_format", string(job.InputFormat)),
		slog.Int("input_bytes", len(data)),
		slog.Int("output_bytes", len(blob)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Artifact{JobID: job.ID, Data: blob, MIMEType: ArtifactMIMEType}, nil
}

// PrepareSegmented runs segmented mode: the whole input must still be
// resident in the scratch filesystem before segmentation starts (a known
// limitation of the container formats involved), but each produced segment
// is read, handed to onChunk, and deleted as soon as it is consumed, so
// peak memory stays at a small multiple of one segment. The session path
// uses Prepare; this is the entry point for callers that stream the output
// incrementally instead of holding the whole artifact.
func (p *Pipeline) PrepareSegmented(ctx context.Context, job Job, onChunk ChunkFunc, onProgress ProgressFunc) error {
	exec, err := p.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	data, err := p.fetcher.FetchAll(ctx, job.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	in := job.ID + ".input"
	pattern := job.ID + "-%03d.mp4"
	nextSegment := 0
	defer func() {
		exec.DeleteFile(in)
		// Unconsumed segments are contiguous from nextSegment.
		for i := nextSegment; ; i++ {
			name := fmt.Sprintf(pattern, i)
			if _, err := exec.ReadFile(name); err != nil {
				break
			}
			exec.DeleteFile(name)
		}
	}()

	if err := exec.WriteFile(in, data); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	remove := p.watchProgress(exec, job, onProgress)
	defer remove()

	if err := exec.Exec(ctx, segmentArgs(in, p.cfg.SegmentDurationSeconds, pattern)); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	for ; ; nextSegment++ {
		name := fmt.Sprintf(pattern, nextSegment)
		segment, err := exec.ReadFile(name)
		if err != nil {
			break // past the last produced segment
		}
		chunk := Chunk{
			JobID:           job.ID,
			Index:           nextSegment,
			Data:            segment,
			DurationSeconds: p.cfg.SegmentDurationSeconds,
		}
		exec.DeleteFile(name)
		if err := onChunk(chunk); err != nil {
			nextSegment++
			return fmt.Errorf("consuming segment %d: %w", chunk.Index, err)
		}
	}

	if nextSegment == 0 {
		return fmt.Errorf("%w: no segments produced", ErrExecutor)
	}

	p.logger.Info("segmented remux complete",
		slog.String("job_id", job.ID),
		slog.Int("segments", nextSegment),
	)
	return nil
}

// Probe fetches a bounded prefix of the source and runs an
// input-analysis-only invocation. The executor exiting non-zero is
// expected (no output is requested) and not treated as failure; the
// diagnostic text it printed is what we are after.
func (p *Pipeline) Probe(ctx context.Context, url string, hint media.StreamKind) (*media.MediaInfo, error) {
	exec, err := p.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	prefix, err := p.fetcher.FetchPrefix(ctx, url, p.cfg.ProbePrefixBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	job := NewJob(url, hint)
	in := job.ID + ".probe"
	defer exec.DeleteFile(in)

	if err := exec.WriteFile(in, prefix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, err)
	}

	var diagnostics []string
	remove := exec.OnLog(func(line string) {
		diagnostics = append(diagnostics, line)
	})

	execErr := exec.Exec(ctx, []string{"-i", in})
	remove()

	if execErr != nil && !executor.IsExit(execErr) {
		return nil, fmt.Errorf("%w: %w", ErrExecutor, execErr)
	}

	info := ParseDiagnostics(diagnostics)
	p.logger.Debug("probe complete",
		slog.String("job_id", job.ID),
		slog.Float64("duration_seconds", info.Duration),
		slog.String("video_codec", info.VideoCodec),
	)
	return &info, nil
}

// watchProgress registers executor handlers that translate progress ticks
// and time= log lines into ProgressUpdates for this job. The returned
// function removes both handlers.
func (p *Pipeline) watchProgress(exec executor.Executor, job Job, onProgress ProgressFunc) func() {
	if onProgress == nil {
		return func() {}
	}

	duration := job.DurationSeconds
	if duration <= 0 {
		duration = p.cfg.AssumedDurationSeconds
	}

	emit := func(elapsed time.Duration) {
		onProgress(ProgressUpdate{
			JobID:    job.ID,
			Progress: EstimateProgress(elapsed, duration),
			Elapsed:  elapsed,
		})
	}

	// Native ticks are preferred; the log parse covers executors that only
	// print free-form lines.
	removeProgress := exec.OnProgress(func(tick executor.Progress) {
		emit(tick.Time)
	})
	removeLog := exec.OnLog(func(line string) {
		if tick, ok := executor.ParseProgressLine(line); ok {
			emit(tick.Time)
		}
		p.logger.Debug("executor output",
			slog.String("job_id", job.ID),
			slog.String("line", line),
		)
	})
	return func() {
		removeProgress()
		removeLog()
	}
}

// EstimateProgress converts elapsed media time into a [0,1] progress
// estimate against the given duration. Approximate, never authoritative.
func EstimateProgress(elapsed time.Duration, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	progress := elapsed.Seconds() / durationSeconds
	if progress > 1 {
		return 1
	}
	if progress < 0 {
		return 0
	}
	return progress
}
