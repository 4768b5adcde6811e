package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryEnvVar overrides binary detection when set.
const BinaryEnvVar = "PLAYSINK_FFMPEG_BINARY"

// Progress tick patterns in ffmpeg stderr output.
var (
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// BinaryPath is the ffmpeg binary. Empty means auto-detect: the
	// PLAYSINK_FFMPEG_BINARY env var, then ./ffmpeg, then PATH.
	BinaryPath string

	// ScratchBase is where per-load scratch dirs are created.
	// Empty means os.TempDir().
	ScratchBase string

	// Logger for executor-level logging.
	Logger *slog.Logger
}

// Runner is the production Executor backed by a local ffmpeg binary and a
// scratch-dir virtual filesystem. Exec runs the binary with the scratch dir
// as working directory, so bare file names in the argv resolve against the
// scratch filesystem.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger

	mu         sync.Mutex
	loaded     bool
	binary     string
	scratchDir string
	running    bool
	cancelExec context.CancelFunc

	handlerMu   sync.RWMutex
	nextHandler int
	logFns      map[int]LogFunc
	progressFns map[int]ProgressFunc

	monitor *Monitor
}

var _ Executor = (*Runner)(nil)

// NewRunner creates a Runner. Load must be called before use.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "executor")),
		logFns:      make(map[int]LogFunc),
		progressFns: make(map[int]ProgressFunc),
	}
}

// Load detects the binary, verifies it runs, and creates the scratch dir.
func (r *Runner) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	binary, err := r.detectBinary()
	if err != nil {
		return err
	}

	// A quick -version run proves the binary is executable and sane.
	verCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(verCtx, binary, "-version").Output()
	if err != nil {
		return fmt.Errorf("verifying %s: %w", binary, err)
	}

	base := r.cfg.ScratchBase
	if base == "" {
		base = os.TempDir()
	}
	scratchDir, err := os.MkdirTemp(base, "playsink-exec-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	r.binary = binary
	r.scratchDir = scratchDir
	r.loaded = true

	version := "unknown"
	if line, _, ok := strings.Cut(string(out), "\n"); ok {
		version = strings.TrimSpace(line)
	}
	r.logger.Info("executor loaded",
		slog.String("binary", binary),
		slog.String("version", version),
		slog.String("scratch_dir", scratchDir),
	)
	return nil
}

// detectBinary resolves the ffmpeg binary path.
func (r *Runner) detectBinary() (string, error) {
	if r.cfg.BinaryPath != "" {
		if _, err := os.Stat(r.cfg.BinaryPath); err != nil {
			return "", fmt.Errorf("configured binary %s: %w", r.cfg.BinaryPath, err)
		}
		return r.cfg.BinaryPath, nil
	}
	if env := os.Getenv(BinaryEnvVar); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("%s=%s: %w", BinaryEnvVar, env, err)
		}
		return env, nil
	}
	if local, err := filepath.Abs("ffmpeg"); err == nil {
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			return local, nil
		}
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	return path, nil
}

// scratchPath validates a file name and returns its absolute scratch path.
func (r *Runner) scratchPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(r.scratchDir, name), nil
}

// WriteFile stores data under name in the scratch filesystem.
func (r *Runner) WriteFile(name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	path, err := r.scratchPath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing scratch file %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of a scratch file.
func (r *Runner) ReadFile(name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	path, err := r.scratchPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scratch file %s: %w", name, err)
	}
	return data, nil
}

// DeleteFile removes a scratch file. Missing files are not an error.
func (r *Runner) DeleteFile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	path, err := r.scratchPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting scratch file %s: %w", name, err)
	}
	return nil
}

// Exec runs the binary with the given argv inside the scratch dir, pumping
// stderr lines to log handlers and progress ticks to progress handlers.
// Only one command runs at a time.
func (r *Runner) Exec(ctx context.Context, args []string) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	if r.running {
		r.mu.Unlock()
		return ErrBusy
	}
	execCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancelExec = cancel
	binary := r.binary
	scratchDir := r.scratchDir
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.cancelExec = nil
		r.mu.Unlock()
	}()

	cmd := exec.CommandContext(execCtx, binary, args...)
	cmd.Dir = scratchDir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", filepath.Base(binary), err)
	}

	monitor := NewMonitor(int32(cmd.Process.Pid))
	monitor.Start()
	r.mu.Lock()
	r.monitor = monitor
	r.mu.Unlock()

	pumpDone := make(chan struct{})
	go r.pumpStderr(stderr, pumpDone)

	waitErr := cmd.Wait()
	<-pumpDone
	monitor.Stop()

	r.logger.Debug("command finished",
		slog.Duration("duration", time.Since(start)),
		slog.Int("args", len(args)),
		slog.Bool("success", waitErr == nil),
	)

	if waitErr != nil {
		if execCtx.Err() != nil {
			return execCtx.Err()
		}
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			return &ExitError{Code: ee.ExitCode(), Err: waitErr}
		}
		return fmt.Errorf("running %s: %w", filepath.Base(binary), waitErr)
	}
	return nil
}

// pumpStderr delivers stderr lines to log handlers and parses progress ticks.
func (r *Runner) pumpStderr(stderr io.Reader, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		r.emitLog(line)
		if p, ok := ParseProgressLine(line); ok {
			r.emitProgress(p)
		}
	}
}

func (r *Runner) emitLog(line string) {
	r.handlerMu.RLock()
	defer r.handlerMu.RUnlock()
	for _, fn := range r.logFns {
		fn(line)
	}
}

func (r *Runner) emitProgress(p Progress) {
	r.handlerMu.RLock()
	defer r.handlerMu.RUnlock()
	for _, fn := range r.progressFns {
		fn(p)
	}
}

// OnLog registers a diagnostic-line handler.
func (r *Runner) OnLog(fn LogFunc) func() {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	id := r.nextHandler
	r.nextHandler++
	r.logFns[id] = fn
	return func() {
		r.handlerMu.Lock()
		defer r.handlerMu.Unlock()
		delete(r.logFns, id)
	}
}

// OnProgress registers a progress-tick handler.
func (r *Runner) OnProgress(fn ProgressFunc) func() {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	id := r.nextHandler
	r.nextHandler++
	r.progressFns[id] = fn
	return func() {
		r.handlerMu.Lock()
		defer r.handlerMu.Unlock()
		delete(r.progressFns, id)
	}
}

// Terminate kills any running command and removes the scratch dir.
func (r *Runner) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancelExec != nil {
		r.cancelExec()
	}
	if r.monitor != nil {
		r.monitor.Stop()
		r.monitor = nil
	}
	if r.scratchDir != "" {
		if err := os.RemoveAll(r.scratchDir); err != nil {
			r.logger.Warn("removing scratch dir",
				slog.String("dir", r.scratchDir),
				slog.String("error", err.Error()),
			)
		}
	}
	r.scratchDir = ""
	r.binary = ""
	r.loaded = false
}

// Stats returns resource usage of the currently running command, or nil
// when nothing is running.
func (r *Runner) Stats() *ProcessStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.monitor == nil {
		return nil
	}
	stats := r.monitor.Stats()
	return &stats
}

// ParseProgressLine extracts a progress tick from a diagnostic output line.
// Lines without a time= field yield no tick.
func ParseProgressLine(line string) (Progress, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}

	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])

	p := Progress{
		Time: time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond,
	}
	if sm := speedRe.FindStringSubmatch(line); len(sm) > 1 {
		p.Speed, _ = strconv.ParseFloat(sm[1], 64)
	}
	if bm := bitrateRe.FindStringSubmatch(line); len(bm) > 1 {
		p.Bitrate = bm[1]
	}
	return p, true
}
