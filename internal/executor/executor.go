// Package executor provides the transcode executor boundary: a narrow
// interface over an external media tool (ffmpeg) with a scratch-dir virtual
// filesystem, log and progress callbacks, and a process-wide singleton
// loader.
package executor

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by executors.
var (
	ErrNotLoaded   = errors.New("executor not loaded")
	ErrTerminated  = errors.New("executor terminated")
	ErrInvalidName = errors.New("invalid scratch file name")
	ErrBusy        = errors.New("executor is already running a command")
)

// LogFunc receives one diagnostic output line from a running command.
type LogFunc func(line string)

// ProgressFunc receives a progress tick parsed from command output.
type ProgressFunc func(p Progress)

// Progress is a progress tick from the external tool.
type Progress struct {
	// Time is how far into the media the command has processed.
	Time time.Duration `json:"time"`
	// Speed is the processing speed relative to realtime (0 if unknown).
	Speed float64 `json:"speed"`
	// Bitrate is the reported output bitrate string (empty if unknown).
	Bitrate string `json:"bitrate"`
}

// Executor is the boundary to the external transcode tool.
//
// Implementations expose a flat virtual filesystem of scratch files
// addressed by bare names. Exec runs the tool with the given argument
// vector; bare file names in the argv resolve against the scratch
// filesystem. Commands are expected to sometimes exit non-zero (probe
// invocations deliberately omit an output), so a non-zero exit surfaces
// as an *ExitError the caller can inspect.
type Executor interface {
	// Load initializes the executor. Safe to call repeatedly; after
	// Terminate a new Load brings the executor back up.
	Load(ctx context.Context) error

	// WriteFile stores data under name in the scratch filesystem.
	WriteFile(name string, data []byte) error

	// ReadFile returns the contents of a scratch file.
	ReadFile(name string) ([]byte, error)

	// DeleteFile removes a scratch file. Deleting a missing file is not
	// an error.
	DeleteFile(name string) error

	// Exec runs the tool with the given argument vector and waits for it
	// to finish. Diagnostic lines and progress ticks are delivered to the
	// registered handlers while the command runs.
	Exec(ctx context.Context, args []string) error

	// OnLog registers a handler for diagnostic output lines. The returned
	// function unregisters it.
	OnLog(fn LogFunc) (remove func())

	// OnProgress registers a handler for progress ticks. The returned
	// function unregisters it.
	OnProgress(fn ProgressFunc) (remove func())

	// Terminate kills any running command and releases all resources,
	// including the scratch filesystem. The executor must be loaded again
	// before reuse.
	Terminate()
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// IsExit reports whether err is a non-zero command exit, as opposed to a
// failure to run the command at all.
func IsExit(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}
