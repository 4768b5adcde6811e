package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBinary writes a shell script that mimics the external tool: it
// answers -version, exits non-zero when asked to, and otherwise emits a
// progress line on stderr and writes out.mp4 in the working directory.
func stubBinary(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg stub version 0.0"
  exit 0
fi
for a in "$@"; do
  if [ "$a" = "fail" ]; then
    echo "failing on purpose" >&2
    exit 1
  fi
done
echo "frame=  120 fps= 24 time=00:00:05.00 bitrate= 1200.0kbits/s speed=1.5x" >&2
echo done > out.mp4
exit 0
`
	path := filepath.Join(t.TempDir(), "ffmpeg-stub")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func loadedRunner(t *testing.T) *Runner {
	t.Helper()
	r := NewRunner(RunnerConfig{
		BinaryPath:  stubBinary(t),
		ScratchBase: t.TempDir(),
	})
	require.NoError(t, r.Load(context.Background()))
	t.Cleanup(r.Terminate)
	return r
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Progress
	}{
		{
			name: "full tick",
			line: "frame= 100 fps= 25 time=00:01:02.50 bitrate= 900.0kbits/s speed=2.0x",
			ok:   true,
			want: Progress{Time: time.Minute + 2*time.Second + 500*time.Millisecond, Speed: 2.0, Bitrate: "900.0kbits/s"},
		},
		{
			name: "time only",
			line: "time=01:00:00.00",
			ok:   true,
			want: Progress{Time: time.Hour},
		},
		{
			name: "no tick",
			line: "Stream #0:0: Video: h264",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParseProgressLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, p)
			}
		})
	}
}

func TestRunnerRequiresLoad(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	assert.ErrorIs(t, r.WriteFile("a", nil), ErrNotLoaded)
	assert.ErrorIs(t, r.Exec(context.Background(), nil), ErrNotLoaded)
}

func TestRunnerScratchFileRoundTrip(t *testing.T) {
	r := loadedRunner(t)

	require.NoError(t, r.WriteFile("in.mkv", []byte("payload")))
	data, err := r.ReadFile("in.mkv")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, r.DeleteFile("in.mkv"))
	_, err = r.ReadFile("in.mkv")
	assert.Error(t, err)

	// Deleting again is not an error.
	assert.NoError(t, r.DeleteFile("in.mkv"))
}

func TestRunnerRejectsBadNames(t *testing.T) {
	r := loadedRunner(t)

	for _, name := range []string{"", "..", "a/b", "../escape"} {
		assert.ErrorIs(t, r.WriteFile(name, nil), ErrInvalidName, "name %q", name)
	}
}

func TestRunnerExecPumpsLogsAndProgress(t *testing.T) {
	r := loadedRunner(t)

	var mu sync.Mutex
	var lines []string
	var ticks []Progress
	removeLog := r.OnLog(func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	defer removeLog()
	removeProgress := r.OnProgress(func(p Progress) {
		mu.Lock()
		ticks = append(ticks, p)
		mu.Unlock()
	})
	defer removeProgress()

	require.NoError(t, r.Exec(context.Background(), []string{"-i", "in.mkv", "out.mp4"}))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lines)
	require.NotEmpty(t, ticks)
	assert.Equal(t, 5*time.Second, ticks[0].Time)
	assert.Equal(t, 1.5, ticks[0].Speed)

	// The stub wrote out.mp4 into the scratch dir via the working directory.
	out, err := r.ReadFile("out.mp4")
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(out))
}

func TestRunnerExecNonZeroExit(t *testing.T) {
	r := loadedRunner(t)

	err := r.Exec(context.Background(), []string{"fail"})
	require.Error(t, err)
	assert.True(t, IsExit(err))

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Code)
}

func TestRunnerUnsubscribedHandlerNotCalled(t *testing.T) {
	r := loadedRunner(t)

	called := false
	remove := r.OnLog(func(string) { called = true })
	remove()

	require.NoError(t, r.Exec(context.Background(), []string{"ok"}))
	assert.False(t, called)
}

func TestRunnerTerminateAndReload(t *testing.T) {
	base := t.TempDir()
	r := NewRunner(RunnerConfig{BinaryPath: stubBinary(t), ScratchBase: base})
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.WriteFile("leftover.bin", []byte("x")))

	r.Terminate()

	// Scratch dir is gone and the runner refuses work until reloaded.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = r.ReadFile("leftover.bin")
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, r.Load(context.Background()))
	defer r.Terminate()
	_, err = r.ReadFile("leftover.bin")
	assert.Error(t, err, "files must not survive terminate")
}
