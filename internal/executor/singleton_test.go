package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor counts loads so tests can observe single-flight behavior.
type fakeExecutor struct {
	loadDelay time.Duration
	loadErr   error
	loads     *atomic.Int32
	term      atomic.Bool
}

func (f *fakeExecutor) Load(ctx context.Context) error {
	if f.loadDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.loadDelay):
		}
	}
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeExecutor) WriteFile(string, []byte) error       { return nil }
func (f *fakeExecutor) ReadFile(string) ([]byte, error)      { return nil, nil }
func (f *fakeExecutor) DeleteFile(string) error              { return nil }
func (f *fakeExecutor) Exec(context.Context, []string) error { return nil }
func (f *fakeExecutor) OnLog(LogFunc) func()                 { return func() {} }
func (f *fakeExecutor) OnProgress(ProgressFunc) func()       { return func() {} }
func (f *fakeExecutor) Terminate()                           { f.term.Store(true) }

func TestSingletonSingleFlightLoad(t *testing.T) {
	var loads atomic.Int32
	s := NewSingleton(func() Executor {
		return &fakeExecutor{loadDelay: 50 * time.Millisecond, loads: &loads}
	})

	const goroutines = 8
	results := make([]Executor, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exec, err := s.Load(context.Background())
			require.NoError(t, err)
			results[i] = exec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load(), "concurrent loads must share one initialization")
	for _, exec := range results {
		assert.Same(t, results[0], exec)
	}
}

func TestSingletonLoadErrorNotCached(t *testing.T) {
	var loads atomic.Int32
	fail := errors.New("binary missing")
	failing := true
	s := NewSingleton(func() Executor {
		f := &fakeExecutor{loads: &loads}
		if failing {
			f.loadErr = fail
		}
		return f
	})

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, fail)
	assert.Nil(t, s.Current())

	// A later Load retries from scratch.
	failing = false
	exec, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, exec, s.Current())
}

func TestSingletonTerminateAndReload(t *testing.T) {
	var loads atomic.Int32
	s := NewSingleton(func() Executor {
		return &fakeExecutor{loads: &loads}
	})

	first, err := s.Load(context.Background())
	require.NoError(t, err)

	s.Terminate()
	assert.True(t, first.(*fakeExecutor).term.Load())
	assert.Nil(t, s.Current())

	second, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), loads.Load())
}

func TestSingletonLoadRespectsContext(t *testing.T) {
	var loads atomic.Int32
	s := NewSingleton(func() Executor {
		return &fakeExecutor{loadDelay: time.Second, loads: &loads}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// First goroutine owns the load; this waiter should give up with the
	// context rather than blocking on the in-flight load.
	go s.Load(context.Background()) //nolint:errcheck

	time.Sleep(5 * time.Millisecond)
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
