package executor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage of a running command.
type ProcessStats struct {
	PID            int32         `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	MemoryPercent  float32       `json:"memory_percent"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// Monitor samples resource usage of a process once per second.
type Monitor struct {
	pid       int32
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor for the given PID.
func NewMonitor(pid int32) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop stops sampling. Safe to call more than once.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Stats returns the most recent sample.
func (m *Monitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.PID = m.pid
	m.stats.StartedAt = m.startedAt
	m.stats.Duration = now.Sub(m.startedAt)
	m.stats.LastUpdated = now

	proc, err := process.NewProcessWithContext(m.ctx, m.pid)
	if err != nil {
		return // process may have exited
	}
	if cpuPct, err := proc.CPUPercentWithContext(m.ctx); err == nil {
		m.stats.CPUPercent = cpuPct
	}
	if memInfo, err := proc.MemoryInfoWithContext(m.ctx); err == nil && memInfo != nil {
		m.stats.MemoryRSSBytes = memInfo.RSS
	}
	if memPct, err := proc.MemoryPercentWithContext(m.ctx); err == nil {
		m.stats.MemoryPercent = memPct
	}
}
