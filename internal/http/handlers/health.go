// Package handlers provides the HTTP API handlers for playsink.
package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"
)

// HealthHandler serves the service health endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB enables the database health check.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// CPUInfo reports load averages.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// MemoryInfo reports system and process memory.
type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	HeapBytes      uint64  `json:"heap_bytes"`
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status        string                     `json:"status"`
	Timestamp     string                     `json:"timestamp"`
	Version       string                     `json:"version"`
	Uptime        string                     `json:"uptime"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	CPU           CPUInfo                    `json:"cpu"`
	Memory        MemoryInfo                 `json:"memory"`
	Components    map[string]ComponentHealth `json:"components"`
}

// HealthOutput wraps the response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// LivezOutput is the liveness probe body.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzOutput is the readiness probe body.
type ReadyzOutput struct {
	Body struct {
		Status     string                     `json:"status"`
		Components map[string]ComponentHealth `json:"components"`
	}
}

// Register registers the health routes.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// GetLivez reports process liveness.
func (h *HealthHandler) GetLivez(ctx context.Context, _ *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetReadyz reports whether dependencies are ready to serve.
func (h *HealthHandler) GetReadyz(ctx context.Context, _ *struct{}) (*ReadyzOutput, error) {
	out := &ReadyzOutput{}
	out.Body.Components = map[string]ComponentHealth{
		"database": h.databaseHealth(ctx),
	}

	out.Body.Status = "ready"
	for _, c := range out.Body.Components {
		if c.Status == "error" {
			out.Body.Status = "not_ready"
		}
	}
	return out, nil
}

// GetHealth returns the health status.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	components := map[string]ComponentHealth{
		"database": h.databaseHealth(ctx),
	}

	status := "healthy"
	for _, c := range components {
		if c.Status == "error" {
			status = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPU:           h.cpuInfo(),
			Memory:        h.memoryInfo(),
			Components:    components,
		},
	}, nil
}

func (h *HealthHandler) cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	if avg, err := load.Avg(); err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
	}
	return info
}

func (h *HealthHandler) memoryInfo() MemoryInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	info := MemoryInfo{HeapBytes: ms.HeapAlloc}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalBytes = vm.Total
		info.AvailableBytes = vm.Available
		info.UsedPercent = vm.UsedPercent
	}
	return info
}

func (h *HealthHandler) databaseHealth(ctx context.Context) ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: "disabled"}
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentHealth{Status: "error", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentHealth{Status: "error", Error: err.Error()}
	}
	return ComponentHealth{Status: "ok"}
}
