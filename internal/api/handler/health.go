package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

var startTime = time.Now()

// Dependency is an external tool the service shells out to.
type Dependency struct {
	Name string
	// Check returns the tool version, or an error when it is unusable.
	Check func(ctx context.Context) (string, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	outputDir string
	deps      []Dependency
	busy      func() (busy, workers int)
}

// NewHealthHandler creates a new health handler. busy may be nil.
func NewHealthHandler(outputDir string, deps []Dependency, busy func() (int, int)) *HealthHandler {
	return &HealthHandler{
		outputDir: outputDir,
		deps:      deps,
		busy:      busy,
	}
}

// DependencyStatus reports one external tool.
type DependencyStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
	Disk         *DiskStatus                 `json:"disk,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

// DiskStatus reports the output filesystem.
type DiskStatus struct {
	Path      string  `json:"path"`
	FreeBytes int64   `json:"free_bytes"`
	FreeHuman string  `json:"free_human"`
	UsedPct   float64 `json:"used_pct"`
}

// Live handles GET /health. Status is "degraded" when a dependency is
// missing; the probe itself still succeeds.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := h.checkDependencies(ctx)
	status := "ok"
	for _, d := range deps {
		if !d.Available {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       status,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Dependencies: deps,
	})
}

func (h *HealthHandler) checkDependencies(ctx context.Context) map[string]DependencyStatus {
	if len(h.deps) == 0 {
		return nil
	}
	out := make(map[string]DependencyStatus, len(h.deps))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, d := range h.deps {
		wg.Add(1)
		go func(d Dependency) {
			defer wg.Done()
			st := DependencyStatus{}
			if v, err := d.Check(ctx); err != nil {
				st.Error = err.Error()
			} else {
				st.Available = true
				st.Version = v
			}
			mu.Lock()
			out[d.Name] = st
			mu.Unlock()
		}(d)
	}
	wg.Wait()
	return out
}

// Ready handles GET /ready. The service is ready when the output directory
// accepts writes.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := checkWritable(h.outputDir); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: now,
			Error:     err.Error(),
		})
		return
	}

	_, free, _, usedPct := getDiskStats(h.outputDir)
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: now,
		Disk: &DiskStatus{
			Path:      h.outputDir,
			FreeBytes: free,
			FreeHuman: humanize.IBytes(uint64(free)),
			UsedPct:   usedPct,
		},
	})
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	CPUPct         float64 `json:"cpu_pct"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	DiskFreeHuman  string  `json:"disk_free_human"`
	StoragePath    string  `json:"storage_path"`
	TranscodeBusy  int     `json:"transcode_busy"`
	TranscodeSlots int     `json:"transcode_slots"`
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPct:        getCPUUsage(),
		StoragePath:   h.outputDir,
	}
	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.outputDir)
	stats.DiskFreeHuman = humanize.IBytes(uint64(stats.DiskFreeBytes))
	if h.busy != nil {
		stats.TranscodeBusy, stats.TranscodeSlots = h.busy()
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
