package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/aristath/refinery/internal/database"
)

// SystemHandlers handles system monitoring endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	cacheDB     *database.DB
	tycoon      *tycoon.Client
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(log zerolog.Logger, dataDir string, cacheDB *database.DB, tycoonClient *tycoon.Client) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		cacheDB:     cacheDB,
		tycoon:      tycoonClient,
	}
}

// HandleSystemStatus returns process and host health: uptime, CPU and RAM
// usage, quote cache size, cache database stats and data directory size.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"quotes_cached":  h.tycoon.CacheSize(),
		"data_dir_mb":    h.dataDirSizeMB(),
	}

	if stats, err := h.cacheDB.GetStats(); err == nil {
		response["cache_database"] = stats
	} else {
		h.log.Warn().Err(err).Msg("Failed to read cache database stats")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode status response")
	}
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// uses a 100ms interval to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// dataDirSizeMB walks the data directory and sums file sizes.
func (h *SystemHandlers) dataDirSizeMB() float64 {
	var totalSize int64
	err := filepath.Walk(h.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to measure data directory")
		return 0
	}
	return float64(totalSize) / 1024 / 1024
}
