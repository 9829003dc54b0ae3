package server

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	RunningJobs   int     `json:"runningJobs"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemPercent    float64 `json:"memPercent"`
	ProcessRSSMB  float64 `json:"processRssMb"`
}

// handleHealth reports service and host health
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Database:      "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		RunningJobs:   len(s.registry.ListRunning()),
	}

	if s.database != nil {
		if err := s.database.QuickCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Database health check failed")
			resp.Status = "degraded"
			resp.Database = err.Error()
		}
	}

	resp.CPUPercent, resp.MemPercent = s.getSystemStats()
	resp.ProcessRSSMB = s.getProcessRSS()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// getSystemStats returns host CPU and RAM usage percentages. The CPU sample
// window is kept short so the endpoint answers quickly.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// getProcessRSS returns this process's resident memory in MB
func (s *Server) getProcessRSS() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0
	}
	return float64(info.RSS) / 1024 / 1024
}
