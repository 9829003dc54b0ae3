// Package reliability keeps the stocks database and data directory healthy.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/stockscan/internal/database"
)

// Disk space thresholds in GB
const (
	CriticalFreeGB = 0.5
	LowFreeGB      = 5.0
)

// ErrDiskCritical is returned when the data directory is almost full
var ErrDiskCritical = errors.New("insufficient disk space")

// DiskUsage reports free space for a path
type DiskUsage func(path string) (freeBytes uint64, err error)

// Maintenance runs the nightly database checks
type Maintenance struct {
	db      *database.DB
	dataDir string
	usage   DiskUsage
	log     zerolog.Logger
}

// NewMaintenance creates the maintenance task for db and dataDir
func NewMaintenance(db *database.DB, dataDir string, log zerolog.Logger) *Maintenance {
	return &Maintenance{
		db:      db,
		dataDir: dataDir,
		usage:   gopsutilUsage,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

func gopsutilUsage(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// Run checks integrity, checkpoints the WAL and verifies free disk space
func (m *Maintenance) Run(ctx context.Context) error {
	m.log.Info().Msg("Starting database maintenance")
	start := time.Now()

	if err := m.db.IntegrityCheck(ctx); err != nil {
		m.log.Error().Err(err).Msg("Database integrity check failed")
		return fmt.Errorf("integrity check failed: %w", err)
	}

	// Checkpoint failures only cost disk space
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := m.checkDiskSpace(); err != nil {
		return err
	}

	m.log.Info().Dur("duration_ms", time.Since(start)).Msg("Database maintenance completed")
	return nil
}

func (m *Maintenance) checkDiskSpace() error {
	free, err := m.usage(m.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}
	freeGB := float64(free) / 1e9

	switch {
	case freeGB < CriticalFreeGB:
		m.log.Error().Float64("available_gb", freeGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("%w: %.2f GB free", ErrDiskCritical, freeGB)
	case freeGB < LowFreeGB:
		m.log.Warn().Float64("available_gb", freeGB).Msg("Disk space running low")
	default:
		m.log.Debug().Float64("available_gb", freeGB).Msg("Disk space check")
	}
	return nil
}

// Trigger adapts Run for the scheduler
func (m *Maintenance) Trigger() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return "", m.Run(ctx)
}
