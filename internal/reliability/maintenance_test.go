package reliability

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/aristath/stockscan/internal/testing"
)

func newTestMaintenance(t *testing.T, free uint64, usageErr error) *Maintenance {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "stocks")
	t.Cleanup(cleanup)

	m := NewMaintenance(db, t.TempDir(), zerolog.Nop())
	m.usage = func(string) (uint64, error) { return free, usageErr }
	return m
}

// TestMaintenance_Run tests a healthy maintenance pass
func TestMaintenance_Run(t *testing.T) {
	m := newTestMaintenance(t, 50e9, nil)
	assert.NoError(t, m.Run(context.Background()))
}

// TestMaintenance_LowDisk tests that low but non-critical space only warns
func TestMaintenance_LowDisk(t *testing.T) {
	m := newTestMaintenance(t, 2e9, nil)
	assert.NoError(t, m.Run(context.Background()))
}

// TestMaintenance_CriticalDisk tests that critical disk space fails the task
func TestMaintenance_CriticalDisk(t *testing.T) {
	m := newTestMaintenance(t, 1e8, nil)
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrDiskCritical)
}

// TestMaintenance_UsageError tests that an unreadable filesystem is reported
func TestMaintenance_UsageError(t *testing.T) {
	m := newTestMaintenance(t, 0, errors.New("statfs failed"))
	_, err := m.Trigger()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statfs failed")
}

// TestGopsutilUsage tests that the real disk probe reads the temp dir
func TestGopsutilUsage(t *testing.T) {
	free, err := gopsutilUsage(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
