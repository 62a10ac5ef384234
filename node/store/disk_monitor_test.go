package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Yoga07/safe-farming/config"
)

func TestNewDiskMonitor(t *testing.T) {
	cfg := config.DBConfig{Path: "/var/lib/farming"}.WithDefaults()

	monitor := NewDiskMonitor(cfg, zaptest.NewLogger(t), make(chan error, 1))

	assert.Equal(t, "/var/lib/farming", monitor.path)
	assert.Equal(t, 70, monitor.noticePercentage)
	assert.Equal(t, 90, monitor.warnPercentage)
	assert.Equal(t, 95, monitor.terminatePercentage)
	assert.Equal(t, time.Minute, monitor.checkInterval)

	monitor = monitor.WithCheckInterval(5 * time.Second)
	assert.Equal(t, 5*time.Second, monitor.checkInterval)
}

func TestGetDiskStats(t *testing.T) {
	cfg := config.DBConfig{Path: t.TempDir()}.WithDefaults()

	monitor := NewDiskMonitor(cfg, zaptest.NewLogger(t), make(chan error, 1))
	percentage, total, free, err := monitor.getDiskStats()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, percentage, 0)
	assert.LessOrEqual(t, percentage, 100)
	assert.GreaterOrEqual(t, total, free)

	monitor.path = monitor.path + "/missing"
	_, _, _, err = monitor.getDiskStats()
	assert.Error(t, err)
}

// Thresholds of zero make every check critical.
func criticalConfig(t *testing.T) config.DBConfig {
	return config.DBConfig{Path: t.TempDir()}
}

func TestCheckDiskUsage(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	errCh := make(chan error, 1)

	monitor := NewDiskMonitor(criticalConfig(t), zap.New(core), errCh)
	monitor.checkDiskUsage()

	assert.Equal(t, 1, recorded.FilterMessage("disk usage critical").Len())

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "critical threshold")
	default:
		t.Fatal("expected an error on the channel")
	}

	// A full channel never blocks the monitor.
	monitor.checkDiskUsage()
	monitor.checkDiskUsage()
}

func TestMonitorStart(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	errCh := make(chan error, 1)

	monitor := NewDiskMonitor(criticalConfig(t), zap.New(core), errCh).
		WithCheckInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	monitor.Start(ctx)

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "critical threshold")
	case <-time.After(time.Second):
		t.Fatal("expected an error on the channel")
	}
	assert.GreaterOrEqual(t, recorded.Len(), 1)
}
