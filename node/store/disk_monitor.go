package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/config"
)

// DiskMonitor watches the partition holding the store and reports usage
// against the configured thresholds. Reaching the terminate threshold sends
// an error on errCh so the node can shut down before the store fills up.
//
// Usage:
//
//	errCh := make(chan error, 1)
//	monitor := store.NewDiskMonitor(*cfg.DB, logger, errCh)
//	monitor.Start(ctx)
//
//	select {
//	case err := <-errCh:
//		logger.Error("disk monitor triggered shutdown", zap.Error(err))
//		cancel()
//	case <-ctx.Done():
//	}
const diskMonitorNamespace = "safe_farming"

var (
	diskUsagePercentage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: diskMonitorNamespace,
			Subsystem: "disk",
			Name:      "usage_percentage",
			Help:      "Current disk usage percentage for the monitored path",
		},
		[]string{"path"},
	)

	diskTotalSpace = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: diskMonitorNamespace,
			Subsystem: "disk",
			Name:      "total_bytes",
			Help:      "Total disk space in bytes for the monitored path",
		},
		[]string{"path"},
	)

	diskFreeSpace = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: diskMonitorNamespace,
			Subsystem: "disk",
			Name:      "free_bytes",
			Help:      "Free disk space in bytes for the monitored path",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(diskUsagePercentage)
	prometheus.MustRegister(diskTotalSpace)
	prometheus.MustRegister(diskFreeSpace)
}

type DiskMonitor struct {
	path                string
	noticePercentage    int
	warnPercentage      int
	terminatePercentage int
	log                 *zap.Logger
	errCh               chan error
	checkInterval       time.Duration
}

// NewDiskMonitor creates a disk monitor for the store path using thresholds
// from config
func NewDiskMonitor(
	cfg config.DBConfig,
	log *zap.Logger,
	errCh chan error,
) *DiskMonitor {
	return &DiskMonitor{
		path:                cfg.Path,
		noticePercentage:    cfg.NoticePercentage,
		warnPercentage:      cfg.WarnPercentage,
		terminatePercentage: cfg.TerminatePercentage,
		log:                 log,
		errCh:               errCh,
		checkInterval:       time.Minute,
	}
}

// WithCheckInterval sets a custom interval for checking disk usage
func (d *DiskMonitor) WithCheckInterval(interval time.Duration) *DiskMonitor {
	d.checkInterval = interval
	return d
}

// getDiskStats returns usage percentage, total space and free space of the
// partition containing path
func (d *DiskMonitor) getDiskStats() (int, uint64, uint64, error) {
	absPath, err := filepath.Abs(d.path)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "get disk stats")
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return 0, 0, 0, errors.Wrap(
			fmt.Errorf("path does not exist: %s", absPath),
			"get disk stats",
		)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return 0, 0, 0, errors.Wrap(err, "get disk stats")
	}

	totalSpace := stat.Blocks * uint64(stat.Bsize)
	freeSpace := stat.Bfree * uint64(stat.Bsize)

	var usagePercentage int
	if totalSpace > 0 {
		usagePercentage = int(((totalSpace - freeSpace) * 100) / totalSpace)
	}

	return usagePercentage, totalSpace, freeSpace, nil
}

// Start begins monitoring disk usage in a separate goroutine
func (d *DiskMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.checkInterval)
		defer ticker.Stop()

		d.checkDiskUsage()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.checkDiskUsage()
			}
		}
	}()
}

func (d *DiskMonitor) checkDiskUsage() {
	usagePercentage, totalSpace, freeSpace, err := d.getDiskStats()
	if err != nil {
		d.log.Error(
			"failed to check disk usage",
			zap.Error(err),
			zap.String("path", d.path),
		)
		return
	}

	diskUsagePercentage.WithLabelValues(d.path).Set(float64(usagePercentage))
	diskTotalSpace.WithLabelValues(d.path).Set(float64(totalSpace))
	diskFreeSpace.WithLabelValues(d.path).Set(float64(freeSpace))

	fields := []zap.Field{
		zap.String("path", d.path),
		zap.Int("usage_percentage", usagePercentage),
		zap.Uint64("free_bytes", freeSpace),
		zap.Uint64("total_bytes", totalSpace),
	}

	switch {
	case usagePercentage >= d.terminatePercentage:
		d.log.Error(
			"disk usage critical",
			append(fields, zap.Int("threshold", d.terminatePercentage))...,
		)

		if d.errCh != nil {
			select {
			case d.errCh <- errors.Errorf(
				"check disk usage: %s reached critical threshold: %d%%",
				d.path,
				usagePercentage,
			):
			default:
			}
		}
	case usagePercentage >= d.warnPercentage:
		d.log.Warn(
			"disk usage high",
			append(fields, zap.Int("threshold", d.warnPercentage))...,
		)
	case usagePercentage >= d.noticePercentage:
		d.log.Info(
			"disk usage notice",
			append(fields, zap.Int("threshold", d.noticePercentage))...,
		)
	}
}
