package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileLoggerWritesReplicaFile(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := NewRotatingFileLogger(
		false,
		"replica-a",
		"",
		RotationOptions{Dir: dir},
	)
	require.NoError(t, err)

	logger.Info("credited account")
	logger.Debug("hidden at info level")
	require.NoError(t, logger.Sync())
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "farming-replica-a.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "credited account"))
	assert.True(t, strings.Contains(string(data), "replica-a"))
	assert.False(t, strings.Contains(string(data), "hidden at info level"))
}

func TestRotationOptionsDefaults(t *testing.T) {
	opts := RotationOptions{}.withDefaults()
	assert.Equal(t, "./logs", opts.Dir)
	assert.Equal(t, 50, opts.MaxSize)
	assert.Equal(t, 5, opts.MaxBackups)
	assert.Equal(t, 14, opts.MaxAge)
	assert.Equal(t, "farming.log", filenameForReplica(""))
}
