package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationOptions bounds the rotating log files. Zero values fall back to
// the package defaults.
type RotationOptions struct {
	Dir        string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func (o RotationOptions) withDefaults() RotationOptions {
	if o.Dir == "" {
		o.Dir = "./logs"
	}
	if o.MaxSize == 0 {
		o.MaxSize = 50 // megabytes per file before rotation
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 5
	}
	if o.MaxAge == 0 {
		o.MaxAge = 14 // days
	}
	return o
}

func filenameForReplica(replica string) string {
	if replica == "" {
		return "farming.log"
	}
	return fmt.Sprintf("farming-%s.log", replica)
}

func NewRotatingFileLogger(
	debug bool,
	replica string,
	filename string,
	opts RotationOptions,
) (
	*zap.Logger,
	io.Closer,
	error,
) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	if filename == "" {
		filename = filenameForReplica(replica)
	}

	rot := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, filename),
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}

	encCfg := zap.NewProductionEncoderConfig()
	level := zap.InfoLevel
	if debug {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zap.DebugLevel
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	enc := zapcore.NewConsoleEncoder(encCfg)

	ws := zapcore.AddSync(rot)
	core := zapcore.NewCore(enc, ws, level)
	logger := zap.New(core, zap.AddCaller(), zap.Fields(
		zap.String("replica", replica),
	))

	return logger, rot, nil
}
