package config

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/utils/logging"
)

type LogConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

func (c *Config) CreateLogger(debug bool) (
	*zap.Logger,
	io.Closer,
	error,
) {
	replica := ""
	if c.Farming != nil {
		replica = c.Farming.ReplicaId
	}

	filename := c.LogFile
	if filename != "" || c.Logger != nil {
		opts := logging.RotationOptions{}
		if c.Logger != nil {
			opts = logging.RotationOptions{
				Dir:        c.Logger.Path,
				MaxSize:    c.Logger.MaxSize,
				MaxBackups: c.Logger.MaxBackups,
				MaxAge:     c.Logger.MaxAge,
				Compress:   c.Logger.Compress,
			}
		}

		logger, closer, err := logging.NewRotatingFileLogger(
			debug,
			replica,
			filename,
			opts,
		)
		return logger, closer, errors.Wrap(err, "create logger")
	}

	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "create logger")
	}

	if replica != "" {
		logger = logger.With(zap.String("replica", replica))
	}

	return logger, io.NopCloser(nil), nil
}
