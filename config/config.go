package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const defaultMetricsListenAddress = "127.0.0.1:8089"

type Config struct {
	Farming *FarmingConfig `yaml:"farming"`
	DB      *DBConfig      `yaml:"db"`
	Logger  *LogConfig     `yaml:"logger"`
	LogFile string         `yaml:"logFile"`
	// Address the prometheus handler listens on, empty disables it.
	MetricsListenAddress string `yaml:"metricsListenAddress"`
}

// WithDefaults returns a copy of the Config with any missing sections
// created and their fields set to default values.
func (c Config) WithDefaults() Config {
	cpy := c
	farming := FarmingConfig{}
	if cpy.Farming != nil {
		farming = *cpy.Farming
	}
	farming = farming.WithDefaults()
	cpy.Farming = &farming

	db := DBConfig{}
	if cpy.DB != nil {
		db = *cpy.DB
	}
	db = db.WithDefaults()
	cpy.DB = &db

	if cpy.MetricsListenAddress == "" {
		cpy.MetricsListenAddress = defaultMetricsListenAddress
	}
	return cpy
}

// LoadConfig reads the yaml config at path, applies defaults and validates
// the farming section.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	config = config.WithDefaults()
	if err := config.Farming.Validate(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	return &config, nil
}

// SaveConfig writes config to path, creating parent directories.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "save config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "save config")
	}

	return errors.Wrap(os.WriteFile(path, data, 0o600), "save config")
}
