package config

const (
	defaultStorePath           = ".config/store"
	defaultNoticePercentage    = 70
	defaultWarnPercentage      = 90
	defaultTerminatePercentage = 95
)

type DBConfig struct {
	Path string `yaml:"path"`
	// Flush every write to disk before acknowledging it
	SyncWrites bool `yaml:"syncWrites"`

	// Disk usage thresholds of the partition holding Path, in percent
	NoticePercentage    int `yaml:"noticePercentage"`
	WarnPercentage      int `yaml:"warnPercentage"`
	TerminatePercentage int `yaml:"terminatePercentage"`

	// Test-only parameters, do not enable outside of tests
	InMemoryDONOTUSE bool
}

// WithDefaults returns a copy of the DBConfig with any missing fields set to
// their default values.
func (c DBConfig) WithDefaults() DBConfig {
	cpy := c
	if cpy.Path == "" {
		cpy.Path = defaultStorePath
	}
	if cpy.NoticePercentage == 0 {
		cpy.NoticePercentage = defaultNoticePercentage
	}
	if cpy.WarnPercentage == 0 {
		cpy.WarnPercentage = defaultWarnPercentage
	}
	if cpy.TerminatePercentage == 0 {
		cpy.TerminatePercentage = defaultTerminatePercentage
	}
	return cpy
}
