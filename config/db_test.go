package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBConfigWithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    DBConfig
		expected DBConfig
	}{
		{
			name:  "Empty config",
			input: DBConfig{},
			expected: DBConfig{
				Path:                ".config/store",
				NoticePercentage:    70,
				WarnPercentage:      90,
				TerminatePercentage: 95,
			},
		},
		{
			name: "Config with custom values",
			input: DBConfig{
				Path:                "/custom/path/store",
				SyncWrites:          true,
				WarnPercentage:      80,
				TerminatePercentage: 99,
			},
			expected: DBConfig{
				Path:                "/custom/path/store",
				SyncWrites:          true,
				NoticePercentage:    70,
				WarnPercentage:      80,
				TerminatePercentage: 99,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.input.WithDefaults())
		})
	}
}
