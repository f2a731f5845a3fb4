package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsStartupErrors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "invalid configuration",
			env:      map[string]string{"DATABASE_DRIVER": "oracle"},
			expected: "failed to load configuration",
		},
		{
			name: "unreachable database",
			env: map[string]string{
				"DATABASE_DRIVER": "sqlite",
				"DATABASE_URL":    filepath.Join(t.TempDir(), "missing", "bnpl.db"),
			},
			expected: "failed to initialize engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}
