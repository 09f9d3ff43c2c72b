package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"short secret", config.Config{AuthSecret: "short", ManagerPIN: "739154"}, true},
		{"strong values", config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}, false},
		{"pin disabled in development", config.Config{AuthSecret: strongSecret, Environment: "development"}, false},
		{"pin required in production", config.Config{AuthSecret: strongSecret, Environment: "production"}, true},
		{"short pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "7391"}, true},
		{"non-digit pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "73a154"}, true},
		{"common pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "123456"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, weak := range []string{"777777", "234567", "987654", "112233"} {
		assert.Error(t, validatePINStrength(weak), weak)
	}
	assert.NoError(t, validatePINStrength("482913"))
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	logger, err := newLogger(config.Config{Environment: "production", LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	_, err = newLogger(config.Config{LogLevel: "chatty"})
	assert.Error(t, err)
}
