package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, StoreFile, cfg.CredentialStore)
	assert.Equal(t, BackendAPI, cfg.SchedulerBackend)
	assert.Equal(t, time.UTC.String(), cfg.Location.String())
	assert.Equal(t, "http://localhost:3000/appointment-history", cfg.HistoryURL())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(EnvAPIBaseURL, "https://api.example.org/")
	t.Setenv(EnvRequestTimeout, "3")
	t.Setenv(EnvLeaveTimeout, "750ms")
	t.Setenv(EnvCredentialStore, "SQLite")
	t.Setenv(EnvTimezone, "Asia/Kolkata")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.org", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.LeaveTimeout)
	assert.Equal(t, StoreSQLite, cfg.CredentialStore)
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"relative api url", EnvAPIBaseURL, "api.example.org"},
		{"unknown store", EnvCredentialStore, "etcd"},
		{"unknown backend", EnvSchedulerBackend, "outlook"},
		{"google without client", EnvSchedulerBackend, "google"},
		{"bad timezone", EnvTimezone, "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
