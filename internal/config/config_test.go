package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5, cfg.MaxRounds)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Empty(t, cfg.ArchiveDriver)
	assert.Equal(t, 256, cfg.ArchiveBuffer)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AVALON_ADDR", "127.0.0.1:9000")
	t.Setenv("AVALON_MAX_ROUNDS", "3")
	t.Setenv("AVALON_ARCHIVE_DRIVER", "sqlite")
	t.Setenv("AVALON_ARCHIVE_DSN", "file:avalon.db")
	t.Setenv("AVALON_SHUTDOWN_TIMEOUT", "250ms")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, "sqlite", cfg.ArchiveDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AVALON_LOG_FORMAT=console\nAVALON_SUBSCRIBER_BUFFER=8\n"), 0o600))
	// godotenv writes into the process env; register cleanup through Setenv
	t.Setenv("AVALON_LOG_FORMAT", "")
	os.Unsetenv("AVALON_LOG_FORMAT")
	t.Setenv("AVALON_SUBSCRIBER_BUFFER", "")
	os.Unsetenv("AVALON_SUBSCRIBER_BUFFER")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 8, cfg.SubscriberBuffer)
}

func TestLoad_Rejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "zero rounds", env: map[string]string{"AVALON_MAX_ROUNDS": "0"}},
		{name: "not a number", env: map[string]string{"AVALON_MAX_ROUNDS": "five"}},
		{name: "unknown driver", env: map[string]string{"AVALON_ARCHIVE_DRIVER": "mongo"}},
		{name: "driver without dsn", env: map[string]string{"AVALON_ARCHIVE_DRIVER": "postgres"}},
		{name: "empty buffer", env: map[string]string{"AVALON_SUBSCRIBER_BUFFER": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(missingFile(t))
			assert.Error(t, err)
		})
	}
}
