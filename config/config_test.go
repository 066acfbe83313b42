package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AuthenticationIsOnByDefault(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "")
	require.NoError(t, os.Unsetenv("AUTH_ENABLED"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, "platform-admin", cfg.AuthPlatformRole)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "")
	require.NoError(t, os.Unsetenv("AUTH_ENABLED"))
	t.Setenv("KAFKA_PUBLISH_TIMEOUT", "")
	require.NoError(t, os.Unsetenv("KAFKA_PUBLISH_TIMEOUT"))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_ENABLED=false\nKAFKA_PUBLISH_TIMEOUT=750ms\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.AuthEnabled)
	assert.Equal(t, "750ms", cfg.KafkaPublishTimeout.String())
}
