package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/modlink/pkg/config"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// No config file: only the embedded defaults apply.
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "modlink.toml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Deployment.Method)
	assert.True(t, cfg.Deployment.CaseSensitive)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 100, cfg.Retry.DelayMs)
	assert.True(t, cfg.Copy.IdentityCheck)
	assert.Equal(t, 0, cfg.Logging.Verbosity)
}

func TestUserFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modlink.toml")
	content := `
[deployment]
method = "symlink"

[retry]
attempts = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "symlink", cfg.Deployment.Method)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	// Keys the file does not mention keep their defaults.
	assert.Equal(t, 100, cfg.Retry.DelayMs)
	assert.True(t, cfg.Copy.IdentityCheck)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modlink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[retry]\nattempts = 2\n"), 0644))

	t.Setenv("MODLINK_RETRY_ATTEMPTS", "9")
	t.Setenv("MODLINK_DEPLOYMENT_METHOD", "copy")
	t.Setenv("MODLINK_DEPLOYMENT_CASE_SENSITIVE", "false")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	// Env beats the file, the file beats the defaults.
	assert.Equal(t, 9, cfg.Retry.Attempts)
	assert.Equal(t, "copy", cfg.Deployment.Method)
	assert.False(t, cfg.Deployment.CaseSensitive)
	assert.Equal(t, 100, cfg.Retry.DelayMs)
}

func TestCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modlink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[deployment\nmethod ="), 0644))

	_, err := config.LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrConfigLoad, errors.GetErrorCode(err))
}

func TestRetryDelay(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "100ms", cfg.Retry.Delay().String())
}

func TestDefaultConfigContentIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modlink.toml")
	require.NoError(t, os.WriteFile(path, []byte(config.DefaultConfigContent()), 0644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.Attempts)
}
