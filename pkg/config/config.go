// Package config handles configuration management for modlink.
// Configuration is layered: embedded defaults first, then the user's
// modlink.toml when present, then MODLINK_* environment variables. Later
// layers override earlier ones key by key.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/paths"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes which environment variables feed the config. The first
// underscore after the prefix separates section from key:
// MODLINK_RETRY_DELAY_MS maps to retry.delay_ms.
const envPrefix = "MODLINK_"

func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Config is modlink's runtime configuration.
type Config struct {
	Deployment DeploymentConfig `koanf:"deployment"`
	Retry      RetryConfig      `koanf:"retry"`
	Copy       CopyConfig       `koanf:"copy"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// DeploymentConfig selects and parameterizes the deployment method.
type DeploymentConfig struct {
	// Method pins a method id; empty means auto-select.
	Method string `koanf:"method"`

	// CaseSensitive describes the filesystems the game's target
	// directories live on; it controls manifest key folding.
	CaseSensitive bool `koanf:"case_sensitive"`
}

// RetryConfig is the non-interactive retry policy for busy files.
type RetryConfig struct {
	Attempts int `koanf:"attempts"`
	DelayMs  int `koanf:"delay_ms"`
}

// Delay returns the retry delay as a duration.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// CopyConfig parameterizes the copy deployment method.
type CopyConfig struct {
	// IdentityCheck refuses copies where source and destination resolve
	// to the same file, which would truncate the source.
	IdentityCheck bool `koanf:"identity_check"`
}

// LoggingConfig controls log verbosity when no -v flags are given.
type LoggingConfig struct {
	Verbosity int `koanf:"verbosity"`
}

// Load builds the effective configuration from the embedded defaults and
// the user's config file, when one exists at p.ConfigFilePath().
func Load(p paths.Paths) (*Config, error) {
	return LoadFile(p.ConfigFilePath())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load default configuration")
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load configuration from %s", path)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to decode configuration")
	}
	return &cfg, nil
}
