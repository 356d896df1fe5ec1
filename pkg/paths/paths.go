// Package paths provides centralized path handling for modlink.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/modlink/pkg/errors"
)

// Environment variable names
const (
	// EnvStagingRoot is the primary environment variable for the staging
	// area location.
	EnvStagingRoot = "MODLINK_STAGING_ROOT"

	// EnvDataDir overrides the XDG data directory for modlink
	EnvDataDir = "MODLINK_DATA_DIR"

	// EnvConfigDir overrides the XDG config directory for modlink
	EnvConfigDir = "MODLINK_CONFIG_DIR"
)

// Default directories and files
// IMPORTANT: These constants define modlink's internal state layout and are
// NOT user-configurable. They must remain consistent across installations so
// that manifests written by one version are found by the next.
const (
	// ModlinkDirName is the directory name for modlink-specific files
	ModlinkDirName = "modlink"

	// ManifestDir is the subdirectory for activation manifests
	ManifestDir = "manifests"

	// StagingDirName is the per-game staging subdirectory name
	StagingDirName = "staging"

	// ConfigFileName is the name of the configuration file
	ConfigFileName = "modlink.toml"

	// LogFileName is the name of the log file
	LogFileName = "modlink.log"
)

// Paths provides centralized path management for modlink
type Paths interface {
	// StagingRoot is the root directory under which each game's staging
	// area lives.
	StagingRoot() string

	// StagingDir is the private area holding one game's installed mods.
	StagingDir(gameID string) string

	// ModInstallPath is the staging directory of one mod.
	ModInstallPath(gameID, modID string) string

	DataDir() string
	ConfigDir() string
	CacheDir() string
	StateDir() string

	// ManifestPath is the activation manifest file for one
	// (instance, mod type) scope.
	ManifestPath(instanceID string, modType string) string

	// RuntimeDir holds short-lived per-process artifacts such as elevation
	// channel sockets.
	RuntimeDir() string

	ConfigFilePath() string
	LogFilePath() string
}

type paths struct {
	stagingRoot string
	xdgData     string
	xdgConfig   string
	xdgCache    string
	xdgState    string
}

// New creates a new Paths instance with the given staging root. If
// stagingRoot is empty it is resolved from MODLINK_STAGING_ROOT, falling
// back to the data directory.
func New(stagingRoot string) (Paths, error) {
	p := &paths{}

	if err := p.setupXDGDirs(); err != nil {
		return nil, err
	}

	if stagingRoot == "" {
		if root := os.Getenv(EnvStagingRoot); root != "" {
			stagingRoot = expandHome(root)
		} else {
			stagingRoot = filepath.Join(p.xdgData, StagingDirName)
		}
	} else {
		stagingRoot = expandHome(stagingRoot)
	}

	absRoot, err := filepath.Abs(stagingRoot)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "failed to get absolute path for staging root")
	}
	p.stagingRoot = absRoot

	return p, nil
}

// setupXDGDirs initializes XDG directories, respecting environment overrides
func (p *paths) setupXDGDirs() error {
	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		p.xdgData = expandHome(dataDir)
	} else {
		p.xdgData = filepath.Join(xdg.DataHome, ModlinkDirName)
	}

	if configDir := os.Getenv(EnvConfigDir); configDir != "" {
		p.xdgConfig = expandHome(configDir)
	} else {
		p.xdgConfig = filepath.Join(xdg.ConfigHome, ModlinkDirName)
	}

	p.xdgCache = filepath.Join(xdg.CacheHome, ModlinkDirName)

	// XDG state dir has no first-class accessor in older xdg versions, so
	// resolve it manually.
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		p.xdgState = filepath.Join(stateDir, ModlinkDirName)
	} else {
		homeDir, _ := os.UserHomeDir()
		p.xdgState = filepath.Join(homeDir, ".local", "state", ModlinkDirName)
	}

	return nil
}

func (p *paths) StagingRoot() string {
	return p.stagingRoot
}

func (p *paths) StagingDir(gameID string) string {
	return filepath.Join(p.stagingRoot, gameID)
}

func (p *paths) ModInstallPath(gameID, modID string) string {
	return filepath.Join(p.StagingDir(gameID), modID)
}

func (p *paths) DataDir() string {
	return p.xdgData
}

func (p *paths) ConfigDir() string {
	return p.xdgConfig
}

func (p *paths) CacheDir() string {
	return p.xdgCache
}

func (p *paths) StateDir() string {
	return p.xdgState
}

func (p *paths) ManifestPath(instanceID string, modType string) string {
	name := fmt.Sprintf("%s.%s.toml", instanceID, modType)
	return filepath.Join(p.xdgState, ManifestDir, name)
}

func (p *paths) RuntimeDir() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, ModlinkDirName)
	}
	return filepath.Join(os.TempDir(), ModlinkDirName)
}

func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.xdgConfig, ConfigFileName)
}

func (p *paths) LogFilePath() string {
	return filepath.Join(p.xdgState, LogFileName)
}

// expandHome expands a leading ~/ to the user's home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
