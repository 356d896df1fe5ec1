package manifest

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/arthur-debert/modlink/pkg/paths"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Store persists activation manifests under the state directory.
type Store struct {
	ops    *filesystem.Ops
	paths  paths.Paths
	logger zerolog.Logger
}

// NewStore creates a manifest store. ops should be the non-interactive
// variant; manifest persistence must never block on user input.
func NewStore(ops *filesystem.Ops, p paths.Paths) *Store {
	return &Store{
		ops:    ops,
		paths:  p,
		logger: logging.GetLogger("manifest.store"),
	}
}

// Load reads the manifest for one (instance, mod type) scope. A missing or
// corrupt store, or a target directory that no longer exists, is not fatal:
// deployment proceeds as greenfield with an empty manifest.
func (s *Store) Load(instanceID string, modType types.ModType, targetDir, methodID string) *Manifest {
	path := s.paths.ManifestPath(instanceID, string(modType))

	data, err := s.ops.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).
				Msg("Manifest unreadable, treating as empty")
		}
		return New(methodID, modType, targetDir)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		s.logger.Warn().Err(err).Str("path", path).
			Msg("Manifest corrupt, treating as empty")
		return New(methodID, modType, targetDir)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]Entry)
	}

	// A manifest whose target directory vanished describes nothing real.
	if _, err := s.ops.Stat(m.TargetDir); err != nil && os.IsNotExist(err) {
		s.logger.Warn().Str("targetDir", m.TargetDir).
			Msg("Manifest target directory is gone, treating as empty")
		return New(methodID, modType, targetDir)
	}

	return &m
}

// Save persists a manifest atomically: the new content is written to a
// sibling temp file and renamed into place, so a crash mid-write can never
// leave a half-written manifest behind.
func (s *Store) Save(modType types.ModType, instanceID, targetDir string, m *Manifest, methodID string) error {
	m.Version = FormatVersion
	m.MethodID = methodID
	m.ModType = modType
	m.TargetDir = targetDir

	data, err := toml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errors.ErrManifestSave, "failed to encode manifest")
	}

	path := s.paths.ManifestPath(instanceID, string(modType))
	if err := s.ops.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrManifestSave, "failed to create manifest directory")
	}

	tmp := path + ".tmp"
	if err := s.ops.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrManifestSave, "failed to write manifest")
	}
	if err := s.ops.Rename(tmp, path); err != nil {
		_ = s.ops.Remove(tmp)
		return errors.Wrap(err, errors.ErrManifestSave, "failed to replace manifest")
	}

	s.logger.Debug().Str("path", path).Int("entries", len(m.Entries)).
		Msg("Manifest saved")
	return nil
}
