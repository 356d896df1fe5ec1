package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modlink/pkg/types"
)

// FallbackPurge is the safety valve for when the store cannot be trusted at
// all (e.g. the staging area vanished and manifests describe a world that
// no longer exists). It removes everything the filesystem itself shows as
// deployed into every known target directory, independent of manifest
// content: symlinks resolving into the staging area, and files that mirror
// a staged file byte-count for byte-count.
//
// This is deliberately coarser and slower than manifest-driven undeploy.
// Errors on individual entries are logged and skipped; the purge keeps
// going.
func (s *Store) FallbackPurge(ctx types.GameDeploymentContext) {
	ops := s.ops.WithoutDialog()

	for modType, targetDir := range ctx.Targets {
		logger := s.logger.With().
			Str("modType", string(modType)).
			Str("targetDir", targetDir).Logger()
		logger.Info().Msg("Fallback purge of target directory")

		s.purgeDir(ctx, targetDir, targetDir)

		// Forget whatever the manifest believed about this scope.
		path := s.paths.ManifestPath(ctx.InstanceID, string(modType))
		if err := ops.Remove(path); err != nil {
			logger.Warn().Err(err).Msg("Could not drop manifest during purge")
		}
	}
}

func (s *Store) purgeDir(ctx types.GameDeploymentContext, targetRoot, dir string) {
	ops := s.ops.WithoutDialog()

	entries, err := ops.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			s.purgeDir(ctx, targetRoot, full)
			// Drop directories emptied by the purge; occupied ones stay.
			_ = ops.Rmdir(full)
			continue
		}

		info, err := ops.Lstat(full)
		if err != nil {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := ops.Readlink(full)
			if err == nil && pathWithin(target, ctx.StagingDir) {
				if err := ops.Remove(full); err != nil {
					s.logger.Warn().Err(err).Str("path", full).Msg("Purge skip")
				}
			}
			continue
		}

		rel, err := filepath.Rel(targetRoot, full)
		if err != nil {
			continue
		}
		if s.matchesStagedFile(ctx, rel, info.Size()) {
			if err := ops.Remove(full); err != nil {
				s.logger.Warn().Err(err).Str("path", full).Msg("Purge skip")
			}
		}
	}
}

// matchesStagedFile reports whether any staged mod carries a file at the
// same relative path with the same size. Size equality is the cheapest
// identity proxy available without hashing every deployed file.
func (s *Store) matchesStagedFile(ctx types.GameDeploymentContext, rel string, size int64) bool {
	ops := s.ops.WithoutDialog()

	mods, err := ops.ReadDir(ctx.StagingDir)
	if err != nil {
		return false
	}
	for _, mod := range mods {
		if !mod.IsDir() {
			continue
		}
		staged := filepath.Join(ctx.StagingDir, mod.Name(), rel)
		if info, err := ops.Stat(staged); err == nil && info.Size() == size {
			return true
		}
	}
	return false
}

func pathWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
