package deploy

import (
	"os"
	"path/filepath"

	stderrors "errors"

	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/arthur-debert/modlink/pkg/manifest"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/rs/zerolog"
)

// Built-in method ids.
const (
	MethodHardlink = "hardlink"
	MethodSymlink  = "symlink"
	MethodCopy     = "copy"
)

// AllModTypes is the default coverage of the built-in strategies.
var AllModTypes = []types.ModType{
	types.ModTypeDefault,
	types.ModTypeEnginePlugin,
	types.ModTypeSave,
}

// technique is the single point where strategies differ: how one staged
// file is realized at its target path.
type technique interface {
	place(ops *filesystem.Ops, src, dst string) error
}

type hardlinkTechnique struct{}

func (hardlinkTechnique) place(ops *filesystem.Ops, src, dst string) error {
	return ops.Link(src, dst)
}

type symlinkTechnique struct{}

func (symlinkTechnique) place(ops *filesystem.Ops, src, dst string) error {
	return ops.Symlink(src, dst)
}

type copyTechnique struct{}

func (copyTechnique) place(ops *filesystem.Ops, src, dst string) error {
	// Identity collisions cannot happen here: src lives in the staging
	// area, dst in the target directory, and activation removed any prior
	// dst. Skip the guard for throughput on large mods.
	return ops.CopyUnchecked(src, dst)
}

// method implements Method generically over a technique.
type method struct {
	id        string
	name      string
	supported []types.ModType
	ops       *filesystem.Ops
	tech      technique
	logger    zerolog.Logger
}

// NewHardlink creates the hardlink strategy. With no explicit types it
// covers AllModTypes.
func NewHardlink(ops *filesystem.Ops, supported ...types.ModType) Method {
	return newMethod(MethodHardlink, "Hardlink Deployment", ops, hardlinkTechnique{}, supported)
}

// NewSymlink creates the symlink strategy.
func NewSymlink(ops *filesystem.Ops, supported ...types.ModType) Method {
	return newMethod(MethodSymlink, "Symlink Deployment", ops, symlinkTechnique{}, supported)
}

// NewCopy creates the copy strategy.
func NewCopy(ops *filesystem.Ops, supported ...types.ModType) Method {
	return newMethod(MethodCopy, "Copy Deployment", ops, copyTechnique{}, supported)
}

func newMethod(id, name string, ops *filesystem.Ops, tech technique, supported []types.ModType) Method {
	if len(supported) == 0 {
		supported = AllModTypes
	}
	return &method{
		id:        id,
		name:      name,
		supported: supported,
		ops:       ops,
		tech:      tech,
		logger:    logging.GetLogger("deploy." + id),
	}
}

func (m *method) ID() string   { return m.id }
func (m *method) Name() string { return m.name }

func (m *method) SupportedTypes() []types.ModType {
	return append([]types.ModType(nil), m.supported...)
}

func (m *method) Supports(t types.ModType) bool {
	for _, s := range m.supported {
		if s == t {
			return true
		}
	}
	return false
}

func (m *method) Prepare(targetDir string, undeployOnly bool, prior *manifest.Manifest, normalize NormalizeFunc) (*Handle, error) {
	if normalize == nil {
		normalize = NewNormalizer(true)
	}

	if !undeployOnly {
		if err := m.ops.EnsureDirWritable(targetDir); err != nil {
			return nil, err
		}
	}

	h := &Handle{
		targetDir:    targetDir,
		modType:      prior.ModType,
		undeployOnly: undeployOnly,
		normalize:    normalize,
		entries:      make(map[string]manifest.Entry, len(prior.Entries)),
		physical:     make(map[string]string, len(prior.Entries)),
	}

	// Re-key prior entries through the normalizer and validate each
	// against the real filesystem. An entry with no live artifact is
	// marked stale; finalize decides its fate after a cleanup attempt.
	for rel, entry := range prior.Entries {
		key := normalize(rel)
		h.physical[key] = rel
		if _, err := m.ops.Lstat(filepath.Join(targetDir, filepath.FromSlash(rel))); err != nil {
			if os.IsNotExist(err) {
				entry.Stale = true
			} else {
				return nil, err
			}
		}
		h.entries[key] = entry
	}

	m.logger.Debug().
		Str("targetDir", targetDir).
		Int("priorEntries", len(h.entries)).
		Bool("undeployOnly", undeployOnly).
		Msg("Cycle prepared")
	return h, nil
}

func (m *method) Activate(h *Handle, stagingDir string, mod types.Mod) error {
	files := mod.FilesOfType(h.modType)
	logger := m.logger.With().Str("mod", mod.ID).Int("files", len(files)).Logger()

	for _, f := range files {
		key := h.normalize(f.RelPath)
		dst := filepath.Join(h.targetDir, filepath.FromSlash(f.RelPath))

		if err := m.ops.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		// Re-activation relinks rather than erroring; a leftover entry of
		// any origin gives way to the incoming file.
		if _, err := m.ops.Lstat(dst); err == nil {
			if err := m.ops.Remove(dst); err != nil {
				return err
			}
		}
		if err := m.tech.place(m.ops, f.Source, dst); err != nil {
			return err
		}

		h.entries[key] = manifest.Entry{
			ModID:    mod.ID,
			MethodID: m.id,
			Content:  contentID(m.ops, stagingDir, f),
		}
		h.physical[key] = f.RelPath
	}

	logger.Debug().Msg("Mod activated")
	return nil
}

func (m *method) Deactivate(h *Handle, stagingDir string, mod types.Mod) error {
	var errs []error

	for _, key := range ownedKeys(h, mod.ID) {
		dst := h.physicalPath(key)
		if err := m.ops.Remove(dst); err != nil {
			// Failed cleanup: keep the entry, marked stale, so the next
			// cycle retries. Losing track of a deployed file is worse
			// than a stale record.
			entry := h.entries[key]
			entry.Stale = true
			h.entries[key] = entry
			errs = append(errs, err)
			continue
		}
		delete(h.entries, key)
		pruneEmptyParents(m.ops, h.targetDir, dst)
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	m.logger.Debug().Str("mod", mod.ID).Msg("Mod deactivated")
	return nil
}

func (m *method) Finalize(h *Handle, known func(modID string) bool) (*manifest.Manifest, []Orphan, error) {
	out := manifest.New(m.id, h.modType, h.targetDir)
	var orphans []Orphan

	for key, entry := range h.entries {
		path := h.physicalPath(key)
		_, lerr := m.ops.Lstat(path)
		present := lerr == nil

		if known == nil || known(entry.ModID) {
			if present {
				entry.Stale = false
				out.Entries[key] = entry
				continue
			}
			// The artifact vanished underneath us (manual deletion, prior
			// failure). Nothing to clean; drop the entry.
			m.logger.Debug().Str("path", path).Str("mod", entry.ModID).
				Msg("Entry has no artifact, dropping")
			continue
		}

		// Owning mod is gone from state: orphaned entry.
		orphan := Orphan{RelPath: key, ModID: entry.ModID}
		if present {
			if err := m.ops.Remove(path); err != nil {
				m.logger.Warn().Err(err).Str("path", path).
					Msg("Orphan cleanup failed, keeping stale entry")
				entry.Stale = true
				out.Entries[key] = entry
				orphans = append(orphans, orphan)
				continue
			}
			pruneEmptyParents(m.ops, h.targetDir, path)
		}
		orphan.Cleaned = true
		orphans = append(orphans, orphan)
	}

	return out, orphans, nil
}

func ownedKeys(h *Handle, modID string) []string {
	var out []string
	for key, entry := range h.entries {
		if entry.ModID == modID {
			out = append(out, key)
		}
	}
	return out
}

// pruneEmptyParents removes directories emptied by a deactivation, walking
// up to (but never including) the target root.
func pruneEmptyParents(ops *filesystem.Ops, root, removed string) {
	dir := filepath.Dir(removed)
	for dir != root && len(dir) > len(root) {
		entries, err := ops.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := ops.Rmdir(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
