// Package deploy defines the deployment method contract and the built-in
// strategies (hardlink, symlink, copy). A method realizes one technique for
// making staged mod files visible in a game-owned target directory; all
// strategies share the same four-phase protocol:
//
//	Prepare -> Activate/Deactivate (per mod) -> Finalize
//
// Prepare loads the prior activation manifest into a working handle and
// validates it against the real filesystem; Activate and Deactivate mutate
// the handle as they place or remove files; Finalize folds the handle back
// into a manifest ready for persistence.
package deploy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/manifest"
	"github.com/arthur-debert/modlink/pkg/types"
)

// NormalizeFunc canonicalizes a target-relative path so manifest keys
// compare consistently across case-sensitive and case-insensitive
// filesystems.
type NormalizeFunc func(string) string

// NewNormalizer returns the canonical normalizer: separators to forward
// slashes, dots collapsed, and case folded when the target filesystem is
// case-insensitive.
func NewNormalizer(caseSensitive bool) NormalizeFunc {
	return func(p string) string {
		p = filepath.ToSlash(filepath.Clean(p))
		if !caseSensitive {
			p = strings.ToLower(p)
		}
		return p
	}
}

// Orphan reports a deployed entry whose owning mod no longer exists in
// tracked state. Cleaned says whether Finalize managed to remove the
// artifact; uncleaned orphans stay in the manifest marked stale.
type Orphan struct {
	RelPath string
	ModID   string
	Cleaned bool
}

// Handle is a method's working state for one prepare→finalize cycle over a
// single (mod type, target directory) pair. Not safe for concurrent use;
// the orchestrator never runs two cycles on one directory at a time.
type Handle struct {
	targetDir    string
	modType      types.ModType
	undeployOnly bool
	normalize    NormalizeFunc

	// entries is the working copy of the manifest, keyed by normalized
	// relative path.
	entries map[string]manifest.Entry

	// physical maps normalized keys back to the on-disk relative path, so
	// case-folding never loses the spelling the filesystem wants.
	physical map[string]string
}

// TargetDir returns the directory this handle operates on.
func (h *Handle) TargetDir() string {
	return h.targetDir
}

func (h *Handle) physicalPath(key string) string {
	if p, ok := h.physical[key]; ok {
		return filepath.Join(h.targetDir, filepath.FromSlash(p))
	}
	return filepath.Join(h.targetDir, filepath.FromSlash(key))
}

// Method is a pluggable deployment strategy. Implementations are stateless
// across invocations; per-cycle state lives in the Handle.
type Method interface {
	// ID is the stable identifier recorded in manifests and configuration.
	ID() string

	// Name is the user-facing strategy name.
	Name() string

	// SupportedTypes lists the mod types this strategy can deploy.
	SupportedTypes() []types.ModType

	// Supports reports whether the strategy covers one mod type.
	Supports(t types.ModType) bool

	// Prepare opens a cycle against targetDir, seeded with the prior
	// manifest. With undeployOnly set, a missing target directory is not
	// created.
	Prepare(targetDir string, undeployOnly bool, prior *manifest.Manifest, normalize NormalizeFunc) (*Handle, error)

	// Activate installs one mod's files of the handle's type. Safe to call
	// again for an already-active mod: entries are relinked/overwritten,
	// never duplicated.
	Activate(h *Handle, stagingDir string, mod types.Mod) error

	// Deactivate removes exactly the entries this strategy created for the
	// mod. Files not recorded in the manifest are never touched, even
	// under the same name.
	Deactivate(h *Handle, stagingDir string, mod types.Mod) error

	// Finalize folds the handle into a manifest ready for persistence.
	// known answers whether a mod id still exists in tracked state;
	// entries owned by unknown mods are reported as orphans.
	Finalize(h *Handle, known func(modID string) bool) (*manifest.Manifest, []Orphan, error)
}

// Registry holds the available deployment methods in preference order.
type Registry struct {
	methods []Method
}

// NewRegistry creates a registry; order determines default selection.
func NewRegistry(methods ...Method) *Registry {
	return &Registry{methods: methods}
}

// Get returns the method with the given id.
func (r *Registry) Get(id string) (Method, bool) {
	for _, m := range r.methods {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

// List returns all registered methods in preference order.
func (r *Registry) List() []Method {
	return append([]Method(nil), r.methods...)
}

// Select picks the deployment method for a game: the configured id when it
// exists and covers every required mod type, otherwise the first registered
// method that does. Selection happens before any filesystem mutation, so an
// unusable configuration is rejected with nothing touched.
func (r *Registry) Select(configuredID string, required []types.ModType) (Method, error) {
	if configuredID != "" {
		if m, ok := r.Get(configuredID); ok && coversAll(m, required) {
			return m, nil
		}
	}
	for _, m := range r.methods {
		if coversAll(m, required) {
			return m, nil
		}
	}
	return nil, errors.Newf(errors.ErrActivatorUnsupported,
		"no deployment method supports mod types [%s]", joinTypes(required))
}

// Validate reports whether a specific method id is usable for the required
// types, distinguishing "unknown method" from "method cannot cover".
func (r *Registry) Validate(id string, required []types.ModType) error {
	m, ok := r.Get(id)
	if !ok {
		return errors.Newf(errors.ErrActivatorMissing, "deployment method %q is not available", id)
	}
	if !coversAll(m, required) {
		return errors.Newf(errors.ErrActivatorUnsupported,
			"deployment method %q does not support mod types [%s]", id, joinTypes(missingTypes(m, required)))
	}
	return nil
}

func coversAll(m Method, required []types.ModType) bool {
	return len(missingTypes(m, required)) == 0
}

func missingTypes(m Method, required []types.ModType) []types.ModType {
	var out []types.ModType
	for _, t := range required {
		if !m.Supports(t) {
			out = append(out, t)
		}
	}
	return out
}

func joinTypes(ts []types.ModType) string {
	strs := make([]string, len(ts))
	for i, t := range ts {
		strs[i] = string(t)
	}
	sort.Strings(strs)
	return strings.Join(strs, ", ")
}

// contentID identifies a staged source file by its staging-relative path
// and size.
func contentID(ops *filesystem.Ops, stagingDir string, f types.ManagedFile) string {
	rel, err := filepath.Rel(stagingDir, f.Source)
	if err != nil {
		rel = f.Source
	}
	size := int64(0)
	if info, statErr := ops.Stat(f.Source); statErr == nil {
		size = info.Size()
	}
	return fmt.Sprintf("%s:%d", filepath.ToSlash(rel), size)
}
