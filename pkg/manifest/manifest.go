// Package manifest implements the activation store: the persisted record of
// what modlink currently has deployed, one manifest per (instance, mod type)
// scope. The manifest is the sole source of truth for "what is deployed
// now"; deployment methods mutate it only through their prepare/finalize
// cycle and the store persists it atomically.
package manifest

import (
	"github.com/arthur-debert/modlink/pkg/types"
)

// FormatVersion is bumped when the on-disk layout changes shape.
const FormatVersion = 1

// Entry records one deployed file, keyed in the manifest by its normalized
// target-relative path.
type Entry struct {
	// ModID is the owning mod.
	ModID string `toml:"mod_id"`

	// MethodID is the deployment method that produced this entry.
	MethodID string `toml:"method"`

	// Content identifies the staged source (staging-relative path plus
	// size) so drift against the source can be detected.
	Content string `toml:"content"`

	// Stale marks an entry whose cleanup failed. Stale entries are kept
	// visible rather than silently dropped; the next cycle retries them.
	Stale bool `toml:"stale,omitempty"`
}

// Manifest maps normalized target-relative paths to deployment records for
// one (mod type, target directory) pair.
type Manifest struct {
	Version   int              `toml:"version"`
	MethodID  string           `toml:"method"`
	ModType   types.ModType    `toml:"mod_type"`
	TargetDir string           `toml:"target_dir"`
	Entries   map[string]Entry `toml:"entries"`
}

// New creates an empty manifest for a scope.
func New(methodID string, modType types.ModType, targetDir string) *Manifest {
	return &Manifest{
		Version:   FormatVersion,
		MethodID:  methodID,
		ModType:   modType,
		TargetDir: targetDir,
		Entries:   make(map[string]Entry),
	}
}

// IsEmpty reports whether the manifest tracks nothing.
func (m *Manifest) IsEmpty() bool {
	return m == nil || len(m.Entries) == 0
}

// Clone returns a deep copy; methods work on copies so a failed cycle never
// corrupts the loaded manifest.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Entries = make(map[string]Entry, len(m.Entries))
	for k, v := range m.Entries {
		c.Entries[k] = v
	}
	return &c
}

// EntriesOwnedBy returns the keys of entries owned by a mod.
func (m *Manifest) EntriesOwnedBy(modID string) []string {
	var out []string
	for k, e := range m.Entries {
		if e.ModID == modID {
			out = append(out, k)
		}
	}
	return out
}
