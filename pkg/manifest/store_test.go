// TEST TYPE: Activation Store Tests
// DEPENDENCIES: Real filesystem (manifest persistence is path-sensitive)
package manifest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/manifest"
	"github.com/arthur-debert/modlink/pkg/paths"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*manifest.Store, paths.Paths, string) {
	t.Helper()

	tempDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(tempDir, "state"))
	t.Setenv(paths.EnvDataDir, filepath.Join(tempDir, "data"))

	p, err := paths.New(filepath.Join(tempDir, "staging"))
	require.NoError(t, err)

	ops := filesystem.NewOps(filesystem.NewOS())
	return manifest.NewStore(ops, p), p, tempDir
}

func sampleManifest(targetDir string) *manifest.Manifest {
	m := manifest.New("hardlink", types.ModTypeDefault, targetDir)
	m.Entries["textures/rock.dds"] = manifest.Entry{
		ModID:    "better-rocks",
		MethodID: "hardlink",
		Content:  "better-rocks/textures/rock.dds:1024",
	}
	m.Entries["meshes/tree.nif"] = manifest.Entry{
		ModID:    "better-trees",
		MethodID: "hardlink",
		Content:  "better-trees/meshes/tree.nif:2048",
		Stale:    true,
	}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _, tempDir := setupStore(t)
	targetDir := filepath.Join(tempDir, "game", "data")
	require.NoError(t, os.MkdirAll(targetDir, 0755))

	in := sampleManifest(targetDir)
	require.NoError(t, store.Save(types.ModTypeDefault, "inst", targetDir, in, "hardlink"))

	out := store.Load("inst", types.ModTypeDefault, targetDir, "hardlink")
	assert.Equal(t, in.Entries, out.Entries)
	assert.Equal(t, "hardlink", out.MethodID)
	assert.Equal(t, targetDir, out.TargetDir)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	store, _, tempDir := setupStore(t)
	targetDir := filepath.Join(tempDir, "game", "data")

	m := store.Load("inst", types.ModTypeDefault, targetDir, "symlink")
	assert.True(t, m.IsEmpty())
	assert.Equal(t, "symlink", m.MethodID)
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	store, p, tempDir := setupStore(t)
	targetDir := filepath.Join(tempDir, "game", "data")

	path := p.ManifestPath("inst", string(types.ModTypeDefault))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("this is not toml {{{"), 0644))

	m := store.Load("inst", types.ModTypeDefault, targetDir, "hardlink")
	assert.True(t, m.IsEmpty())
}

func TestLoadVanishedTargetDirIsEmpty(t *testing.T) {
	store, _, tempDir := setupStore(t)
	targetDir := filepath.Join(tempDir, "game", "data")
	require.NoError(t, os.MkdirAll(targetDir, 0755))

	in := sampleManifest(targetDir)
	require.NoError(t, store.Save(types.ModTypeDefault, "inst", targetDir, in, "hardlink"))
	require.NoError(t, os.RemoveAll(targetDir))

	m := store.Load("inst", types.ModTypeDefault, targetDir, "hardlink")
	assert.True(t, m.IsEmpty())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, p, tempDir := setupStore(t)
	targetDir := filepath.Join(tempDir, "game", "data")
	require.NoError(t, os.MkdirAll(targetDir, 0755))

	require.NoError(t, store.Save(types.ModTypeDefault, "inst", targetDir,
		sampleManifest(targetDir), "hardlink"))

	entries, err := os.ReadDir(filepath.Dir(p.ManifestPath("inst", "default")))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"),
			"temp file left behind: %s", e.Name())
	}
}

func TestClone(t *testing.T) {
	m := sampleManifest("/target")
	c := m.Clone()
	c.Entries["new/file"] = manifest.Entry{ModID: "other"}

	assert.NotContains(t, m.Entries, "new/file")
	assert.Len(t, c.Entries, 3)
}

func TestEntriesOwnedBy(t *testing.T) {
	m := sampleManifest("/target")
	owned := m.EntriesOwnedBy("better-rocks")
	assert.Equal(t, []string{"textures/rock.dds"}, owned)
	assert.Empty(t, m.EntriesOwnedBy("unknown"))
}

func TestFallbackPurge(t *testing.T) {
	store, _, tempDir := setupStore(t)

	staging := filepath.Join(tempDir, "staging", "skyrim")
	targetDir := filepath.Join(tempDir, "game", "data")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "modA", "textures"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(targetDir, "textures"), 0755))

	staged := filepath.Join(staging, "modA", "textures", "rock.dds")
	require.NoError(t, os.WriteFile(staged, []byte("rockdata"), 0644))

	// Symlink deployed into target, pointing into staging.
	linked := filepath.Join(targetDir, "textures", "rock.dds")
	require.NoError(t, os.Symlink(staged, linked))

	// Copied deployment: same rel path + size as a staged file.
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "modB"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "modB", "patch.esp"), []byte("espdata"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "patch.esp"), []byte("espdata"), 0644))

	// Unmanaged file the purge must not touch.
	unmanaged := filepath.Join(targetDir, "Skyrim.esm")
	require.NoError(t, os.WriteFile(unmanaged, []byte("original game data"), 0644))

	ctx := types.GameDeploymentContext{
		GameID:     "skyrim",
		InstanceID: "inst",
		StagingDir: staging,
		Targets:    map[types.ModType]string{types.ModTypeDefault: targetDir},
	}
	store.FallbackPurge(ctx)

	assert.NoFileExists(t, linked)
	assert.NoFileExists(t, filepath.Join(targetDir, "patch.esp"))
	assert.FileExists(t, unmanaged)
	// Emptied subdirectory is pruned.
	assert.NoDirExists(t, filepath.Join(targetDir, "textures"))
}
