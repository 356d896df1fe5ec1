package types

// ModType tags a managed file with the kind of content it carries. Each game
// maps mod types to target directories; a deployment method must support
// every mod type the game requires.
type ModType string

const (
	// ModTypeDefault is the catch-all type for regular game mods.
	ModTypeDefault ModType = "default"

	// ModTypeEnginePlugin is for loader/engine plugins that live outside the
	// regular data directory.
	ModTypeEnginePlugin ModType = "engine-plugin"

	// ModTypeSave is for save-game content.
	ModTypeSave ModType = "save"
)

// ModState is the lifecycle state of a mod.
type ModState string

const (
	// StateDownloading means the archive transfer has started but not
	// finished; nothing is materialized in the staging area yet.
	StateDownloading ModState = "downloading"

	// StateDownloaded means the archive is complete but not installed.
	StateDownloaded ModState = "downloaded"

	// StateInstalled means the mod's files are present in the staging area
	// and eligible for deployment.
	StateInstalled ModState = "installed"
)

// ManagedFile identifies one unit of content owned by a mod. Values are
// immutable once created; reinstalling a mod replaces its file set wholesale.
type ManagedFile struct {
	// Source is the absolute path of the file inside the staging area.
	Source string

	// ModID is the owning mod.
	ModID string

	// Type selects which target directory the file deploys into.
	Type ModType

	// RelPath is the path of the file relative to the target directory.
	RelPath string
}

// Mod is a named, versioned unit of content. Created on install; its State
// is mutated by the orchestrator and the store client; removed from state
// only after a successful undeploy.
type Mod struct {
	ID          string
	Name        string
	Version     string
	Type        ModType
	InstallPath string
	State       ModState
	Files       []ManagedFile

	// Attributes carries rule/override metadata opaque to the deployment
	// engine.
	Attributes map[string]string
}

// FilesOfType returns the mod's managed files that deploy as the given type.
func (m Mod) FilesOfType(t ModType) []ManagedFile {
	var out []ManagedFile
	for _, f := range m.Files {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// GameDeploymentContext binds one game mode to its deployment configuration.
// It is a read-only snapshot taken per operation; operations that need a
// different activator produce a new context rather than mutating one.
type GameDeploymentContext struct {
	// GameID identifies the game mode.
	GameID string

	// InstanceID distinguishes parallel profiles/instances of one game.
	InstanceID string

	// InstallPath is the discovered game installation directory.
	InstallPath string

	// StagingDir is the private area holding installed mod content.
	StagingDir string

	// ActivatorID is the configured deployment method id; empty means
	// "pick a default".
	ActivatorID string

	// Targets maps each mod type used by this game to the directory mods of
	// that type deploy into.
	Targets map[ModType]string
}

// WithActivator returns a copy of the context bound to a different
// deployment method.
func (c GameDeploymentContext) WithActivator(id string) GameDeploymentContext {
	c.ActivatorID = id
	return c
}

// RequiredTypes lists the mod types this game needs a deployment method to
// support, in deterministic order.
func (c GameDeploymentContext) RequiredTypes() []ModType {
	out := make([]ModType, 0, len(c.Targets))
	for t := range c.Targets {
		out = append(out, t)
	}
	sortModTypes(out)
	return out
}

func sortModTypes(ts []ModType) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j] < ts[j-1]; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
