package orchestrator

import (
	"os"
	"sort"

	"github.com/arthur-debert/modlink/pkg/types"
)

// Refresh reconciles tracked mods against what is physically present in
// the staging directory. Mods on disk but unknown are reported as
// discovered; mods we track that should be materialized (downloaded or
// installed) but are gone from disk are dropped from state. A mod still
// downloading was never materialized, so its absence means nothing.
//
// This is how externally deleted mods leave the system without an explicit
// removal action.
func (o *Orchestrator) Refresh(ctx types.GameDeploymentContext) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	snap := o.state.Snapshot(ctx.GameID)

	onDisk := make(map[string]bool)
	entries, err := o.ops.ReadDir(ctx.StagingDir)
	if err != nil && !os.IsNotExist(err) {
		return o.surface("Mod refresh failed", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			onDisk[entry.Name()] = true
		}
	}

	var discovered []string
	for name := range onDisk {
		if _, known := snap.Mods[name]; !known {
			discovered = append(discovered, name)
		}
	}

	var removed []string
	for id, mod := range snap.Mods {
		if onDisk[id] {
			continue
		}
		if mod.State == types.StateDownloaded || mod.State == types.StateInstalled {
			removed = append(removed, id)
		}
	}

	sort.Strings(discovered)
	sort.Strings(removed)

	for _, id := range removed {
		o.logger.Info().Str("mod", id).Msg("Mod vanished from staging, dropping from state")
		o.state.Dispatch(ctx.GameID, types.RemoveMod{ModID: id})
	}

	o.notifier.ModsRefreshed(ctx.GameID, discovered, removed)
	return nil
}
