package orchestrator

import (
	"github.com/arthur-debert/modlink/pkg/deploy"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/types"
)

// RemoveMod removes one mod: undeploy its files if currently deployed,
// delete its staging directory, then drop it from tracked state — strictly
// in that order. Any failure leaves the mod tracked and visible; a stale
// entry the user can see beats a half-removed mod the system forgot.
func (o *Orchestrator) RemoveMod(ctx types.GameDeploymentContext, modID string) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	defer o.setPhase(PhaseIdle)

	snap := o.state.Snapshot(ctx.GameID)
	mod, ok := snap.Mods[modID]
	if !ok {
		return o.surface("Mod removal failed",
			errors.Newf(errors.ErrProcessCanceled, "mod %q is not tracked", modID))
	}
	if mod.State == types.StateDownloading {
		return o.surface("Mod removal failed",
			errors.Newf(errors.ErrProcessCanceled, "mod %q is still downloading", modID))
	}

	if mod.State == types.StateInstalled {
		if err := o.undeploySingle(ctx, snap, mod); err != nil {
			return o.surface("Mod removal failed", err)
		}
	}

	// Staging directory may already be partially or fully gone; that is
	// fine.
	if err := o.ops.RemoveAll(mod.InstallPath); err != nil {
		return o.surface("Mod removal failed", err)
	}

	o.state.Dispatch(ctx.GameID, types.RemoveMod{ModID: modID})
	o.logger.Info().Str("mod", modID).Msg("Mod removed")
	return nil
}

// undeploySingle runs the full deactivate path for one mod across every
// mod-type directory that has entries for it.
func (o *Orchestrator) undeploySingle(ctx types.GameDeploymentContext, snap types.StateSnapshot, mod types.Mod) error {
	method, err := o.selectMethod(ctx, snap)
	if err != nil {
		return errors.Wrap(err, errors.ErrProcessCanceled, "no active deployment method")
	}

	o.setPhase(PhaseUndeploying)
	normalize := deploy.NewNormalizer(o.caseSensitive)

	for _, modType := range ctx.RequiredTypes() {
		targetDir := ctx.Targets[modType]
		prior := o.store.Load(ctx.InstanceID, modType, targetDir, method.ID())
		if len(prior.EntriesOwnedBy(mod.ID)) == 0 {
			continue
		}

		h, err := method.Prepare(targetDir, true, prior, normalize)
		if err != nil {
			return err
		}
		if err := method.Deactivate(h, ctx.StagingDir, mod); err != nil {
			return err
		}

		o.setPhase(PhaseFinalizing)
		m, _, err := method.Finalize(h, knownFunc(snap))
		if err != nil {
			return err
		}
		if err := o.store.Save(modType, ctx.InstanceID, targetDir, m, method.ID()); err != nil {
			return err
		}
	}
	return nil
}
