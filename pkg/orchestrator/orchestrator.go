// Package orchestrator drives deployment cycles for one game mode: staging
// validation, method selection and migration, the sequential
// prepare→activate/deactivate→finalize pipeline, reconciliation against
// filesystem drift, and mod removal sequencing.
//
// The orchestrator is the serialization point for everything that touches
// the activation store and the target directories: at most one cycle runs
// at a time per orchestrator, and within a cycle mod-type directories are
// processed strictly one after another.
package orchestrator

import (
	"os"
	"sort"
	"sync"

	"github.com/arthur-debert/modlink/pkg/deploy"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/arthur-debert/modlink/pkg/manifest"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/rs/zerolog"
)

// Phase is the orchestrator's position in its cycle state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseValidating  Phase = "validating"
	PhaseMigrating   Phase = "migrating"
	PhaseDeploying   Phase = "deploying"
	PhaseUndeploying Phase = "undeploying"
	PhaseFinalizing  Phase = "finalizing"
)

// Staging-recovery dialog options.
const (
	OptionQuit         = "Quit"
	OptionReinitialize = "Reinitialize"
)

const (
	choiceQuit         = 0
	choiceReinitialize = 1
)

// activityPurge identifies the long-running purge notification.
const activityPurge = "purge-deployment"

// Orchestrator coordinates deployment for one game mode.
type Orchestrator struct {
	state    types.StateAccess
	ops      *filesystem.Ops
	store    *manifest.Store
	registry *deploy.Registry
	dialog   types.Dialog
	notifier types.Notifier

	// caseSensitive describes the target filesystems; it feeds the
	// manifest key normalizer.
	caseSensitive bool

	// cycleMu makes this orchestrator the serialization point for its
	// game mode: one in-flight cycle at a time.
	cycleMu sync.Mutex

	mu     sync.Mutex
	phase  Phase
	logger zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCaseInsensitiveTargets folds manifest keys, for games installed on
// case-insensitive filesystems.
func WithCaseInsensitiveTargets() Option {
	return func(o *Orchestrator) { o.caseSensitive = false }
}

// New creates an orchestrator. All collaborators are required.
func New(state types.StateAccess, ops *filesystem.Ops, store *manifest.Store,
	registry *deploy.Registry, dialog types.Dialog, notifier types.Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:         state,
		ops:           ops,
		store:         store,
		registry:      registry,
		dialog:        dialog,
		notifier:      notifier,
		caseSensitive: true,
		phase:         PhaseIdle,
		logger:        logging.GetLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Deploy runs a full deployment cycle: every installed mod's files become
// visible in the game's target directories via the selected method.
func (o *Orchestrator) Deploy(ctx types.GameDeploymentContext) error {
	return o.runLocked(ctx, "Deployment failed", false)
}

// Undeploy reverses deployment for every tracked mod.
func (o *Orchestrator) Undeploy(ctx types.GameDeploymentContext) error {
	return o.runLocked(ctx, "Undeployment failed", true)
}

func (o *Orchestrator) runLocked(ctx types.GameDeploymentContext, title string, undeploy bool) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	defer o.setPhase(PhaseIdle)

	done := logging.LogOperationStart(o.logger, "cycle")
	defer done()

	if err := o.validateStaging(ctx); err != nil {
		return o.surface(title, err)
	}

	snap := o.state.Snapshot(ctx.GameID)
	method, err := o.selectMethod(ctx, snap)
	if err != nil {
		return o.surface(title, err)
	}

	if undeploy {
		o.setPhase(PhaseUndeploying)
	} else {
		o.setPhase(PhaseDeploying)
	}
	if err := o.runCycle(ctx, method, snap, undeploy); err != nil {
		return o.surface(title, err)
	}
	return nil
}

// validateStaging confirms the staging directory exists and is accessible.
// If it is missing the user chooses between quitting and reinitializing;
// reinitialization purges whatever is still deployed (the manifests cannot
// be trusted once their sources are gone) and recreates the directory.
func (o *Orchestrator) validateStaging(ctx types.GameDeploymentContext) error {
	o.setPhase(PhaseValidating)

	if _, err := o.ops.Stat(ctx.StagingDir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	choice, err := o.dialog.Ask(types.DialogRequest{
		Title: "Staging folder missing",
		Message: "The mod staging folder " + ctx.StagingDir + " no longer exists. " +
			"Quit to investigate, or reinitialize: deployed files will be purged and the folder recreated.",
		Options: []string{OptionQuit, OptionReinitialize},
	})
	if err != nil {
		return err
	}
	if choice == choiceQuit {
		return errors.New(errors.ErrUserCanceled, "user chose to quit instead of reinitializing staging")
	}

	o.notifier.StartActivity(activityPurge, "Purging deployed files")
	o.store.FallbackPurge(ctx)
	o.notifier.StopActivity(activityPurge)

	return o.ops.MkdirAll(ctx.StagingDir, 0755)
}

// selectMethod resolves the deployment method for this cycle, migrating
// away from a configured method that is no longer valid for the game.
func (o *Orchestrator) selectMethod(ctx types.GameDeploymentContext, snap types.StateSnapshot) (deploy.Method, error) {
	required := ctx.RequiredTypes()

	configured := ctx.ActivatorID
	if configured == "" {
		configured = snap.ActivatorID
	}

	if configured != "" && o.registry.Validate(configured, required) != nil {
		o.migrateFrom(ctx, snap, configured)
		configured = ""
	}

	method, err := o.registry.Select(configured, required)
	if err != nil {
		return nil, err
	}
	if method.ID() != snap.ActivatorID {
		o.state.Dispatch(ctx.GameID, types.SetActivator{MethodID: method.ID()})
	}
	return method, nil
}

// migrateFrom purges deployments made by a previously configured method
// that can no longer serve this game. If that method's implementation is
// gone entirely there is nothing to purge with: the old deployment is
// unreachable and the user gets a warning instead of cleanup.
func (o *Orchestrator) migrateFrom(ctx types.GameDeploymentContext, snap types.StateSnapshot, oldID string) {
	old, ok := o.registry.Get(oldID)
	if !ok {
		o.logger.Warn().Str("method", oldID).Msg("Previous deployment method unavailable, skipping purge")
		o.notifier.Error("Deployment method changed",
			errors.Newf(errors.ErrTemporary,
				"the previously used deployment method %q is no longer available; files it deployed were not cleaned up", oldID),
			false)
		return
	}

	o.setPhase(PhaseMigrating)
	o.logger.Info().Str("from", oldID).Msg("Migrating away from invalid deployment method")

	normalize := deploy.NewNormalizer(o.caseSensitive)
	for _, modType := range ctx.RequiredTypes() {
		targetDir := ctx.Targets[modType]
		prior := o.store.Load(ctx.InstanceID, modType, targetDir, oldID)
		if prior.IsEmpty() {
			continue
		}
		h, err := old.Prepare(targetDir, true, prior, normalize)
		if err != nil {
			o.logger.Warn().Err(err).Str("targetDir", targetDir).Msg("Migration prepare failed")
			continue
		}
		for _, mod := range sortedMods(snap.Mods) {
			if err := old.Deactivate(h, ctx.StagingDir, mod); err != nil {
				o.logger.Warn().Err(err).Str("mod", mod.ID).Msg("Migration deactivate failed")
			}
		}
		m, _, err := old.Finalize(h, knownFunc(snap))
		if err != nil {
			o.logger.Warn().Err(err).Msg("Migration finalize failed")
			continue
		}
		if err := o.store.Save(modType, ctx.InstanceID, targetDir, m, oldID); err != nil {
			o.logger.Warn().Err(err).Msg("Migration manifest save failed")
		}
	}
}

// runCycle processes each mod-type directory strictly sequentially; two
// concurrent strategies acting on one directory would race on manifest
// state.
func (o *Orchestrator) runCycle(ctx types.GameDeploymentContext, method deploy.Method,
	snap types.StateSnapshot, undeploy bool) error {

	normalize := deploy.NewNormalizer(o.caseSensitive)

	for _, modType := range ctx.RequiredTypes() {
		targetDir := ctx.Targets[modType]
		logger := o.logger.With().
			Str("modType", string(modType)).
			Str("targetDir", targetDir).
			Str("method", method.ID()).Logger()

		prior := o.store.Load(ctx.InstanceID, modType, targetDir, method.ID())
		h, err := method.Prepare(targetDir, undeploy, prior, normalize)
		if err != nil {
			return err
		}

		for _, mod := range sortedMods(snap.Mods) {
			if undeploy {
				if err := method.Deactivate(h, ctx.StagingDir, mod); err != nil {
					return err
				}
				continue
			}
			if mod.State != types.StateInstalled {
				continue
			}
			if err := method.Activate(h, ctx.StagingDir, mod); err != nil {
				return err
			}
		}

		o.setPhase(PhaseFinalizing)
		m, orphans, err := method.Finalize(h, knownFunc(snap))
		if err != nil {
			return err
		}
		for _, orphan := range orphans {
			logger.Warn().
				Str("path", orphan.RelPath).
				Str("mod", orphan.ModID).
				Bool("cleaned", orphan.Cleaned).
				Msg("Orphaned deployment entry")
		}
		if err := o.store.Save(modType, ctx.InstanceID, targetDir, m, method.ID()); err != nil {
			return err
		}
		logger.Info().Int("entries", len(m.Entries)).Msg("Directory cycle complete")
	}
	return nil
}

// surface classifies an error per the reporting policy and returns it. The
// notifier tiering: cancellations are quiet, transient and not-applicable
// conditions are user-actionable, anything else is bug-report-worthy.
func (o *Orchestrator) surface(title string, err error) error {
	switch {
	case errors.IsUserCanceled(err):
		o.logger.Info().Msg("Operation canceled by user")
	case errors.IsTemporary(err), errors.IsProcessCanceled(err):
		o.notifier.Error(title, err, false)
	default:
		if trace := errors.GetTrace(err); trace != nil {
			o.logger.Error().Err(err).Str("trace", trace.String()).Msg(title)
		}
		o.notifier.Error(title, err, true)
	}
	return err
}

func knownFunc(snap types.StateSnapshot) func(string) bool {
	return func(modID string) bool {
		_, ok := snap.Mods[modID]
		return ok
	}
}

func sortedMods(mods map[string]types.Mod) []types.Mod {
	out := make([]types.Mod, 0, len(mods))
	for _, m := range mods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
