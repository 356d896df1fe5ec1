package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modlink/pkg/config"
	"github.com/arthur-debert/modlink/pkg/deploy"
	"github.com/arthur-debert/modlink/pkg/elevate"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/manifest"
	"github.com/arthur-debert/modlink/pkg/orchestrator"
	"github.com/arthur-debert/modlink/pkg/paths"
	"github.com/arthur-debert/modlink/pkg/state"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/spf13/cobra"
)

// app wires the full stack for one CLI invocation.
type app struct {
	cfg      *config.Config
	paths    paths.Paths
	ops      *filesystem.Ops
	store    *manifest.Store
	state    *state.Memory
	orch     *orchestrator.Orchestrator
	notifier consoleNotifier
	ctx      types.GameDeploymentContext
}

func newApp() (*app, error) {
	if gameID == "" {
		return nil, errors.New(errors.ErrProcessCanceled, "a game id is required (--game)")
	}

	p, err := paths.New(stagingRoot)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load(p)
	}
	if err != nil {
		return nil, err
	}

	targets, err := parseTargets(targetSpecs)
	if err != nil {
		return nil, err
	}

	notifier := consoleNotifier{}
	opts := []filesystem.Option{
		filesystem.WithDialog(newConsoleDialog()),
		filesystem.WithElevator(elevate.NewLocal(p.RuntimeDir())),
		filesystem.WithRetry(cfg.Retry.Attempts, cfg.Retry.Delay()),
	}
	if !cfg.Copy.IdentityCheck {
		opts = append(opts, filesystem.WithoutIdentityCheck())
	}
	ops := filesystem.NewOps(filesystem.NewOS(), opts...)

	store := manifest.NewStore(ops, p)
	registry := deploy.NewRegistry(
		deploy.NewHardlink(ops),
		deploy.NewSymlink(ops),
		deploy.NewCopy(ops),
	)
	st := state.NewMemory()

	var orchOpts []orchestrator.Option
	if !cfg.Deployment.CaseSensitive {
		orchOpts = append(orchOpts, orchestrator.WithCaseInsensitiveTargets())
	}
	orch := orchestrator.New(st, ops, store, registry, newConsoleDialog(), notifier, orchOpts...)

	instance := instanceID
	if instance == "" {
		instance = gameID + "-default"
	}

	return &app{
		cfg:      cfg,
		paths:    p,
		ops:      ops,
		store:    store,
		state:    st,
		orch:     orch,
		notifier: notifier,
		ctx: types.GameDeploymentContext{
			GameID:      gameID,
			InstanceID:  instance,
			StagingDir:  p.StagingDir(gameID),
			ActivatorID: cfg.Deployment.Method,
			Targets:     targets,
		},
	}, nil
}

// parseTargets turns repeated --target flags into the mod-type map. A
// bare directory is shorthand for default=dir.
func parseTargets(specs []string) (map[types.ModType]string, error) {
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrProcessCanceled, "at least one target directory is required (--target)")
	}
	targets := make(map[types.ModType]string, len(specs))
	for _, spec := range specs {
		modType := types.ModTypeDefault
		dir := spec
		if idx := strings.IndexByte(spec, '='); idx >= 0 {
			modType = types.ModType(spec[:idx])
			dir = spec[idx+1:]
		}
		if dir == "" {
			return nil, errors.Newf(errors.ErrProcessCanceled, "target %q has no directory", spec)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrIO, "cannot resolve target directory %q", dir)
		}
		if _, dup := targets[modType]; dup {
			return nil, errors.Newf(errors.ErrProcessCanceled, "duplicate target for mod type %q", modType)
		}
		targets[modType] = abs
	}
	return targets, nil
}

// scanStaging seeds tracked state from what is physically installed: each
// directory under the game's staging area is one installed mod, and every
// file inside it is a managed file.
func (a *app) scanStaging() error {
	entries, err := a.ops.ReadDir(a.ctx.StagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mod := types.Mod{
			ID:          entry.Name(),
			Name:        entry.Name(),
			Type:        types.ModTypeDefault,
			State:       types.StateInstalled,
			InstallPath: filepath.Join(a.ctx.StagingDir, entry.Name()),
		}
		err := filepath.WalkDir(mod.InstallPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(mod.InstallPath, path)
			if err != nil {
				return err
			}
			mod.Files = append(mod.Files, types.ManagedFile{
				Source:  path,
				ModID:   mod.ID,
				Type:    types.ModTypeDefault,
				RelPath: filepath.ToSlash(rel),
			})
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, errors.ErrIO, "cannot scan mod %q", mod.ID)
		}
		a.state.Dispatch(a.ctx.GameID, types.AddMod{Mod: mod})
	}
	return nil
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy all installed mods into the game's target directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.scanStaging(); err != nil {
			return err
		}
		if err := a.orch.Deploy(a.ctx); err != nil {
			return err
		}
		fmt.Println("deployment complete")
		return nil
	},
}

var undeployCmd = &cobra.Command{
	Use:   "undeploy",
	Short: "Remove all deployed mod files from the game's target directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.scanStaging(); err != nil {
			return err
		}
		if err := a.orch.Undeploy(a.ctx); err != nil {
			return err
		}
		fmt.Println("undeployment complete")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reconcile the mod list against the staging area on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.scanStaging(); err != nil {
			return err
		}
		return a.orch.Refresh(a.ctx)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <mod-id>",
	Short: "Undeploy a mod and delete it from the staging area",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.scanStaging(); err != nil {
			return err
		}
		if err := a.orch.RemoveMod(a.ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

// purgeCmd is the manual escape hatch: clean target directories from what
// the filesystem shows as deployed, ignoring manifests entirely.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Force-remove deployed files without trusting the manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		a.notifier.StartActivity("purge-deployment", "Purging deployed files")
		a.store.FallbackPurge(a.ctx)
		a.notifier.StopActivity("purge-deployment")
		fmt.Println("purge complete")
		return nil
	},
}

var genconfigCmd = &cobra.Command{
	Use:   "genconfig",
	Short: "Print the default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.DefaultConfigContent())
	},
}
