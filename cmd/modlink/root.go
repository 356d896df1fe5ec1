package main

import (
	"fmt"

	"github.com/arthur-debert/modlink/internal/version"
	"github.com/arthur-debert/modlink/pkg/elevate"
	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	verbosity   int
	stagingRoot string
	configFile  string
	gameID      string
	instanceID  string
	targetSpecs []string

	rootCmd = &cobra.Command{
		Use:   "modlink",
		Short: "Deploy managed game mods into game directories",
		Long: `modlink keeps mod files in a private staging area and makes them visible
to the game via hardlinks, symlinks or copies, so mods can be enabled and
disabled without ever losing the originals.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&stagingRoot, "staging-root", "", "Staging area root (default $MODLINK_STAGING_ROOT or the data dir)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $XDG_CONFIG_HOME/modlink/modlink.toml)")
	rootCmd.PersistentFlags().StringVarP(&gameID, "game", "g", "", "Game id the command operates on")
	rootCmd.PersistentFlags().StringVar(&instanceID, "instance", "", "Game instance id (default <game>-default)")
	rootCmd.PersistentFlags().StringArrayVarP(&targetSpecs, "target", "t", nil, "Target directory as type=dir (repeatable); bare dir means type \"default\"")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(undeployCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(genconfigCmd)
	rootCmd.AddCommand(helperCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modlink version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

// helperCmd is the privileged side of out-of-process elevation. pkexec or
// sudo re-executes the modlink binary with this subcommand; it must never
// show up in help output.
var helperCmd = &cobra.Command{
	Use:    elevate.HelperArg + " <channel>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return elevate.RunHelper(args[0])
	},
}
