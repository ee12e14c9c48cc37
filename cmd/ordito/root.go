package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	local      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "ordito",
		Short: "Run and schedule named groups of shell commands",
		Long: `ordito keeps named groups of shell commands, runs a whole group or a
single command on demand, and fires them from six-field cron schedules.

'ordito serve' hosts the groups, the schedules and the cron engine. Every
other command talks to that server over its WebSocket gateway, or works on
the local database directly with --local.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./ordito.yaml, then ~/.ordito/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.local, "local", false, "work on the local database instead of a running server")

	root.AddCommand(
		newServeCmd(opts),
		newGroupsCmd(opts),
		newGroupCmd(opts),
		newCommandCmd(opts),
		newSearchCmd(opts),
		newRunCmd(opts),
		newScheduleCmd(opts),
		newCronCmd(),
		newExportCmd(opts),
		newImportCmd(opts),
		newConfigCmd(opts),
		newDoctorCmd(opts),
	)
	return root
}

// resolveConfigPath picks the config file: the --config flag, then
// $ORDITO_CONFIG, then ordito.yaml or ordito.toml in the working directory,
// then ~/.ordito/config.yaml. The file does not have to exist.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("ORDITO_CONFIG"); p != "" {
		return p
	}
	for _, candidate := range []string{"ordito.yaml", "ordito.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "ordito.yaml"
	}
	return filepath.Join(home, ".ordito", "config.yaml")
}
