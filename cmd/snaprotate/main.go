// Command snaprotate takes rotating hard-link snapshots of directory trees.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Build information. Populated at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

var (
	configFile string
	logLevel   string
)

// exit codes beyond 0/1
const (
	exitConcurrentRun = 75 // EX_TEMPFAIL: another run holds the set
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "snaprotate",
		Short: "Rotating hard-link snapshots",
		Long: `snaprotate - incremental snapshots of directory trees, each a full
browsable copy whose unchanged files are hard links into the previous one.

Commands:
  run       Run the daemon (schedules, config reload, HTTP)
  snapshot  Take one snapshot of a set
  prune     Apply the retention policy of a set
  list      List the snapshots of a set
  rebuild   Rebuild the catalog of a set from its snapshot directories

Examples:
  snaprotate run -c /etc/snaprotate/snaprotate.yaml
  snaprotate snapshot host1
  snaprotate prune host1 --dry-run
  snaprotate list host1`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/snaprotate/snaprotate.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(rebuildCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, snapshot.ErrConcurrentRun) {
			os.Exit(exitConcurrentRun)
		}
		os.Exit(1)
	}
}

// setup loads the config and builds a logger tagged with a fresh run id.
func setup(command string) (*config.Config, *logging.ZeroLogger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, log.Child("command", command, "runId", uuid.NewString()), nil
}

func lookupSet(cfg *config.Config, name string) (config.SetConfig, error) {
	set, ok := cfg.Set(name)
	if !ok {
		return config.SetConfig{}, fmt.Errorf("unknown set %q", name)
	}
	return set, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snaprotate %s (%s)\n", version, commit)
		},
	}
}
