package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scripthost-io/restorer/internal/feed"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPaths []string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "restorer",
		Short: "Package search and restore for interactive script sessions",
		Long: `Restorer resolves, searches and materializes package dependencies for a
single ephemeral project and prints the resulting compile/runtime artifact
paths.

Sources are configured in a YAML file and queried in priority order; the
actual dependency resolution is delegated to an external restore engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", []string{"sources.yaml"}, "sources config file(s), in priority order")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		searchCmd(),
		restoreCmd(),
		watchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "restorer",
	})

	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	return logger
}

func newRegistry() *feed.Registry {
	return feed.NewConfigRegistry(nil, configPaths...)
}
