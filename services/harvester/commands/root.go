// Package commands implements the harvester CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

type globalOptions struct {
	logLevel  string
	logFormat string
}

// newRootCmd builds the command tree. Flags are bound per tree so tests can
// execute commands repeatedly.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "harvester",
		Short:   "SensorThings metadata harvester",
		Version: version,
		Long: `Harvest Thing and Datastream metadata from an OGC SensorThings API endpoint,
flatten it into one record per Datastream and publish it as plain records,
a STAC item collection and a DCAT catalog.

Settings are read from the environment (and .env); flags override them.`,
		Example: `  # Print all records to stdout
  $ harvester run --endpoint http://localhost:8018/istsos4/v1.1

  # Incremental harvest into files
  $ harvester run --output records.json --stac-output stac.json --dcat-output dcat.json

  # Serve the harvest tools over MCP stdio
  $ harvester mcp`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("harvester version %s\n", version))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (default from LOG_FORMAT)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newMCPCmd(opts))
	return rootCmd
}

// Execute executes the root command
func Execute() error {
	return newRootCmd().Execute()
}
