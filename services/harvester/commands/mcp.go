package commands

import (
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/02loveslollipop/sensorthings-metadata/internal/app"
	"github.com/02loveslollipop/sensorthings-metadata/internal/mcpserver"
)

func newMCPCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "serve harvest tools over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing the harvest as tools:
get_datasets, get_stac_items, get_dcat_catalog, harvest_now and
list_harvest_runs. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, log, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var history mcpserver.RunHistory
			if a.Runlog != nil {
				history = a.Runlog
			}
			srv := mcpserver.New(a.Service, history, version)

			log.Info("MCP server starting on stdio", "endpoint", cfg.Endpoint)
			return srv.Run(ctx, &mcp.StdioTransport{})
		},
	}
}
