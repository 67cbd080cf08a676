// Package mcpserver exposes the harvest read operations as MCP tools.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/runlog"
)

// RunHistory lists recorded harvest runs.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// New creates an MCP server with all tools registered. history may be nil.
func New(svc *harvest.Service, history RunHistory, version string) *mcp.Server {
	ht := &HarvestTools{Service: svc, History: history}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "sta-harvester",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_datasets",
		Description: "List the normalized Datastream records of the last harvest, with incremental counts when enabled",
	}, ht.GetDatasets)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_stac_items",
		Description: "Get the harvested records as a STAC item FeatureCollection",
	}, ht.GetSTACItems)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_dcat_catalog",
		Description: "Get the harvested records as a DCAT JSON-LD catalog",
	}, ht.GetDCATCatalog)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "harvest_now",
		Description: "Harvest the SensorThings endpoint immediately and report the outcome",
	}, ht.HarvestNow)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_harvest_runs",
		Description: "List recent harvest runs, newest first",
	}, ht.ListHarvestRuns)

	return srv
}
