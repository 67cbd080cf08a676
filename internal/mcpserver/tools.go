package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// HarvestTools holds references needed by the tool handlers.
type HarvestTools struct {
	Service *harvest.Service
	History RunHistory
}

// --- Input types ---

type ReadInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"Harvest again even if the last result is still fresh"`
}

type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default 20)"`
}

// HarvestResult is the outcome reported by harvest_now.
type HarvestResult struct {
	RunID       string          `json:"run_id"`
	Count       int             `json:"count"`
	Incremental *models.Summary `json:"incremental,omitempty"`
	Warning     string          `json:"warning,omitempty"`
}

// --- Handlers ---

func (t *HarvestTools) GetDatasets(ctx context.Context, _ *mcp.CallToolRequest, input ReadInput) (*mcp.CallToolResult, any, error) {
	if res := t.refresh(ctx, input.Refresh); res != nil {
		return res, nil, nil
	}
	return toolJSON(t.Service.Datasets())
}

func (t *HarvestTools) GetSTACItems(ctx context.Context, _ *mcp.CallToolRequest, input ReadInput) (*mcp.CallToolResult, any, error) {
	if res := t.refresh(ctx, input.Refresh); res != nil {
		return res, nil, nil
	}
	return toolJSON(t.Service.STACItems())
}

func (t *HarvestTools) GetDCATCatalog(ctx context.Context, _ *mcp.CallToolRequest, input ReadInput) (*mcp.CallToolResult, any, error) {
	if res := t.refresh(ctx, input.Refresh); res != nil {
		return res, nil, nil
	}
	return toolJSON(t.Service.DCATCatalog())
}

func (t *HarvestTools) HarvestNow(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	snap, err := t.Service.Run(ctx)
	if snap == nil {
		return toolError("Harvest failed: %v", err), nil, nil
	}

	result := HarvestResult{RunID: snap.RunID, Count: len(snap.Records), Incremental: snap.Incremental}
	if err != nil {
		result.Warning = err.Error()
	}
	return toolJSON(result)
}

func (t *HarvestTools) ListHarvestRuns(ctx context.Context, _ *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, any, error) {
	if t.History == nil {
		return toolError("Run history is disabled (set RUNLOG_PATH)"), nil, nil
	}
	entries, err := t.History.Recent(ctx, input.Limit)
	if err != nil {
		return toolError("Failed to list runs: %v", err), nil, nil
	}
	return toolJSON(entries)
}

// refresh returns an error result when no usable snapshot could be produced.
func (t *HarvestTools) refresh(ctx context.Context, force bool) *mcp.CallToolResult {
	snap, err := t.Service.Refresh(ctx, force)
	if err != nil && snap == nil {
		return toolError("Harvest failed: %v", err)
	}
	return nil
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
