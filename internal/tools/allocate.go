// Package tools implements the concrete MCP tools this bridge exposes.
package tools

import (
	"context"
	"net/url"
	"time"

	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/maasclient"
	"github.com/maas-mcp/bridge/internal/progress"
)

// AllocateMachineTool asks MAAS to reserve a machine matching the given
// constraints. It completes synchronously: allocation is fast and has no
// meaningful intermediate progress to report.
type AllocateMachineTool struct {
	client *maasclient.Client
}

func NewAllocateMachineTool(client *maasclient.Client) *AllocateMachineTool {
	return &AllocateMachineTool{client: client}
}

func (t *AllocateMachineTool) Name() string        { return "maas_allocate_machine" }
func (t *AllocateMachineTool) Description() string { return "Reserve a machine matching the given constraints" }
func (t *AllocateMachineTool) LongRunning() bool    { return false }
func (t *AllocateMachineTool) Timeout() time.Duration { return 15 * time.Second }

func (t *AllocateMachineTool) Schema() dispatch.Schema {
	return dispatch.Schema{Fields: []dispatch.Field{
		{Name: "zone", Type: dispatch.FieldString},
		{Name: "tags", Type: dispatch.FieldString},
		{Name: "min_cpu_count", Type: dispatch.FieldInteger},
	}}
}

func (t *AllocateMachineTool) Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error) {
	constraints := url.Values{}
	if zone, ok := params["zone"].(string); ok && zone != "" {
		constraints.Set("zone", zone)
	}
	if tags, ok := params["tags"].(string); ok && tags != "" {
		constraints.Set("tags", tags)
	}
	if cpu, ok := asInt(params["min_cpu_count"]); ok {
		constraints.Set("cpu_count", itoa(cpu))
	}

	machine, err := t.client.AllocateMachine(ctx, constraints)
	if err != nil {
		return nil, dispatch.WrapUpstreamError(t.Name(), err)
	}
	return machine, nil
}
