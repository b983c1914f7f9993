package tools

import (
	"context"
	"time"

	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/maasclient"
	"github.com/maas-mcp/bridge/internal/progress"
)

// CreateTagTool creates a new MAAS tag.
type CreateTagTool struct {
	client    *maasclient.Client
	onCreated func() // invalidates the cached maas://tags listing
}

func NewCreateTagTool(client *maasclient.Client, onCreated func()) *CreateTagTool {
	return &CreateTagTool{client: client, onCreated: onCreated}
}

func (t *CreateTagTool) Name() string          { return "maas_create_tag" }
func (t *CreateTagTool) Description() string   { return "Create a new MAAS tag" }
func (t *CreateTagTool) LongRunning() bool      { return false }
func (t *CreateTagTool) Timeout() time.Duration { return 10 * time.Second }

func (t *CreateTagTool) Schema() dispatch.Schema {
	return dispatch.Schema{Fields: []dispatch.Field{
		{Name: "name", Type: dispatch.FieldString, Required: true},
		{Name: "comment", Type: dispatch.FieldString},
	}}
}

func (t *CreateTagTool) Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error) {
	name := params["name"].(string)
	comment, _ := params["comment"].(string)

	tag, err := t.client.CreateTag(ctx, name, comment)
	if err != nil {
		return nil, dispatch.WrapUpstreamError(t.Name(), err)
	}
	if t.onCreated != nil {
		t.onCreated()
	}
	return tag, nil
}
