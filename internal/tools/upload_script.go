package tools

import (
	"context"
	"time"

	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/maasclient"
	"github.com/maas-mcp/bridge/internal/progress"
)

// UploadScriptTool registers a commissioning or testing script with MAAS.
// Uploads are treated as long-running since script content can be large
// enough that the multipart POST itself takes a noticeable amount of time.
type UploadScriptTool struct {
	client *maasclient.Client
}

func NewUploadScriptTool(client *maasclient.Client) *UploadScriptTool {
	return &UploadScriptTool{client: client}
}

func (t *UploadScriptTool) Name() string          { return "maas_upload_script" }
func (t *UploadScriptTool) Description() string   { return "Upload a commissioning or testing script to MAAS" }
func (t *UploadScriptTool) LongRunning() bool      { return true }
func (t *UploadScriptTool) Timeout() time.Duration { return 2 * time.Minute }

func (t *UploadScriptTool) Schema() dispatch.Schema {
	return dispatch.Schema{Fields: []dispatch.Field{
		{Name: "name", Type: dispatch.FieldString, Required: true},
		{Name: "type", Type: dispatch.FieldString, Required: true, Enum: []string{"commissioning", "testing"}},
		{Name: "content", Type: dispatch.FieldString, Required: true},
	}}
}

func (t *UploadScriptTool) Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error) {
	name := params["name"].(string)
	scriptType := params["type"].(string)
	content := params["content"].(string)

	_ = reporter.Progress(10, "uploading script", nil)
	if err := t.client.UploadScript(ctx, name, scriptType, []byte(content)); err != nil {
		return nil, dispatch.WrapUpstreamError(t.Name(), err)
	}
	_ = reporter.Progress(90, "script registered", nil)
	return map[string]any{"name": name, "type": scriptType}, nil
}
