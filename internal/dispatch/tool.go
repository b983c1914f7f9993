package dispatch

import (
	"context"
	"time"

	"github.com/maas-mcp/bridge/internal/progress"
)

// Tool is a single MCP tool handler. Execute receives the per-call
// cancellation context the dispatcher derives (caller context merged with
// the operation's own scope, bounded by Timeout) and the Reporter to
// stream progress through.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	// LongRunning tools return an operation id immediately; Execute keeps
	// running in the background and reports through reporter. Short tools
	// run to completion before CallTool returns.
	LongRunning() bool
	// Timeout bounds a single call. <= 0 uses the dispatcher's default.
	Timeout() time.Duration
	Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error)
}

// ToolDescriptor is the tools/list representation of a registered Tool.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"inputSchema"`
}
