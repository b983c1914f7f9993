package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/maas-mcp/bridge/internal/cache"
	"github.com/maas-mcp/bridge/internal/cancelmgr"
	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/event"
	"github.com/maas-mcp/bridge/internal/progress"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) LongRunning() bool   { return false }
func (echoTool) Timeout() time.Duration { return time.Second }
func (echoTool) Schema() dispatch.Schema {
	return dispatch.Schema{Fields: []dispatch.Field{{Name: "text", Type: dispatch.FieldString, Required: true}}}
}
func (echoTool) Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error) {
	return params["text"], nil
}

func newTestServer(t *testing.T) (*Server, *dispatch.Dispatcher, func()) {
	t.Helper()
	tracker := progress.New(event.NewStore(16), cancelmgr.New(50*time.Millisecond), 16, time.Hour)
	d := dispatch.New(tracker, cache.New(cache.StrategyTimeBased, 100, time.Minute, nil), nil)
	d.RegisterTool(echoTool{})

	srv := New(d, "127.0.0.1:0")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		tracker.Shutdown()
	}
	return srv, d, cleanup
}

func postJSONRPC(t *testing.T, url string, req JSONRPCRequest) JSONRPCResponse {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestInitializeReturnsServerInfo(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	resp := postJSONRPC(t, "http://"+srv.Addr()+"/mcp", JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestToolsListIncludesRegisteredTool(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	resp := postJSONRPC(t, "http://"+srv.Addr()+"/mcp", JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", result.Tools)
	}
}

func TestToolsCallExecutesRegisteredTool(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	params, _ := json.Marshal(ToolsCallParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	resp := postJSONRPC(t, "http://"+srv.Addr()+"/mcp", JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolsCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.IsError || len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestToolsCallUnknownToolReturnsIsError(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	params, _ := json.Marshal(ToolsCallParams{Name: "nope"})
	resp := postJSONRPC(t, "http://"+srv.Addr()+"/mcp", JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected json-rpc error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolsCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for an unknown tool")
	}
}

func TestResourcesReadUnknownURIReturnsError(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	params, _ := json.Marshal(ResourcesReadParams{URI: "maas://ghost"})
	resp := postJSONRPC(t, "http://"+srv.Addr()+"/mcp", JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "resources/read", Params: params})
	if resp.Error == nil {
		t.Fatal("expected a json-rpc error for an unmatched resource")
	}
}
