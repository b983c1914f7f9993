package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maas-mcp/bridge/internal/cache"
	"github.com/maas-mcp/bridge/internal/cancelmgr"
	"github.com/maas-mcp/bridge/internal/event"
	"github.com/maas-mcp/bridge/internal/progress"
)

func newTestDispatcher() *Dispatcher {
	tr := progress.New(event.NewStore(10), cancelmgr.New(time.Second), 16, time.Hour)
	return New(tr, cache.New(cache.StrategyTimeBased, 10, time.Minute, nil), nil)
}

type echoTool struct {
	name        string
	longRunning bool
	called      bool
	execute     func(ctx context.Context, r progress.Reporter, params map[string]any) (any, error)
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes params" }
func (t *echoTool) Schema() Schema {
	return Schema{Fields: []Field{{Name: "value", Type: FieldString, Required: true}}}
}
func (t *echoTool) LongRunning() bool   { return t.longRunning }
func (t *echoTool) Timeout() time.Duration { return 0 }
func (t *echoTool) Execute(ctx context.Context, r progress.Reporter, params map[string]any) (any, error) {
	t.called = true
	if t.execute != nil {
		return t.execute(ctx, r, params)
	}
	return params["value"], nil
}

func TestCallToolUnknownName(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.CallTool(context.Background(), "nope", nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCallToolRejectsInvalidParamsWithoutInvokingHandler(t *testing.T) {
	d := newTestDispatcher()
	tool := &echoTool{name: "echo"}
	d.RegisterTool(tool)

	_, err := d.CallTool(context.Background(), "echo", map[string]any{})
	if !IsInvalidParameters(err) {
		t.Fatalf("expected invalid-parameters error, got %v", err)
	}
	if tool.called {
		t.Fatal("handler must not run when validation fails")
	}
}

func TestCallToolShortRunsSynchronouslyAndCompletes(t *testing.T) {
	d := newTestDispatcher()
	d.RegisterTool(&echoTool{name: "echo"})

	result, err := d.CallTool(context.Background(), "echo", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || result.Content != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCallToolLongRunningReturnsOperationIDImmediately(t *testing.T) {
	d := newTestDispatcher()
	started := make(chan struct{})
	finish := make(chan struct{})
	tool := &echoTool{
		name:        "slow",
		longRunning: true,
		execute: func(ctx context.Context, r progress.Reporter, params map[string]any) (any, error) {
			close(started)
			<-finish
			return "done", nil
		},
	}
	d.RegisterTool(tool)

	result, err := d.CallTool(context.Background(), "slow", map[string]any{"value": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := result.Content.(map[string]any)
	opID, ok := content["operationId"].(string)
	if !ok || opID == "" {
		t.Fatalf("expected an operationId in the envelope, got %+v", result.Content)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}
	close(finish)
}

func TestCallToolHandlerErrorFailsOperation(t *testing.T) {
	d := newTestDispatcher()
	d.RegisterTool(&echoTool{
		name: "boom",
		execute: func(ctx context.Context, r progress.Reporter, params map[string]any) (any, error) {
			return nil, errors.New("upstream exploded")
		},
	})

	result, err := d.CallTool(context.Background(), "boom", map[string]any{"value": "x"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !result.IsError {
		t.Fatal("expected result envelope to report isError")
	}
}

type fakeResource struct {
	uri          string
	resourceType string
	reads        int
}

func (r *fakeResource) URIPattern() string  { return r.uri }
func (r *fakeResource) Description() string { return "fake" }
func (r *fakeResource) Match(uri string) bool { return uri == r.uri }
func (r *fakeResource) ResourceType() string { return r.resourceType }
func (r *fakeResource) Read(ctx context.Context, uri string) (any, error) {
	r.reads++
	return "content", nil
}

func TestReadResourceCachesAfterFirstRead(t *testing.T) {
	d := newTestDispatcher()
	res := &fakeResource{uri: "maas://machines", resourceType: "machines"}
	d.RegisterResource(res)

	if _, err := d.ReadResource(context.Background(), "maas://machines"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.ReadResource(context.Background(), "maas://machines"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.reads != 1 {
		t.Fatalf("expected exactly one upstream read, got %d", res.reads)
	}
}

func TestReadResourceUnknownURI(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.ReadResource(context.Background(), "maas://ghost")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
