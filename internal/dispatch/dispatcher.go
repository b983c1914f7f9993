// Package dispatch implements the tool/resource dispatcher (component D):
// schema validation ahead of every tool call, per-call timeout derivation,
// a uniform result envelope, and resource reads backed by a pluggable
// cache.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maas-mcp/bridge/internal/cache"
	"github.com/maas-mcp/bridge/internal/otelmetrics"
	"github.com/maas-mcp/bridge/internal/progress"
)

// DefaultTimeout bounds a tool call whose Tool.Timeout returns <= 0.
const DefaultTimeout = 30 * time.Second

// Result is the uniform envelope every tool call and resource read
// resolves to on the wire.
type Result struct {
	Content any `json:"content"`
	IsError bool `json:"isError"`
}

// Dispatcher owns the tool and resource registries and wires every call
// through validation, timeout derivation, the progress tracker, and the
// resource cache.
type Dispatcher struct {
	tracker        *progress.Tracker
	cache          *cache.Cache
	metrics        *otelmetrics.Metrics
	defaultTimeout time.Duration

	mu        sync.RWMutex
	tools     map[string]Tool
	resources []Resource
}

// New builds a Dispatcher. cache and metrics may be nil: nil cache
// disables resource caching, nil metrics disables instrumentation.
func New(tracker *progress.Tracker, resourceCache *cache.Cache, metrics *otelmetrics.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = otelmetrics.Noop()
	}
	return &Dispatcher{
		tracker:        tracker,
		cache:          resourceCache,
		metrics:        metrics,
		defaultTimeout: DefaultTimeout,
		tools:          make(map[string]Tool),
	}
}

// RegisterTool adds t to the registry. Panics on a duplicate name: that is
// a wiring bug caught at startup, not a runtime condition.
func (d *Dispatcher) RegisterTool(t Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name()]; exists {
		panic(fmt.Sprintf("dispatch: tool %q registered twice", t.Name()))
	}
	d.tools[t.Name()] = t
}

// RegisterResource adds r to the registry, matched in registration order.
func (d *Dispatcher) RegisterResource(r Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources = append(d.resources, r)
}

// Tracker exposes the underlying progress tracker so a transport layer can
// subscribe to an operation's events or cancel it directly.
func (d *Dispatcher) Tracker() *progress.Tracker {
	return d.tracker
}

// ListTools returns every registered tool's descriptor.
func (d *Dispatcher) ListTools() []ToolDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, ToolDescriptor{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// ListResources returns every registered resource's descriptor.
func (d *Dispatcher) ListResources() []ResourceDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ResourceDescriptor, 0, len(d.resources))
	for _, r := range d.resources {
		out = append(out, ResourceDescriptor{URIPattern: r.URIPattern(), Description: r.Description()})
	}
	return out
}

// CallTool validates params, derives a per-call timeout context, and runs
// the named tool. The handler is never invoked when validation fails.
func (d *Dispatcher) CallTool(ctx context.Context, name string, params map[string]any) (Result, error) {
	start := time.Now()
	d.mu.RLock()
	tool, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		err := NewNotFoundError(name)
		d.metrics.RecordDispatch(ctx, "tool", name, msSince(start), true)
		return Result{Content: err.Error(), IsError: true}, err
	}

	if issues := tool.Schema().Validate(params); len(issues) > 0 {
		err := NewInvalidParametersError(name, issues)
		d.metrics.RecordDispatch(ctx, "tool", name, msSince(start), true)
		return Result{Content: err.Error(), IsError: true}, err
	}

	opID := uuid.NewString()
	reporter, opCtx, err := d.tracker.StartOperation(opID)
	if err != nil {
		de := NewInternalError(name, err)
		d.metrics.RecordDispatch(ctx, "tool", name, msSince(start), true)
		return Result{Content: de.Error(), IsError: true}, de
	}
	d.metrics.RecordOperationEvent(ctx, "started")

	timeout := tool.Timeout()
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(mergeDone(ctx, opCtx), timeout)

	if tool.LongRunning() {
		go func() {
			defer cancel()
			d.runToEnd(callCtx, tool, reporter, opID, params, name)
		}()
		d.metrics.RecordDispatch(ctx, "tool", name, msSince(start), false)
		return Result{Content: map[string]any{"operationId": opID}, IsError: false}, nil
	}

	defer cancel()
	isErr, content := d.runToEnd(callCtx, tool, reporter, opID, params, name)
	d.tracker.CleanupOperation(opID)
	d.metrics.RecordDispatch(ctx, "tool", name, msSince(start), isErr)

	if isErr {
		de := NewInternalError(name, fmt.Errorf("%v", content))
		return Result{Content: content, IsError: true}, de
	}
	return Result{Content: content, IsError: false}, nil
}

// runToEnd executes tool, reports its outcome through reporter, and
// returns whether it failed plus the content to surface in the envelope.
// Recovers a panicking handler as a failed operation rather than crashing
// the dispatcher.
func (d *Dispatcher) runToEnd(ctx context.Context, tool Tool, reporter progress.Reporter, opID string, params map[string]any, name string) (isErr bool, content any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: tool handler panicked", "tool", name, "operation_id", opID, "panic", r)
			_ = reporter.Fail(fmt.Sprintf("internal error: %v", r), 500, nil, false)
			d.metrics.RecordOperationEvent(ctx, "failed")
			isErr = true
			content = fmt.Sprintf("internal error: %v", r)
		}
	}()

	result, err := tool.Execute(ctx, reporter, params)
	if err != nil {
		de := toDispatchError(name, err)
		_ = reporter.Fail(de.Message, de.HTTPStatus(), de.Details, de.Kind == ErrKindTimeout || de.Kind == ErrKindUpstream)
		d.metrics.RecordOperationEvent(ctx, "failed")
		return true, de.Error()
	}
	_ = reporter.Complete(result, "")
	d.metrics.RecordOperationEvent(ctx, "completed")
	return false, result
}

// ReadResource matches uri against every registered Resource in order,
// serving from cache when enabled and fresh.
func (d *Dispatcher) ReadResource(ctx context.Context, uri string) (Result, error) {
	start := time.Now()

	match := d.matchResource(uri)
	if match == nil {
		err := NewNotFoundError(uri)
		d.metrics.RecordDispatch(ctx, "resource", uri, msSince(start), true)
		return Result{Content: err.Error(), IsError: true}, err
	}

	key := cacheKey(match.ResourceType(), uri)
	if d.cache != nil {
		if v, hit := d.cache.Get(key); hit {
			d.metrics.RecordCacheResult(ctx, match.ResourceType(), true)
			d.metrics.RecordDispatch(ctx, "resource", uri, msSince(start), false)
			return Result{Content: v, IsError: false}, nil
		}
		d.metrics.RecordCacheResult(ctx, match.ResourceType(), false)
	}

	content, err := match.Read(ctx, uri)
	if err != nil {
		de := toDispatchError(uri, err)
		d.metrics.RecordDispatch(ctx, "resource", uri, msSince(start), true)
		return Result{Content: de.Error(), IsError: true}, de
	}

	if d.cache != nil {
		d.cache.Set(key, match.ResourceType(), content)
	}
	d.metrics.RecordDispatch(ctx, "resource", uri, msSince(start), false)
	return Result{Content: content, IsError: false}, nil
}

// CacheHeaders returns the Cache-Control/Age header values for uri if it is
// currently cached. age is empty for an entry with no measurable age yet
// (just inserted by this same read), since an Age header only makes sense
// once an entry has actually been served stale for a while.
func (d *Dispatcher) CacheHeaders(uri string) (cacheControl, age string, ok bool) {
	if d.cache == nil {
		return "", "", false
	}
	match := d.matchResource(uri)
	if match == nil {
		return "", "", false
	}
	insertedAt, ttl, found := d.cache.Freshness(cacheKey(match.ResourceType(), uri))
	if !found {
		return "", "", false
	}
	cacheControl = fmt.Sprintf("max-age=%d", int(ttl.Seconds()))
	if ageSeconds := int(time.Since(insertedAt).Seconds()); ageSeconds > 0 {
		age = fmt.Sprintf("%d", ageSeconds)
	}
	return cacheControl, age, true
}

func (d *Dispatcher) matchResource(uri string) Resource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.resources {
		if r.Match(uri) {
			return r
		}
	}
	return nil
}

// cacheKey builds the cache fingerprint for a resource read:
// "{resource-type}:{canonical URI}", with query params sorted so two
// requests differing only in param order hit the same entry.
func cacheKey(resourceType, uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return resourceType + ":" + uri
	}
	if q := u.Query(); len(q) > 0 {
		u.RawQuery = q.Encode() // url.Values.Encode sorts keys
	}
	return resourceType + ":" + u.String()
}

// InvalidateResourcePrefix drops every cached resource whose URI starts
// with prefix (the cache key's resource-type part is not matched), for tools whose side effects stale a resource (e.g.
// maas_create_tag staling "maas://tags").
func (d *Dispatcher) InvalidateResourcePrefix(prefix string) {
	if d.cache != nil {
		d.cache.InvalidateByPrefix(prefix)
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// mergeDone returns a context done as soon as either a or b is.
func mergeDone(a, b context.Context) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
		case <-b.Done():
		}
		cancel()
	}()
	return ctx
}
