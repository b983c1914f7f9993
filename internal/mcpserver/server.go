package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/event"
	"github.com/maas-mcp/bridge/internal/mcp"
)

// Server adapts a dispatch.Dispatcher to the MCP JSON-RPC wire protocol
// over plain HTTP, plus an SSE stream per operation for progress
// notifications and reconnection via Last-Event-ID.
type Server struct {
	dispatcher *dispatch.Dispatcher
	httpServer *http.Server
}

// New builds a Server bound to addr. Call Start to begin serving.
func New(dispatcher *dispatch.Dispatcher, addr string) *Server {
	s := &Server{dispatcher: dispatcher}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/operations/", s.handleOperations)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. Call Shutdown to stop it.
func (s *Server) Start() error {
	ln, err := newListener(s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("mcpserver: listen on %s: %w", s.httpServer.Addr, err)
	}
	s.httpServer.Addr = ln.Addr().String()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("mcpserver: serve failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the address the server actually bound to.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// newListener binds addr, defaulting to loopback when no host is given so
// tests and local runs don't accidentally listen on every interface.
func newListener(addr string) (net.Listener, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	} else if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return net.Listen("tcp", addr)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, CodeParseError, "invalid json")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "invalid jsonrpc version")
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "ping":
		writeResult(w, req.ID, map[string]any{})
	case "tools/list":
		writeResult(w, req.ID, ToolsListResult{Tools: s.toolDescriptors()})
	case "resources/list":
		writeResult(w, req.ID, ResourcesListResult{Resources: s.resourceDescriptors()})
	case "tools/call":
		s.handleToolsCall(w, r, req)
	case "resources/read":
		s.handleResourcesRead(w, r, req)
	case "notifications/initialized", "notifications/cancelled":
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	var params InitializeParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	writeResult(w, req.ID, InitializeResult{
		ProtocolVersion: mcp.Negotiate(params.ProtocolVersion),
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{"subscribe": false},
		},
		ServerInfo: ServerInfo{Name: mcp.ServerName, Version: mcp.ServerVersion},
	})
}

func (s *Server) toolDescriptors() []ToolDescriptor {
	descs := s.dispatcher.ListTools()
	out := make([]ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: jsonSchemaFor(d.Schema),
		})
	}
	return out
}

func (s *Server) resourceDescriptors() []ResourceDescriptor {
	descs := s.dispatcher.ListResources()
	out := make([]ResourceDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, ResourceDescriptor{URI: d.URIPattern, Description: d.Description})
	}
	return out
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, req.ID, CodeInvalidParams, "invalid tools/call params")
		return
	}

	result, _ := s.dispatcher.CallTool(r.Context(), params.Name, params.Arguments)
	writeResult(w, req.ID, toolsCallResultOf(result))
}

func toolsCallResultOf(result dispatch.Result) ToolsCallResult {
	return ToolsCallResult{
		Content: []ToolContent{{Type: "text", Text: textOf(result.Content)}},
		IsError: result.IsError,
	}
}

func textOf(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(data)
}

func (s *Server) handleResourcesRead(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params ResourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, req.ID, CodeInvalidParams, "invalid resources/read params")
		return
	}

	result, err := s.dispatcher.ReadResource(r.Context(), params.URI)
	if err != nil {
		code := CodeInternalError
		if dispatch.IsNotFound(err) {
			code = CodeInvalidParams
		}
		writeError(w, req.ID, code, err.Error())
		return
	}

	if cacheControl, age, ok := s.dispatcher.CacheHeaders(params.URI); ok {
		w.Header().Set("Cache-Control", cacheControl)
		if age != "" {
			w.Header().Set("Age", age)
		}
	}

	writeResult(w, req.ID, ResourcesReadResult{Contents: []ResourceContents{{
		URI:      params.URI,
		MimeType: "application/json",
		Text:     textOf(result.Content),
	}}})
}

// handleOperations routes /mcp/operations/{id}/events and
// /mcp/operations/{id}/cancel.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/mcp/operations/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	operationID, action := parts[0], parts[1]

	switch action {
	case "events":
		s.handleOperationEvents(w, r, operationID)
	case "cancel":
		s.handleOperationCancel(w, r, operationID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleOperationCancel(w http.ResponseWriter, r *http.Request, operationID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.dispatcher.Tracker().CancelOperation(operationID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOperationEvents(w http.ResponseWriter, r *http.Request, operationID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	stream, err := s.dispatcher.Tracker().Subscribe(r.Context(), operationID, lastEventID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-stream.Done():
			return
		case e, ok := <-stream.Events():
			if !ok {
				return
			}
			if !writeProgressEvent(w, e) {
				return
			}
			flusher.Flush()
		}
	}
}

// writeProgressEvent renders one event.Event as an SSE frame carrying a
// notifications/progress message, with the event's ID on the id: line.
// Only progress and completion events set a progress value; status, log,
// error and heartbeat events are sent with progress left at 0. A heartbeat's
// ID is not kept in the ring, so reconnecting with it as Last-Event-ID
// replays every buffered event.
func writeProgressEvent(w http.ResponseWriter, e event.Event) bool {
	notification := JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  "notifications/progress",
		Params:  progressParamsOf(e),
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return false
	}
	if e.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.ID); err != nil {
			return false
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	return true
}

func progressParamsOf(e event.Event) ProgressParams {
	p := ProgressParams{ProgressToken: e.OperationID}
	switch e.Kind {
	case event.KindProgress:
		p.Progress = float64(e.Progress.Percentage)
		p.Total = 100
		p.Message = e.Progress.Message
	case event.KindStatus:
		p.Message = e.Status.Message
		if p.Message == "" {
			p.Message = string(e.Status.Current)
		}
	case event.KindLog:
		p.Message = e.Log.Message
	case event.KindCompletion:
		p.Progress = 100
		p.Total = 100
		p.Message = e.Completion.Message
	case event.KindError:
		p.Message = e.Error.Message
	}
	return p
}

func writeResult(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}})
}
