// Package protocol implements the JSON-RPC 2.0 tool-invocation server the
// agent talks to instead of the platform API. One Server instance exists per
// run and is passed by reference wherever request handling happens; there is
// no package-level registry.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/wardenhq/warden/internal/telemetry"
)

// JSON-RPC error codes used on the wire.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeInvalidRequest = -32600
	CodeParseError     = -32700
)

// ProtocolVersion is advertised by initialize.
const ProtocolVersion = "2025-06-18"

// Request is one incoming JSON-RPC message. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one outgoing JSON-RPC message.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc %d: %s", e.Code, e.Message) }

// ToolHandler processes one tools/call invocation.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered tool: descriptor plus handler.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     ToolHandler    `json:"-"`
}

type serverState int

const (
	stateUninitialized serverState = iota
	stateInitialized
)

// Server is the request/response engine. It is transport-agnostic: the stdio
// and HTTP transports both feed Handle.
type Server struct {
	name    string
	version string
	logger  *log.Logger
	tools   map[string]Tool
	order   []string
	state   serverState
	metrics *telemetry.Metrics
}

// SetMetrics attaches the shared instrument set. Optional; the stdio
// transport typically runs without one.
func (s *Server) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

// NewServer builds an empty server.
func NewServer(name, version string, logger *log.Logger) *Server {
	return &Server{
		name:    name,
		version: version,
		logger:  logger,
		tools:   make(map[string]Tool),
	}
}

// Register adds a tool. Duplicate names are a startup-time configuration
// error, never a request-time one.
func (s *Server) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if _, dup := s.tools[t.Name]; dup {
		return fmt.Errorf("tool %s registered twice", t.Name)
	}
	s.tools[t.Name] = t
	s.order = append(s.order, t.Name)
	return nil
}

// Handle processes one request and returns the response, or nil for
// notifications. Transports must not serialize a nil response.
func (s *Server) Handle(ctx context.Context, req Request) *Response {
	result, rpcErr := s.dispatch(ctx, req)

	if req.ID == nil {
		// Notification: side effects already happened, nothing goes back.
		if rpcErr != nil {
			s.logger.Printf("notification %s failed: %s", req.Method, rpcErr.Message)
		}
		return nil
	}
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize()
	case "tools/list":
		return s.handleToolsList(), nil
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	case "ping":
		return map[string]any{}, nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not supported", req.Method)}
	}
}

// handleInitialize flips the one-way state machine and reports identity and
// capabilities.
func (s *Server) handleInitialize() (any, *RPCError) {
	if s.state == stateInitialized {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: "server already initialized"}
	}
	s.state = stateInitialized
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
	}, nil
}

func (s *Server) handleToolsList() any {
	descriptors := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		descriptors = append(descriptors, s.tools[name])
	}
	return map[string]any{"tools": descriptors}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("bad tools/call params: %v", err)}
		}
	}
	tool, ok := s.tools[call.Name]
	if !ok {
		s.metrics.ToolCall(call.Name, "unknown")
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("tool %q not found", call.Name)}
	}
	result, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		s.metrics.ToolCall(call.Name, "error")
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	s.metrics.ToolCall(call.Name, "ok")
	return result, nil
}

// TextResult wraps a human-readable message in the tool-result content shape
// clients expect.
func TextResult(format string, args ...any) map[string]any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": fmt.Sprintf(format, args...)},
		},
	}
}
