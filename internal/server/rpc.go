// Package server exposes the tool dispatcher over the two supported
// transports: a line-delimited duplex channel and a bidirectional HTTP
// endpoint with stateless or stateful session handling.
package server

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/tools"
	"github.com/scholartech/scholargraph/pkg/logging"
)

const (
	ServerName      = "scholargraph"
	ServerVersion   = "0.1.0"
	ProtocolVersion = "2025-03-26"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Request is one inbound JSON-RPC message. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one outbound JSON-RPC message.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error member.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func resultResponse(id any, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// internalErrorEnvelope is the uniform body for unhandled transport
// exceptions.
func internalErrorEnvelope() *Response {
	return errorResponse(nil, codeInternalError, "Internal server error")
}

// Core handles protocol messages against the tool dispatcher. One Core
// backs each stateful session; stateless requests get a fresh one.
type Core struct {
	dispatcher  *tools.Dispatcher
	initialized bool
	log         zerolog.Logger
}

// NewCore creates a protocol handler.
func NewCore(dispatcher *tools.Dispatcher) *Core {
	return &Core{
		dispatcher: dispatcher,
		log:        logging.GetLogger("server.core"),
	}
}

// DecodeRequest parses one raw message. The returned response is non-nil
// only on a parse or shape error.
func DecodeRequest(raw []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errorResponse(nil, codeParseError, "Parse error")
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return nil, errorResponse(req.ID, codeInvalidRequest, "Invalid request")
	}
	return &req, nil
}

// IsInitialize reports whether the request opens a protocol session.
func (r *Request) IsInitialize() bool { return r.Method == "initialize" }

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Handle executes one request. Returns nil for notifications.
func (c *Core) Handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		c.initialized = true
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": ServerVersion,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
		})
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": c.dispatcher.Tools()})
	case "tools/call":
		return c.handleToolCall(ctx, req)
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, codeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (c *Core) handleToolCall(ctx context.Context, req *Request) *Response {
	var params struct {
		Name      string     `json:"name"`
		Arguments tools.Args `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tools/call requires a tool name and an arguments object")
	}
	result := c.dispatcher.Dispatch(ctx, params.Name, params.Arguments)
	return resultResponse(req.ID, result)
}
