// Package rpc implements the JSON-RPC 2.0 control channel over
// WebSocket: method dispatch, auth and rate-limit gating, and server
// push notifications.
package rpc

import (
	"encoding/json"
)

// JSON-RPC error codes. The -327xx and -320xx codes sit in the
// JSON-RPC 2.0 reserved range; -1003 is the application code for
// upstream failures.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeAuthRequired     = -32001
	CodeInsufficientRole = -32003
	CodeUpstreamFailed   = -1003
)

// Request is an incoming JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id and thus
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is an outgoing JSON-RPC 2.0 response. Exactly one of Result
// and Error is set.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  any              `json:"result,omitempty"`
	Error   *ErrorObject     `json:"error,omitempty"`
	ID      *json.RawMessage `json:"id"`
}

// ErrorObject is a JSON-RPC error.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-to-client push message (no id).
type Notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

func resultResponse(id *json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: id}
}

func errorResponse(id *json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   &ErrorObject{Code: code, Message: message},
		ID:      id,
	}
}

func newNotification(method string, params map[string]any) *Notification {
	return &Notification{JSONRPC: "2.0", Method: method, Params: params}
}
