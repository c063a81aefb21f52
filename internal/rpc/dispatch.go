package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/metrics"
)

// dispatch runs the full pipeline for one incoming frame and returns
// the response to send, or nil for notifications.
func (s *Server) dispatch(ctx context.Context, sess *session, frame []byte) *Response {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return errorResponse(nil, CodeParseError, "parse error")
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		return s.respond(&req, errorResponse(req.ID, CodeInvalidRequest, "invalid request"))
	}

	entry, known := s.registry[req.Method]
	if !known {
		return s.respond(&req, errorResponse(req.ID,
			CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method)))
	}

	if entry.minRole != "" {
		principal := sess.currentPrincipal()
		if principal == nil {
			return s.respond(&req, errorResponse(req.ID,
				CodeAuthRequired, "authentication required"))
		}
		if !principal.ExpiresAt.IsZero() && time.Now().After(principal.ExpiresAt) {
			sess.setPrincipal(nil)
			return s.respond(&req, errorResponse(req.ID,
				CodeAuthRequired, "authentication expired"))
		}
		if !principal.Role.HasPermission(entry.minRole) {
			return s.respond(&req, errorResponse(req.ID, CodeInsufficientRole,
				fmt.Sprintf("method %q requires %s role", req.Method, entry.minRole)))
		}
	}

	// Rate limiting covers every method, authenticate included.
	if !s.limiter.Allow(sess.id) {
		metrics.RateLimited()
		return s.respond(&req, errorResponse(req.ID,
			CodeInsufficientRole, "rate limit exceeded"))
	}

	correlationID := correlationFromRequest(&req)
	logger := logging.WithCorrelation(s.logger, correlationID)
	ctx = logging.ContextWithCorrelation(ctx, correlationID)

	result, errObj := s.invoke(ctx, entry, sess, req.Params)
	if errObj != nil {
		metrics.ObserveRequest(req.Method, "error")
		logger.Warn("Method failed",
			"method", req.Method, "code", errObj.Code, "error", errObj.Message)
		return s.respond(&req, &Response{JSONRPC: "2.0", Error: errObj, ID: req.ID})
	}
	metrics.ObserveRequest(req.Method, "ok")
	return s.respond(&req, resultResponse(req.ID, result))
}

// invoke calls the handler, converting panics to internal errors.
func (s *Server) invoke(ctx context.Context, entry methodEntry, sess *session, params json.RawMessage) (result any, errObj *ErrorObject) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Handler panicked",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result = nil
			errObj = &ErrorObject{Code: CodeInternalError, Message: "internal error"}
		}
	}()
	return entry.handler(ctx, sess, params)
}

// respond suppresses responses to notifications.
func (s *Server) respond(req *Request, resp *Response) *Response {
	if req.IsNotification() {
		return nil
	}
	return resp
}

// correlationFromRequest reuses the request id when present so log
// lines tie back to the caller's request.
func correlationFromRequest(req *Request) string {
	if req.ID != nil {
		var asString string
		if err := json.Unmarshal(*req.ID, &asString); err == nil && asString != "" {
			return asString
		}
		return string(*req.ID)
	}
	return logging.NewCorrelationID()
}
