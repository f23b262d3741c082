// ABOUTME: MCP Streamable HTTP endpoint: authenticates, binds a session and dispatches JSON-RPC calls
// ABOUTME: Answers with a JSON envelope or a single SSE frame; GET keeps a session stream open

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/session"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise when the client asks for
// one we do not speak.
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// SessionHeader carries the session id in both directions.
const SessionHeader = "Mcp-Session-Id"

// SessionQueryParam is the query parameter alternative to SessionHeader.
const SessionQueryParam = "sessionId"

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *JSONRPCRequest) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// callToolParams are the params for tools/call.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry  *session.Registry
	Resolver  auth.IdentityResolver
	Challenge auth.Challenge
	Logger    *slog.Logger

	ServerName    string
	ServerVersion string
	Instructions  string
	// KeepAlive is the SSE comment interval on GET streams.
	KeepAlive time.Duration
}

// Server implements the MCP endpoint.
type Server struct {
	registry     *session.Registry
	resolver     auth.IdentityResolver
	challenge    auth.Challenge
	logger       *slog.Logger
	info         *sdk.Implementation
	instructions string
	keepAlive    time.Duration
	tracer       trace.Tracer
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("identity resolver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "ward-gateway"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	return &Server{
		registry:     cfg.Registry,
		resolver:     cfg.Resolver,
		challenge:    cfg.Challenge,
		logger:       logger.With("component", "mcp"),
		info:         &sdk.Implementation{Name: name, Version: version},
		instructions: cfg.Instructions,
		keepAlive:    keepAlive,
		tracer:       otel.Tracer("github.com/2389/ward-gateway/internal/mcp"),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	h := s.Handler()
	mux.Handle("/mcp", h)
	mux.Handle("/mcp/", h)
}

// Handler returns the authenticated MCP handler. Requests without a valid
// bearer token are answered 401 before any session is looked up.
func (s *Server) Handler() http.Handler {
	return auth.RequireIdentity(s.resolver, s.challenge)(http.HandlerFunc(s.handleMCP))
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if v := r.Header.Get("Mcp-Protocol-Version"); v != "" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// sessionID reads the session id from the query string or the header.
func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get(SessionQueryParam)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// lookupOwned returns the live session with id if the caller owns it. status is the
// HTTP status to answer with when err is non-nil.
func (s *Server) lookupOwned(r *http.Request, id string) (sess *session.Session, status int, err error) {
	caller := auth.MustFromContext(r.Context())
	if id == "" {
		return nil, http.StatusBadRequest, errors.New("missing session id")
	}
	sess, err = s.registry.Get(id)
	if err != nil {
		return nil, http.StatusNotFound, err
	}
	if sess.Owner.UserID != caller.UserID {
		s.logger.Warn("session owner mismatch", "session_id", id, "owner", sess.Owner.UserID, "caller", caller.UserID)
		return nil, http.StatusForbidden, errors.New("session belongs to another user")
	}
	return sess, http.StatusOK, nil
}

// handleDelete terminates a session. Only its owner may do so.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if _, status, err := s.lookupOwned(r, id); err != nil {
		http.Error(w, http.StatusText(status)+": "+err.Error(), status)
		return
	}
	s.registry.Remove(id)
	s.logger.Info("MCP session terminated", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST. The body is a
// single message or a batch.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, r, http.StatusBadRequest, nil, JSONRPCParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, r, http.StatusRequestEntityTooLarge, nil, JSONRPCInvalidRequest, "request body too large")
		return
	}

	reqs, batch, err := parseMessages(body)
	if err != nil {
		s.sendJSONRPCError(w, r, http.StatusBadRequest, nil, JSONRPCParseError, "invalid JSON")
		return
	}
	for _, req := range reqs {
		if req.JSONRPC != "2.0" {
			s.sendJSONRPCError(w, r, http.StatusBadRequest, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
			return
		}
		if req.Method == "initialize" && batch {
			s.sendJSONRPCError(w, r, http.StatusBadRequest, req.ID, JSONRPCInvalidRequest, "initialize must not be batched")
			return
		}
	}

	var calls []*JSONRPCRequest
	for _, req := range reqs {
		if req.isNotification() {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
			continue
		}
		calls = append(calls, req)
	}
	if len(calls) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	sess, status, rpcErr := s.bindSession(r, calls[0].Method == "initialize")
	if rpcErr != nil {
		s.sendJSONRPCError(w, r, status, calls[0].ID, rpcErr.Code, rpcErr.Message)
		return
	}
	if !sess.Ephemeral() {
		w.Header().Set(SessionHeader, sess.ID)
	}

	responses := make([]*JSONRPCResponse, 0, len(calls))
	for _, req := range calls {
		responses = append(responses, s.dispatch(r.Context(), sess, req))
	}

	if batch {
		s.writeMessage(w, r, http.StatusOK, responses)
		return
	}
	s.writeMessage(w, r, http.StatusOK, responses[0])
}

// bindSession picks the session for a POST. initialize always registers a
// new session. A live id is reused after the owner check, an unknown id gets
// a fresh session and no id gets an unregistered one.
func (s *Server) bindSession(r *http.Request, initialize bool) (*session.Session, int, *JSONRPCError) {
	caller := auth.MustFromContext(r.Context())
	connID := session.ConnIDFromContext(r.Context())
	id := sessionID(r)

	var (
		sess  *session.Session
		isNew bool
		err   error
	)
	switch {
	case initialize:
		sess, err = s.registry.Create(caller, connID)
		isNew = true
	case id == "":
		return s.registry.Ephemeral(caller), http.StatusOK, nil
	default:
		sess, isNew, err = s.registry.GetOrCreate(id, caller, connID)
	}

	if errors.Is(err, session.ErrRegistryFull) {
		s.logger.Warn("session registry full", "user_id", caller.UserID)
		return nil, http.StatusServiceUnavailable, &JSONRPCError{Code: JSONRPCInternalError, Message: "too many sessions"}
	}
	if err != nil {
		s.logger.Error("binding session failed", "error", err)
		return nil, http.StatusInternalServerError, &JSONRPCError{Code: JSONRPCInternalError, Message: "internal error"}
	}
	if !isNew && sess.Owner.UserID != caller.UserID {
		s.logger.Warn("session owner mismatch", "session_id", id, "owner", sess.Owner.UserID, "caller", caller.UserID)
		return nil, http.StatusForbidden, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "session belongs to another user"}
	}
	if isNew && id != "" && !initialize {
		s.logger.Info("replaced unknown session", "stale_session_id", id, "session_id", sess.ID)
	}
	return sess, http.StatusOK, nil
}

// dispatch runs one JSON-RPC call on sess.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, req *JSONRPCRequest) *JSONRPCResponse {
	ctx, span := s.tracer.Start(ctx, "mcp."+req.Method, trace.WithAttributes(
		attribute.String("mcp.method", req.Method),
		attribute.String("mcp.session_id", sess.ID),
		attribute.Bool("mcp.ephemeral", sess.Ephemeral()),
	))
	defer span.End()

	s.logger.Debug("MCP request", "method", req.Method, "session_id", sess.ID, "user_id", sess.Owner.UserID)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return result(req.ID, struct{}{})
	case "tools/list":
		return result(req.ID, &sdk.ListToolsResult{Tools: sess.Tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, sess, req)
	default:
		return rpcError(req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleInitialize answers the MCP handshake. The session was created by
// bindSession.
func (s *Server) handleInitialize(req *JSONRPCRequest) *JSONRPCResponse {
	var params sdk.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}
	if params.ClientInfo != nil {
		s.logger.Info("MCP client initialized", "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version, "protocol_version", version)
	}

	return result(req.ID, &sdk.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    &sdk.ServerCapabilities{Tools: &sdk.ToolCapabilities{}},
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	})
}

// handleToolsCall handles tools/call requests. Tool failures are part of the
// result; only malformed params are JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, sess *session.Session, req *JSONRPCRequest) *JSONRPCResponse {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return rpcError(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	res := sess.Invoke(ctx, params.Name, params.Arguments)

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"session_id", sess.ID,
		"is_error", res.IsError,
	)
	return result(req.ID, res)
}

// parseMessages decodes a single message or a non-empty batch.
func parseMessages(body []byte) ([]*JSONRPCRequest, bool, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []*JSONRPCRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, true, err
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("empty batch")
		}
		for _, req := range reqs {
			if req == nil {
				return nil, true, errors.New("null batch entry")
			}
		}
		return reqs, true, nil
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, false, err
	}
	return []*JSONRPCRequest{&req}, false, nil
}

func result(id json.RawMessage, v any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: v}
}

func rpcError(id json.RawMessage, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}}
}

// sendJSONRPCError sends a JSON-RPC error response with the given HTTP status.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, r *http.Request, status int, id json.RawMessage, code int, message string) {
	s.writeMessage(w, r, status, rpcError(id, code, message))
}
