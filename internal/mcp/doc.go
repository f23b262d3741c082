// Package mcp serves the Model Context Protocol over Streamable HTTP.
//
// # Endpoint
//
// One path, /mcp, handles three methods:
//
//   - POST: a JSON-RPC 2.0 message or batch. Notifications are accepted
//     with 202.
//   - GET: with Accept: text/event-stream, a keep-alive stream for a live
//     session. The session is removed when the stream ends.
//   - DELETE: ends a session. Only its owner may do this.
//
// Every request is authenticated first with auth.RequireIdentity. A failed
// credential gets 401 and a WWW-Authenticate challenge and never reaches
// the session registry.
//
// # Sessions
//
// The session id travels in the sessionId query parameter or the
// Mcp-Session-Id header. initialize always creates a session and returns its
// id in Mcp-Session-Id. A live id is reused if the caller owns it (403
// otherwise). An unknown id, for example one whose connection has closed,
// gets a new session with a new id. A request with no id runs on an
// ephemeral session that is never stored.
//
// # Methods
//
//	initialize   protocol handshake
//	ping         liveness
//	tools/list   the session's tool descriptors
//	tools/call   run a tool; failures come back as isError results
//
// Responses are a single JSON body, or a single "message" SSE event when the
// Accept header prefers text/event-stream.
package mcp
