// Package session keeps the live MCP sessions of the gateway.
//
// A Session binds one caller identity to a tools.Dispatcher. The Registry
// stores sessions in 16 lock-sharded maps keyed by session id, so lookups on
// different sessions never contend on one mutex.
//
// # Lifecycle
//
//   - GetOrCreate returns a live session unchanged. An unknown or stale id
//     gets a brand new session under a freshly generated id.
//   - Ephemeral builds a session for one call without registering it.
//   - A session belongs to the connection that created it. ConnTracker hooks
//     http.Server and calls RemoveConn when that connection closes.
//   - With Options.IdleTTL set, a background sweep evicts sessions that have
//     not served a request within the TTL.
//
// Removing a session never cancels calls already running on it.
package session
