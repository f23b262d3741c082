// Package tools holds the tool catalog and the per-session dispatcher.
//
// A Catalog is built once from Packs. Each session gets its own Dispatcher
// bound to the session owner; handlers receive that identity as an argument
// and keep no state of their own.
//
// Dispatcher.Invoke always returns an *mcp.CallToolResult. Failures are
// results with IsError set:
//
//   - unknown tool: message with a "did you mean" hint
//   - schema mismatch: *ValidationError text
//   - store.ErrNotFound, store.ErrForbidden, ErrInvalidArgument: the
//     handler's message
//   - anything else, including panics: a generic message; the cause is logged
package tools
