// Package gateway orchestrates the ward-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the ward-gateway server.
// It owns the store, the credential resolver, the tool catalog, the session
// registry and the HTTP (and optional gRPC health) servers.
//
// # Wiring
//
//	store      -> auth.Directory for introspection linking, tool handlers
//	resolver   -> signed token strategy, then introspection
//	catalog    -> builtins.TasksPack + builtins.LinksPack
//	registry   -> one tools.Dispatcher per session, bound to its owner
//	mcp.Server -> /mcp, behind auth.RequireIdentity
//
// The session.ConnTracker is installed on the http.Server so that sessions
// die with the TCP connection that created them.
//
// # HTTP Endpoints
//
//   - POST|GET|DELETE /mcp - MCP Streamable HTTP endpoint
//   - GET /.well-known/oauth-protected-resource[/mcp] - resource metadata
//   - GET /api/me - caller identity and account
//   - GET /api/lists - lists with open task counts
//   - GET /api/tasks?listId=&status= - tasks, listId=inbox for unlisted tasks
//   - GET /api/links?tag= - stashed links
//   - GET /api/stats - task and link counters
//   - GET /health - liveness
//   - GET /health/ready - readiness (store ping)
//
// # gRPC Health
//
// When server.grpc_addr is set (or Tailscale is enabled, on :50051) the
// gateway serves grpc.health.v1.Health. The status flips to NOT_SERVING
// while the store stops answering pings.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	err = gw.Run(ctx) // blocks; shuts down when ctx is canceled
package gateway
