// ABOUTME: Gateway orchestrates the HTTP server, MCP endpoint, session registry and store
// ABOUTME: Handles wiring, listener setup (TCP or Tailscale), and graceful shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/builtins"
	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/linkmeta"
	"github.com/2389/ward-gateway/internal/mcp"
	"github.com/2389/ward-gateway/internal/session"
	"github.com/2389/ward-gateway/internal/store"
	"github.com/2389/ward-gateway/internal/tools"
)

// Version is reported in the MCP initialize result. Overridden at build time.
var Version = "dev"

// Gateway is the main ward-gateway server that owns every component.
type Gateway struct {
	config      *config.Config
	store       store.Store
	resolver    *auth.Resolver
	catalog     *tools.Catalog
	registry    *session.Registry
	conns       *session.ConnTracker
	mcpServer   *mcp.Server
	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server
	publicURL   string
	logger      *slog.Logger
}

// initStore opens the configured SQLite database.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// buildResolver assembles the credential strategies in priority order:
// self-contained signed tokens first, then introspection.
func buildResolver(cfg *config.Config, dir auth.Directory, logger *slog.Logger) (*auth.Resolver, error) {
	var verifiers []auth.Verifier

	signed := cfg.Auth.Signed
	switch {
	case signed.JWKSURL != "":
		keys := auth.NewJWKSKeySet(signed.JWKSURL, signed.RefreshInterval, nil, logger)
		verifiers = append(verifiers, auth.NewSignedTokenVerifier(keys, signed.Issuer, signed.Audience))
		logger.Info("signed token strategy enabled", "jwks_url", signed.JWKSURL)
	case signed.HMACSecret != "":
		if len(signed.HMACSecret) < 32 {
			return nil, errors.New("auth.signed.hmac_secret must be at least 32 bytes")
		}
		keys := auth.NewStaticKeySet([]byte(signed.HMACSecret))
		verifiers = append(verifiers, auth.NewSignedTokenVerifier(keys, signed.Issuer, signed.Audience))
		logger.Info("signed token strategy enabled", "keys", "hmac")
	}

	intro := cfg.Auth.Introspection
	if intro.URL != "" {
		verifiers = append(verifiers, auth.NewIntrospectionVerifier(auth.IntrospectionConfig{
			URL:           intro.URL,
			Style:         intro.Style,
			ClientID:      intro.ClientID,
			ClientSecret:  intro.ClientSecret,
			Provider:      intro.Provider,
			EmailFallback: intro.EmailFallbackEnabled(),
			Timeout:       intro.Timeout,
		}, dir))
		logger.Info("introspection strategy enabled", "url", intro.URL, "style", intro.Style)
	}

	if len(verifiers) == 0 {
		return nil, errors.New("no credential strategy configured")
	}
	return auth.NewResolver(logger, verifiers...), nil
}

// determinePublicURL resolves the externally visible base URL.
// Priority: server.public_url > tailscale hostname > http_addr (with
// localhost standing in for a missing or wildcard host).
func determinePublicURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return strings.TrimRight(cfg.Server.PublicURL, "/")
	}
	if cfg.Tailscale.Enabled {
		return "https://" + cfg.Tailscale.Hostname
	}
	return cfg.Server.LocalURL()
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := newWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// newWithStore wires every component around an already open store.
func newWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	resolver, err := buildResolver(cfg, s, logger.With("component", "auth"))
	if err != nil {
		return nil, err
	}

	fetcher := linkmeta.NewFetcher(cfg.Links.UserAgent, cfg.Links.FetchTimeout, nil)
	catalog, err := builtins.NewCatalog(s, fetcher, linkmeta.Extractive{}, logger.With("component", "links"))
	if err != nil {
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	dispatchLogger := logger.With("component", "dispatcher")
	callTimeout := cfg.Session.CallTimeout
	registry := session.NewRegistry(func(owner auth.Identity) *tools.Dispatcher {
		return tools.NewDispatcher(catalog, owner, dispatchLogger, callTimeout)
	}, session.Options{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
		Logger:      logger.With("component", "sessions"),
	})

	publicURL := determinePublicURL(cfg)
	challenge := auth.Challenge{
		Realm:            "ward",
		ResourceMetadata: publicURL + protectedResourcePath,
	}
	if len(cfg.Auth.AuthorizationServers) > 0 {
		challenge.AuthorizationServer = cfg.Auth.AuthorizationServers[0]
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:      registry,
		Resolver:      resolver,
		Challenge:     challenge,
		Logger:        logger,
		ServerVersion: Version,
		Instructions:  serverInstructions,
	})
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		resolver:  resolver,
		catalog:   catalog,
		registry:  registry,
		conns:     session.NewConnTracker(registry),
		mcpServer: mcpServer,
		publicURL: publicURL,
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health and discovery endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	gw.registerDiscoveryRoutes(mux)

	gw.registerAPIRoutes(mux, auth.RequireIdentity(resolver, challenge))
	mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	gw.conns.Install(gw.httpServer)

	if cfg.Server.GRPCAddr != "" || cfg.Tailscale.Enabled {
		gw.grpcServer, gw.health = newHealthServer()
	}

	gw.logger.Info("gateway configured",
		"tools", catalog.Len(),
		"strategies", resolver.Strategies(),
		"mcp_endpoint", publicURL+"/mcp",
	)
	return gw, nil
}

const serverInstructions = "Personal tasks and link stash. Use get_lists and get_tasks to read, " +
	"create_task and stash_link to add. Every call acts on the authenticated user's own data."

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListeners creates standard TCP listeners for HTTP and, when
// configured, the gRPC health service.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning the error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if g.health != nil {
		go g.watchHealth(watchCtx, healthCheckInterval)
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ward-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners starts a tsnet node and listens on it.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs the node's address and the MCP URL it answers on.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	if dnsName != "" && g.config.Server.PublicURL == "" {
		g.logger.Info("MCP endpoint reachable on tailnet", "url", "https://"+dnsName+"/mcp")
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.registry.Len())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.grpcServer != nil {
		g.shutdownGRPCServer(ctx)
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.registry.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.registry.Len())
}
