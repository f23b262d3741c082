// ABOUTME: OAuth 2.0 protected resource metadata (RFC 9728) for MCP clients
// ABOUTME: Tells clients which authorization server issues tokens for /mcp

package gateway

import (
	"net/http"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/oauthex"
)

const protectedResourcePath = "/.well-known/oauth-protected-resource"

// protectedResourceMetadata describes the MCP endpoint as an OAuth resource.
func (g *Gateway) protectedResourceMetadata() *oauthex.ProtectedResourceMetadata {
	return &oauthex.ProtectedResourceMetadata{
		Resource:               g.publicURL + "/mcp",
		AuthorizationServers:   g.config.Auth.AuthorizationServers,
		ScopesSupported:        g.config.Auth.Scopes,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "ward-gateway",
	}
}

// registerDiscoveryRoutes serves the metadata at the root well-known path and
// at the path-suffixed form clients derive from the /mcp resource URL.
func (g *Gateway) registerDiscoveryRoutes(mux *http.ServeMux) {
	h := mcpauth.ProtectedResourceMetadataHandler(g.protectedResourceMetadata())
	mux.Handle(protectedResourcePath, h)
	mux.Handle(protectedResourcePath+"/mcp", h)
}
