// ABOUTME: HTTP bearer authentication for API endpoints
// ABOUTME: Extracts the token, resolves the identity and answers failures with a WWW-Authenticate challenge

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// unauthorizedBody is the only body ever returned for a failed credential.
const unauthorizedBody = `{"error":"invalid token"}`

// IdentityResolver resolves bearer tokens. *Resolver implements it.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Challenge renders the WWW-Authenticate header sent with a 401.
type Challenge struct {
	Realm               string
	AuthorizationServer string
	// ResourceMetadata is the absolute URL of the protected resource metadata document.
	ResourceMetadata string
}

// Header returns the header value. withError adds error="invalid_token",
// which is only appropriate when a token was actually presented.
func (c Challenge) Header(withError bool) string {
	realm := c.Realm
	if realm == "" {
		realm = "ward"
	}
	parts := []string{fmt.Sprintf("Bearer realm=%q", realm)}
	if withError {
		parts = append(parts, `error="invalid_token"`)
	}
	if c.AuthorizationServer != "" {
		parts = append(parts, fmt.Sprintf("authorization_server=%q", c.AuthorizationServer))
	}
	if c.ResourceMetadata != "" {
		parts = append(parts, fmt.Sprintf("resource_metadata=%q", c.ResourceMetadata))
	}
	return strings.Join(parts, ", ")
}

// WriteUnauthorized answers 401 with the challenge header and the generic body.
func (c Challenge) WriteUnauthorized(w http.ResponseWriter, tokenPresented bool) {
	w.Header().Set("WWW-Authenticate", c.Header(tokenPresented))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerToken returns the request's bearer token, or "" when absent or malformed.
func BearerToken(r *http.Request) string {
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// RequireIdentity creates an HTTP middleware that resolves the bearer token and
// adds the Identity to the request context. Failures get a 401 challenge.
func RequireIdentity(resolver IdentityResolver, challenge Challenge) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				challenge.WriteUnauthorized(w, token != "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
