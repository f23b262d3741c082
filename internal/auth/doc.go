// Package auth resolves bearer tokens into caller identities for ward-gateway.
//
// # Strategies
//
// A Resolver tries an ordered list of Verifier strategies and stops at the
// first success:
//
//   - SignedTokenVerifier: the token is a JWT. The signature is checked
//     against a KeySet (JWKSKeySet for a provider's published keys,
//     StaticKeySet for an HMAC secret), then exp, iss and aud. The identity
//     comes straight from the claims.
//
//   - IntrospectionVerifier: the token is opaque. The authorization server's
//     introspection endpoint (RFC 7662 or Google tokeninfo style) reports
//     sub, aud and azp. Either aud or azp must equal the configured client id,
//     which blocks tokens issued to other clients. The subject is then linked
//     to an account through a Directory, by provider external id first and
//     by email second. Accounts are never created here.
//
// # Errors
//
// Rejections carry a kind (ErrMissingCredential, ErrInvalidCredential,
// ErrAudienceMismatch, ErrIdentityNotLinked) inside a *ResolveError. The kind
// and each strategy's cause are logged at WARN with a token fingerprint. HTTP
// callers only ever see a 401 with {"error":"invalid token"} and a
// WWW-Authenticate challenge naming the authorization server.
//
// # HTTP
//
//	handler := auth.RequireIdentity(resolver, challenge)(mux)
//
// Handlers read the caller with FromContext or MustFromContext.
package auth
