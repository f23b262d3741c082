// ABOUTME: Signed JWT verification strategy and token minting
// ABOUTME: Verifies signature, expiry, issuer and audience against a KeySet

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrMissingSubject  = errors.New("missing sub claim")
	ErrMintUnsupported = errors.New("minting requires an HMAC key set")
)

// clockSkew tolerated on exp/nbf/iat.
const clockSkew = 30 * time.Second

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SignedTokenVerifier treats the bearer token as a self-contained JWT.
type SignedTokenVerifier struct {
	keys     KeySet
	issuer   string
	audience string
}

// NewSignedTokenVerifier creates a verifier. Empty issuer or audience skip
// the respective claim check.
func NewSignedTokenVerifier(keys KeySet, issuer, audience string) *SignedTokenVerifier {
	return &SignedTokenVerifier{keys: keys, issuer: issuer, audience: audience}
}

// Name implements Verifier.
func (v *SignedTokenVerifier) Name() string {
	return "signed"
}

// Verify validates the token and builds the identity from its claims.
func (v *SignedTokenVerifier) Verify(ctx context.Context, token string) Outcome {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.keys.Algorithms()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	}, opts...)
	if err != nil {
		return Failure(ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return Failure(ErrInvalidCredential, ErrMissingSubject)
	}

	return Success(Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Provider:    v.Name(),
	})
}

// Mint issues an HS256 token for id that this verifier will accept.
func (v *SignedTokenVerifier) Mint(id Identity, ttl time.Duration) (string, error) {
	static, ok := v.keys.(*StaticKeySet)
	if !ok {
		return "", ErrMintUnsupported
	}
	if id.UserID == "" {
		return "", ErrMissingSubject
	}

	now := time.Now()
	claims := tokenClaims{
		Email: id.Email,
		Name:  id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(static.secret)
}
