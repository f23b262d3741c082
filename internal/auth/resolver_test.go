// ABOUTME: Tests for the credential resolution cascade
// ABOUTME: Covers short-circuiting, kind selection and panic containment

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ward-gateway/internal/store"
)

// fakeVerifier returns a fixed outcome and counts calls.
type fakeVerifier struct {
	name    string
	out     Outcome
	calls   int
	explode bool
}

func (f *fakeVerifier) Name() string { return f.name }

func (f *fakeVerifier) Verify(ctx context.Context, token string) Outcome {
	f.calls++
	if f.explode {
		panic("verifier exploded")
	}
	return f.out
}

func TestResolver_MissingCredential(t *testing.T) {
	primary := &fakeVerifier{name: "primary", out: Success(Identity{UserID: "u1"})}
	r := NewResolver(slog.Default(), primary)

	_, err := r.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, 0, primary.calls)
}

func TestResolver_ShortCircuitsOnFirstSuccess(t *testing.T) {
	primary := &fakeVerifier{name: "primary", out: Success(Identity{UserID: "u1", Provider: "primary"})}
	secondary := &fakeVerifier{name: "secondary", out: Success(Identity{UserID: "u2"})}
	r := NewResolver(slog.Default(), primary, secondary)

	id, err := r.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestResolver_FallsThrough(t *testing.T) {
	primary := &fakeVerifier{name: "primary", out: Failure(ErrInvalidCredential, errors.New("bad signature"))}
	secondary := &fakeVerifier{name: "secondary", out: Success(Identity{UserID: "u2"})}
	r := NewResolver(slog.Default(), primary, secondary)

	id, err := r.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
}

func TestResolver_AllFailUsesLastKind(t *testing.T) {
	primary := &fakeVerifier{name: "primary", out: Failure(ErrInvalidCredential, errors.New("bad signature"))}
	secondary := &fakeVerifier{name: "secondary", out: Failure(ErrAudienceMismatch, errors.New("aud=other"))}
	r := NewResolver(slog.Default(), primary, secondary)

	_, err := r.Resolve(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAudienceMismatch)

	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
	require.Len(t, rerr.Failures, 2)
	assert.Equal(t, "primary", rerr.Failures[0].Strategy)
	assert.Contains(t, rerr.Error(), "bad signature")
	assert.Contains(t, rerr.Error(), "aud=other")
}

func TestResolver_PanicIsInvalidCredential(t *testing.T) {
	boom := &fakeVerifier{name: "boom", explode: true}
	r := NewResolver(slog.Default(), boom)

	_, err := r.Resolve(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Contains(t, err.Error(), "verifier exploded")
}

func TestResolver_UnclassifiedKindBecomesInvalid(t *testing.T) {
	odd := &fakeVerifier{name: "odd", out: Outcome{Kind: errors.New("weird")}}
	r := NewResolver(slog.Default(), odd)

	_, err := r.Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolver_NoStrategies(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolver_SignedTokenNeverReachesIntrospection(t *testing.T) {
	srv := newIntrospectionServer(t, http.StatusOK, map[string]any{"active": true, "sub": "x", "aud": testClientID})

	signed := NewSignedTokenVerifier(NewStaticKeySet(testSecret), "", "")
	introspect := newTestIntrospector(srv.URL, StyleRFC7662, store.NewMemoryStore(), true)
	r := NewResolver(slog.Default(), signed, introspect)

	token, err := signed.Mint(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestResolver_OpaqueTokenFallsBackToIntrospection(t *testing.T) {
	dir := store.NewMemoryStore()
	acct := seedAccount(t, dir, "dana@example.com", "google.com", "g-dana")
	srv := newIntrospectionServer(t, http.StatusOK, map[string]any{"active": true, "sub": "g-dana", "aud": testClientID})

	r := NewResolver(slog.Default(),
		NewSignedTokenVerifier(NewStaticKeySet(testSecret), "", ""),
		newTestIntrospector(srv.URL, StyleRFC7662, dir, true),
	)

	id, err := r.Resolve(context.Background(), "opaque-access-token")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id.UserID)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "", Fingerprint(""))
	fp := Fingerprint("secret-token")
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint("secret-token"))
	assert.NotEqual(t, fp, Fingerprint("secret-token2"))
	assert.NotContains(t, fp, "secret")
}
