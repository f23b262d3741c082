// ABOUTME: Caller identity, credential error kinds and the verifier strategy contract
// ABOUTME: Verifiers return tagged outcomes that the Resolver folds into one result

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Credential error kinds. All of them surface to HTTP callers as one generic
// 401; the kind is kept for server-side diagnostics only.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrAudienceMismatch  = errors.New("audience mismatch")
	ErrIdentityNotLinked = errors.New("identity not linked")
)

// Identity is the canonical caller produced by the Resolver.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Provider    string `json:"provider"` // name of the strategy that produced it
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// Verifier is one credential strategy.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, token string) Outcome
}

// Outcome is the tagged result of a single strategy. Kind is nil on success.
type Outcome struct {
	Identity Identity
	Kind     error
	Cause    error
}

// OK reports whether the strategy succeeded.
func (o Outcome) OK() bool {
	return o.Kind == nil
}

// Success builds a successful outcome.
func Success(id Identity) Outcome {
	return Outcome{Identity: id}
}

// Failure builds a failed outcome of the given kind.
func Failure(kind, cause error) Outcome {
	if kind == nil {
		kind = ErrInvalidCredential
	}
	return Outcome{Kind: kind, Cause: cause}
}

// StrategyFailure records why one strategy rejected a token.
type StrategyFailure struct {
	Strategy string
	Kind     error
	Cause    error
}

// ResolveError is returned when no strategy accepted the token.
type ResolveError struct {
	Kind     error
	Failures []StrategyFailure
}

func (e *ResolveError) Error() string {
	if len(e.Failures) == 0 {
		return e.Kind.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Cause != nil {
			parts = append(parts, fmt.Sprintf("%s: %v (%v)", f.Strategy, f.Kind, f.Cause))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %v", f.Strategy, f.Kind))
		}
	}
	return e.Kind.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}
