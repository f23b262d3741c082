// ABOUTME: Credential resolution cascade over an ordered list of verifier strategies
// ABOUTME: Short-circuits on first success and logs every rejection server-side only

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolver turns a bearer token into an Identity by trying each verifier in
// order. Once one succeeds the rest are never consulted.
type Resolver struct {
	verifiers []Verifier
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewResolver creates a resolver over verifiers, tried in the given order.
func NewResolver(logger *slog.Logger, verifiers ...Verifier) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		verifiers: verifiers,
		logger:    logger.With("component", "auth"),
		tracer:    otel.Tracer("github.com/2389/ward-gateway/internal/auth"),
	}
}

// Strategies returns the configured strategy names in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.verifiers))
	for i, v := range r.verifiers {
		names[i] = v.Name()
	}
	return names
}

// Resolve returns the caller identity for token or a *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	ctx, span := r.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	if token == "" {
		span.SetStatus(codes.Error, ErrMissingCredential.Error())
		return Identity{}, &ResolveError{Kind: ErrMissingCredential}
	}

	fp := Fingerprint(token)
	span.SetAttributes(attribute.String("auth.token_fingerprint", fp))

	rerr := &ResolveError{Kind: ErrInvalidCredential}
	for _, v := range r.verifiers {
		out := r.try(ctx, v, token)
		if out.OK() {
			span.SetAttributes(
				attribute.String("auth.strategy", v.Name()),
				attribute.String("auth.user_id", out.Identity.UserID),
			)
			r.logger.Debug("credential resolved", "strategy", v.Name(), "user_id", out.Identity.UserID, "token_fp", fp)
			return out.Identity, nil
		}

		r.logger.Warn("credential strategy rejected token",
			"strategy", v.Name(),
			"kind", out.Kind,
			"error", out.Cause,
			"token_fp", fp,
		)
		rerr.Kind = out.Kind
		rerr.Failures = append(rerr.Failures, StrategyFailure{Strategy: v.Name(), Kind: out.Kind, Cause: out.Cause})
	}

	span.SetStatus(codes.Error, rerr.Kind.Error())
	return Identity{}, rerr
}

// try runs one verifier, turning panics and unclassified kinds into
// ErrInvalidCredential.
func (r *Resolver) try(ctx context.Context, v Verifier, token string) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Failure(ErrInvalidCredential, fmt.Errorf("panic in %s verifier: %v", v.Name(), p))
		}
	}()

	out = v.Verify(ctx, token)
	if out.OK() && out.Identity.IsZero() {
		return Failure(ErrInvalidCredential, ErrMissingSubject)
	}
	if !out.OK() && !isKnownKind(out.Kind) {
		return Failure(ErrInvalidCredential, out.Kind)
	}
	return out
}

func isKnownKind(err error) bool {
	return errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrAudienceMismatch) ||
		errors.Is(err, ErrIdentityNotLinked) ||
		errors.Is(err, ErrMissingCredential)
}
