package authz

import (
	"context"

	"github.com/jamestelfer/casting-gate/internal/audit"
	"github.com/jamestelfer/casting-gate/internal/bearer"
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/jamestelfer/casting-gate/internal/jwt"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jamestelfer/casting-gate/internal/authz"

// Verifier verifies a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*jwt.Claims, error)
}

// Gate composes header extraction, token verification and the permission
// check. Every stage fails fast: the first failure is returned and nothing
// after it runs.
type Gate struct {
	verifier  Verifier
	decisions metric.Int64Counter
}

type GateOption func(*gateOptions)

type gateOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider sets the provider for the gate's metrics. The global
// provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) GateOption {
	return func(o *gateOptions) {
		o.meterProvider = provider
	}
}

func NewGate(verifier Verifier, opts ...GateOption) (*Gate, error) {
	o := gateOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	decisions, err := o.meterProvider.
		Meter(instrumentationName).
		Int64Counter(
			"authz.decisions",
			metric.WithDescription("Authorization decisions made for protected operations"),
			metric.WithUnit("{decision}"),
		)
	if err != nil {
		return nil, err
	}

	return &Gate{
		verifier:  verifier,
		decisions: decisions,
	}, nil
}

// Authorize checks the authorization header value against the required
// permission, returning the verified claims on success. Failures are always
// a failure.Failure.
func (g *Gate) Authorize(ctx context.Context, header, permission string) (*jwt.Claims, error) {
	token, err := bearer.Extract(header)
	if err != nil {
		return nil, g.record(ctx, permission, nil, err)
	}

	return g.authorizeToken(ctx, token, permission)
}

func (g *Gate) authorizeToken(ctx context.Context, token, permission string) (*jwt.Claims, error) {
	claims, err := g.verifier.Verify(ctx, token)
	if err == nil {
		err = CheckPermission(claims, permission)
	}

	if err != nil {
		return nil, g.record(ctx, permission, claims, err)
	}

	return claims, g.record(ctx, permission, claims, nil)
}

// record notes the decision in the audit entry, metrics and log, returning
// err unchanged.
func (g *Gate) record(ctx context.Context, permission string, claims *jwt.Claims, err error) error {
	entry := audit.Log(ctx)
	entry.RequiredPermission = permission
	entry.Authorized = err == nil

	if claims != nil {
		entry.AuthSubject = claims.Subject
		entry.AuthIssuer = claims.Issuer
		entry.AuthAudience = claims.Audience
		entry.AuthExpirySecs = claims.Expiry.Unix()
		entry.Permissions = claims.Permissions
	}

	outcome := "granted"
	kind := failure.KindOf(err)

	if err != nil {
		outcome = "denied"
		entry.FailureKind = kind.String()
		entry.Error = err.Error()
	}

	g.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("authz.outcome", outcome),
		attribute.String("authz.failure", kind.String()),
		attribute.String("authz.permission", permission),
	))

	log := zerolog.Ctx(ctx)
	switch {
	case err == nil:
		log.Debug().Str("permission", permission).Str("sub", claims.Subject).Msg("authorized")
	case kind == failure.KeySourceUnavailable || kind == failure.Unknown:
		log.Warn().Err(err).Str("permission", permission).Str("failure", kind.String()).Msg("authorization could not be completed")
	default:
		log.Info().Err(err).Str("permission", permission).Str("failure", kind.String()).Msg("authorization denied")
	}

	return err
}

// Protect wraps op so that it is only invoked for a caller whose
// authorization header grants permission. The result and error of op are
// returned unchanged; op is never invoked if authorization fails.
func Protect[T any](g *Gate, permission string, op func(ctx context.Context, claims *jwt.Claims) (T, error)) func(ctx context.Context, header string) (T, error) {
	return func(ctx context.Context, header string) (T, error) {
		claims, err := g.Authorize(ctx, header, permission)
		if err != nil {
			var zero T
			return zero, err
		}

		return op(ctx, claims)
	}
}
