// Package jwt verifies signed bearer tokens against the issuer's published
// keys and decodes their claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/jamestelfer/casting-gate/internal/jwks"
	"github.com/rs/zerolog"
)

// Only asymmetric RSA algorithms can be verified with a published key set.
// HMAC and "none" are never acceptable, whatever the configuration says.
var supportedAlgorithms = map[string]jose.SignatureAlgorithm{
	"RS256": jose.RS256,
	"RS384": jose.RS384,
	"RS512": jose.RS512,
	"PS256": jose.PS256,
	"PS384": jose.PS384,
	"PS512": jose.PS512,
}

// Config is the verification configuration. It is supplied at construction
// and never read from the environment by this package.
type Config struct {
	// Domain is the issuer domain, e.g. "casting.eu.auth0.com".
	Domain string

	// Audience must be present in the token's "aud" claim.
	Audience string

	// Algorithms is the set of signing algorithms accepted for a token.
	Algorithms []string

	// Leeway is the clock skew tolerated when checking exp, nbf and iat.
	Leeway time.Duration
}

// Issuer is the exact "iss" value expected in a token.
func (c Config) Issuer() string {
	return "https://" + c.Domain + "/"
}

// Verifier verifies tokens issued for a single domain and audience.
type Verifier struct {
	cfg        Config
	algorithms []jose.SignatureAlgorithm
	keys       jwks.Source
	now        func() time.Time
}

// NewVerifier checks the configuration and returns a Verifier that resolves
// signing keys from keys.
func NewVerifier(cfg Config, keys jwks.Source) (*Verifier, error) {
	if cfg.Domain == "" {
		return nil, errors.New("issuer domain is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("leeway cannot be negative, got %s", cfg.Leeway)
	}
	if keys == nil {
		return nil, errors.New("a key set source is required")
	}
	if len(cfg.Algorithms) == 0 {
		return nil, errors.New("at least one accepted algorithm is required")
	}

	algorithms := make([]jose.SignatureAlgorithm, 0, len(cfg.Algorithms))
	for _, name := range cfg.Algorithms {
		alg, ok := supportedAlgorithms[name]
		if !ok {
			return nil, fmt.Errorf("unsupported signing algorithm %q: only RS256, RS384, RS512, PS256, PS384 and PS512 are accepted", name)
		}
		algorithms = append(algorithms, alg)
	}

	return &Verifier{
		cfg:        cfg,
		algorithms: algorithms,
		keys:       keys,
		now:        time.Now,
	}, nil
}

// Verify checks the token signature with the matching published key, then
// validates expiry, audience and issuer. Checks happen in that order, so an
// expired token is reported as Expired even if its audience is also wrong.
// Every failure is a failure.Failure.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	// the token structure is checked before any key is fetched
	tok, err := josejwt.ParseSigned(token, v.algorithms)
	if err != nil {
		return nil, failure.Wrap(failure.MalformedToken, err)
	}

	header := tok.Headers[0]
	if header.KeyID == "" {
		return nil, failure.Wrapf(failure.MalformedToken, "token header has no key id")
	}

	key, err := v.resolve(ctx, header.KeyID)
	if err != nil {
		return nil, err
	}

	if key.Algorithm != "" && key.Algorithm != header.Algorithm {
		return nil, failure.Wrapf(failure.MalformedToken, "key %q is for %s, token is signed with %s", key.KeyID, key.Algorithm, header.Algorithm)
	}

	pub, err := key.PublicKey()
	if err != nil {
		return nil, failure.Wrap(failure.KeyNotFound, err)
	}

	var (
		registered josejwt.Claims
		custom     struct {
			Permissions *[]string `json:"permissions"`
		}
		raw map[string]any
	)
	if err := tok.Claims(pub, &registered, &custom, &raw); err != nil {
		return nil, failure.Wrap(failure.MalformedToken, err)
	}

	if err := v.validate(registered); err != nil {
		return nil, err
	}

	claims := &Claims{
		Subject:  registered.Subject,
		Issuer:   registered.Issuer,
		Audience: []string(registered.Audience),
		Expiry:   registered.Expiry.Time(),
		Raw:      raw,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time()
	}
	if custom.Permissions != nil {
		claims.Permissions = *custom.Permissions
		if claims.Permissions == nil {
			claims.Permissions = []string{}
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("sub", claims.Subject).
		Str("kid", header.KeyID).
		Strs("permissions", claims.Permissions).
		Msg("token verified")

	return claims, nil
}

// resolve finds the key for kid. If the key is not in the current set and the
// source holds keys between calls, the source is asked to refresh once: this
// is how keys rotated in by the issuer become visible before the held set
// expires.
func (v *Verifier) resolve(ctx context.Context, kid string) (jwks.SigningKey, error) {
	key, err := v.resolveOnce(ctx, kid)
	if failure.KindOf(err) != failure.KeyNotFound {
		return key, err
	}

	inv, ok := v.keys.(jwks.Invalidator)
	if !ok || !inv.Invalidate(ctx) {
		return key, err
	}

	zerolog.Ctx(ctx).Info().Str("kid", kid).Msg("key id not found, key set refreshed")

	return v.resolveOnce(ctx, kid)
}

func (v *Verifier) resolveOnce(ctx context.Context, kid string) (jwks.SigningKey, error) {
	ks, err := v.keys.KeySet(ctx)
	if err != nil {
		if _, ok := failure.As(err); !ok {
			err = failure.Wrap(failure.KeySourceUnavailable, err)
		}
		return jwks.SigningKey{}, err
	}

	return ks.Resolve(kid)
}

func (v *Verifier) validate(c josejwt.Claims) error {
	if c.Expiry == nil {
		return failure.Wrapf(failure.MalformedToken, "token has no expiry")
	}

	now := v.now()

	// expiry first: an expired token is reported as such regardless of what
	// else is wrong with it
	if now.After(c.Expiry.Time().Add(v.cfg.Leeway)) {
		return failure.Wrap(failure.Expired, josejwt.ErrExpired)
	}

	// iat is not compared with the clock: an issuer whose clock runs ahead
	// would otherwise have its fresh tokens refused
	c.IssuedAt = nil

	err := c.ValidateWithLeeway(josejwt.Expected{
		Issuer:      v.cfg.Issuer(),
		AnyAudience: josejwt.Audience{v.cfg.Audience},
		Time:        now,
	}, v.cfg.Leeway)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, josejwt.ErrExpired):
		return failure.Wrap(failure.Expired, err)
	default:
		// issuer, audience and not-before
		return failure.Wrap(failure.ClaimsMismatch, err)
	}
}
