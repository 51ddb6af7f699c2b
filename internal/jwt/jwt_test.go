package jwt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/jamestelfer/casting-gate/internal/jwks"
	"github.com/jamestelfer/casting-gate/internal/jwt"
	"github.com/jamestelfer/casting-gate/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const audience = "casting-agency"

type fixture struct {
	issuer   *testhelpers.Issuer
	key      *jose.JSONWebKey
	verifier *jwt.Verifier
}

func setup(t *testing.T, cfgs ...func(*jwt.Config)) fixture {
	t.Helper()

	key := testhelpers.GenerateKey(t, "signing-key")
	issuer := testhelpers.NewIssuer(t, key)

	cfg := jwt.Config{
		Domain:     issuer.Domain(),
		Audience:   audience,
		Algorithms: []string{"RS256"},
	}
	for _, c := range cfgs {
		c(&cfg)
	}

	source := jwks.NewHTTPSource(jwks.URLForDomain(issuer.Domain()), jwks.WithClient(issuer.Client()))

	verifier, err := jwt.NewVerifier(cfg, source)
	require.NoError(t, err)

	return fixture{issuer: issuer, key: key, verifier: verifier}
}

func (f fixture) claims() josejwt.Claims {
	return josejwt.Claims{
		Subject:  "auth0|casting-director",
		Issuer:   f.issuer.URL(),
		Audience: josejwt.Audience{audience},
	}
}

func TestVerify_Succeeds(t *testing.T) {
	f := setup(t)

	token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()), testhelpers.Permissions("get:movies", "post:movies"), map[string]any{"azp": "client-id"})

	claims, err := f.verifier.Verify(testhelpers.LoggedContext(t), token)

	require.NoError(t, err)
	assert.Equal(t, "auth0|casting-director", claims.Subject)
	assert.Equal(t, f.issuer.URL(), claims.Issuer)
	assert.Equal(t, []string{audience}, claims.Audience)
	assert.Equal(t, []string{"get:movies", "post:movies"}, claims.Permissions)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.Expiry, 5*time.Second)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, 5*time.Second)

	// the full claim set is kept, including claims not otherwise modelled
	assert.Equal(t, "client-id", claims.Raw["azp"])
	assert.Equal(t, "auth0|casting-director", claims.Raw["sub"])

	assert.Equal(t, 1, f.issuer.Fetches())
}

func TestVerify_AudienceAmongMany(t *testing.T) {
	f := setup(t)

	c := f.claims()
	c.Audience = josejwt.Audience{"https://casting.eu.auth0.com/userinfo", audience}
	token := testhelpers.Sign(t, f.key, testhelpers.Valid(c), testhelpers.Permissions())

	claims, err := f.verifier.Verify(context.Background(), token)

	require.NoError(t, err)
	assert.Len(t, claims.Audience, 2)
}

func TestVerify_Permissions(t *testing.T) {
	f := setup(t)

	t.Run("absent claim", func(t *testing.T) {
		token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()))

		claims, err := f.verifier.Verify(context.Background(), token)

		require.NoError(t, err)
		assert.Nil(t, claims.Permissions)
		assert.False(t, claims.HasPermissionsClaim())
	})

	t.Run("null claim", func(t *testing.T) {
		token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()), map[string]any{"permissions": nil})

		claims, err := f.verifier.Verify(context.Background(), token)

		require.NoError(t, err)
		assert.False(t, claims.HasPermissionsClaim())
	})

	t.Run("empty claim", func(t *testing.T) {
		token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()), testhelpers.Permissions())

		claims, err := f.verifier.Verify(context.Background(), token)

		require.NoError(t, err)
		assert.NotNil(t, claims.Permissions)
		assert.Empty(t, claims.Permissions)
		assert.True(t, claims.HasPermissionsClaim())
	})

	t.Run("wrong type", func(t *testing.T) {
		token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()), map[string]any{"permissions": "get:movies"})

		_, err := f.verifier.Verify(context.Background(), token)

		assert.Equal(t, failure.MalformedToken, failure.KindOf(err))
	})
}

func TestVerify_Failures(t *testing.T) {
	f := setup(t)

	otherKey := testhelpers.GenerateKey(t, "other-key")
	impostor := testhelpers.GenerateKey(t, "signing-key")
	noKid := testhelpers.GenerateKey(t, "")

	wrongAudience := f.claims()
	wrongAudience.Audience = josejwt.Audience{"someone-else"}

	noAudience := f.claims()
	noAudience.Audience = nil

	wrongIssuer := f.claims()
	wrongIssuer.Issuer = "https://" + f.issuer.Domain()

	notYet := testhelpers.Valid(f.claims())
	notYet.NotBefore = josejwt.NewNumericDate(time.Now().Add(10 * time.Minute))
	notYet.Expiry = josejwt.NewNumericDate(time.Now().Add(20 * time.Minute))

	noExpiry := f.claims()

	cases := []struct {
		name      string
		token     string
		expected  failure.Kind
		noFetches bool
	}{
		{
			name:     "unknown key id",
			token:    testhelpers.Sign(t, otherKey, testhelpers.Valid(f.claims())),
			expected: failure.KeyNotFound,
		},
		{
			name:     "expired",
			token:    testhelpers.Sign(t, f.key, testhelpers.Lapsed(f.claims())),
			expected: failure.Expired,
		},
		{
			name:     "expired takes precedence over audience",
			token:    testhelpers.Sign(t, f.key, testhelpers.Lapsed(wrongAudience)),
			expected: failure.Expired,
		},
		{
			name:     "wrong audience",
			token:    testhelpers.Sign(t, f.key, testhelpers.Valid(wrongAudience)),
			expected: failure.ClaimsMismatch,
		},
		{
			name:     "no audience",
			token:    testhelpers.Sign(t, f.key, testhelpers.Valid(noAudience)),
			expected: failure.ClaimsMismatch,
		},
		{
			name:     "issuer without trailing slash",
			token:    testhelpers.Sign(t, f.key, testhelpers.Valid(wrongIssuer)),
			expected: failure.ClaimsMismatch,
		},
		{
			name:     "not yet valid",
			token:    testhelpers.Sign(t, f.key, notYet),
			expected: failure.ClaimsMismatch,
		},
		{
			name:     "no expiry",
			token:    testhelpers.Sign(t, f.key, noExpiry),
			expected: failure.MalformedToken,
		},
		{
			name:     "signed by a different key with the same id",
			token:    testhelpers.Sign(t, impostor, testhelpers.Valid(f.claims())),
			expected: failure.MalformedToken,
		},
		{
			name:      "not a token",
			token:     "not-a-token",
			expected:  failure.MalformedToken,
			noFetches: true,
		},
		{
			name:      "two segments",
			token:     "eyJhbGciOiJSUzI1NiJ9.e30",
			expected:  failure.MalformedToken,
			noFetches: true,
		},
		{
			name:      "no key id",
			token:     testhelpers.Sign(t, noKid, testhelpers.Valid(f.claims())),
			expected:  failure.MalformedToken,
			noFetches: true,
		},
		{
			name:      "algorithm not accepted",
			token:     testhelpers.SignWith(t, jose.PS256, f.key, testhelpers.Valid(f.claims())),
			expected:  failure.MalformedToken,
			noFetches: true,
		},
		{
			name:      "symmetric algorithm",
			token:     signHMAC(t, testhelpers.Valid(f.claims())),
			expected:  failure.MalformedToken,
			noFetches: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := f.issuer.Fetches()

			claims, err := f.verifier.Verify(testhelpers.LoggedContext(t), tc.token)

			assert.Nil(t, claims)
			require.Error(t, err)

			fail, ok := failure.As(err)
			require.True(t, ok, "expected a failure, got %v", err)
			assert.Equal(t, tc.expected, fail.Kind)
			assert.Equal(t, tc.expected.Status(), fail.Status)

			if tc.noFetches {
				assert.Equal(t, before, f.issuer.Fetches(), "no key set fetch expected")
			}
		})
	}
}

func TestVerify_Leeway(t *testing.T) {
	f := setup(t, func(c *jwt.Config) { c.Leeway = time.Minute })

	c := f.claims()
	c.IssuedAt = josejwt.NewNumericDate(time.Now().Add(-10 * time.Minute))
	c.Expiry = josejwt.NewNumericDate(time.Now().Add(-30 * time.Second))
	token := testhelpers.Sign(t, f.key, c)

	_, err := f.verifier.Verify(context.Background(), token)

	assert.NoError(t, err)
}

func TestVerify_IssuedAtAheadOfClock(t *testing.T) {
	f := setup(t)

	// the issuer's clock runs a few seconds ahead; there is no leeway
	c := testhelpers.Valid(f.claims())
	issued := time.Now().Add(2 * time.Second)
	c.IssuedAt = josejwt.NewNumericDate(issued)
	token := testhelpers.Sign(t, f.key, c)

	claims, err := f.verifier.Verify(context.Background(), token)

	require.NoError(t, err)
	assert.WithinDuration(t, issued, claims.IssuedAt, time.Second)
}

func TestVerify_KeySourceUnavailable(t *testing.T) {
	f := setup(t)
	f.issuer.Fail(500)

	token := testhelpers.Sign(t, f.key, testhelpers.Valid(f.claims()))

	_, err := f.verifier.Verify(context.Background(), token)

	assert.Equal(t, failure.KeySourceUnavailable, failure.KindOf(err))
}

func TestVerify_PlainSourceErrorIsUnavailable(t *testing.T) {
	source := jwks.SourceFunc(func(ctx context.Context) (jwks.KeySet, error) {
		return jwks.KeySet{}, errors.New("disk on fire")
	})

	verifier, err := jwt.NewVerifier(jwt.Config{Domain: "example.com", Audience: audience, Algorithms: []string{"RS256"}}, source)
	require.NoError(t, err)

	key := testhelpers.GenerateKey(t, "kid")
	token := testhelpers.Sign(t, key, testhelpers.Valid(josejwt.Claims{Issuer: "https://example.com/", Audience: josejwt.Audience{audience}}))

	_, err = verifier.Verify(context.Background(), token)

	assert.Equal(t, failure.KeySourceUnavailable, failure.KindOf(err))
}

func TestVerify_DeclaredKeyAlgorithmMustMatch(t *testing.T) {
	key := testhelpers.GenerateKey(t, "kid")

	published := keySetFor(t, key).Keys[0]
	published.Algorithm = "RS512"

	source := jwks.SourceFunc(func(ctx context.Context) (jwks.KeySet, error) {
		return jwks.KeySet{Keys: []jwks.SigningKey{published}}, nil
	})

	verifier, err := jwt.NewVerifier(jwt.Config{Domain: "example.com", Audience: audience, Algorithms: []string{"RS256", "RS512"}}, source)
	require.NoError(t, err)

	token := testhelpers.Sign(t, key, testhelpers.Valid(josejwt.Claims{Issuer: "https://example.com/", Audience: josejwt.Audience{audience}}))

	_, err = verifier.Verify(context.Background(), token)

	assert.Equal(t, failure.MalformedToken, failure.KindOf(err))
}

func TestVerify_KeyRotation(t *testing.T) {
	t.Run("refreshes the cached set for an unknown key", func(t *testing.T) {
		original := testhelpers.GenerateKey(t, "original")
		rotated := testhelpers.GenerateKey(t, "rotated")
		issuer := testhelpers.NewIssuer(t, original)

		verifier := cachedVerifier(t, issuer, 0)
		claims := josejwt.Claims{Issuer: issuer.URL(), Audience: josejwt.Audience{audience}}

		_, err := verifier.Verify(context.Background(), testhelpers.Sign(t, original, testhelpers.Valid(claims)))
		require.NoError(t, err)

		issuer.Publish(original, rotated)

		_, err = verifier.Verify(testhelpers.LoggedContext(t), testhelpers.Sign(t, rotated, testhelpers.Valid(claims)))
		require.NoError(t, err)

		assert.Equal(t, 2, issuer.Fetches())
	})

	t.Run("refresh is rate limited", func(t *testing.T) {
		original := testhelpers.GenerateKey(t, "original")
		unknown := testhelpers.GenerateKey(t, "unknown")
		issuer := testhelpers.NewIssuer(t, original)

		verifier := cachedVerifier(t, issuer, time.Hour)
		claims := josejwt.Claims{Issuer: issuer.URL(), Audience: josejwt.Audience{audience}}

		_, err := verifier.Verify(context.Background(), testhelpers.Sign(t, original, testhelpers.Valid(claims)))
		require.NoError(t, err)

		for range 5 {
			_, err = verifier.Verify(context.Background(), testhelpers.Sign(t, unknown, testhelpers.Valid(claims)))
			assert.Equal(t, failure.KeyNotFound, failure.KindOf(err))
		}

		assert.Equal(t, 1, issuer.Fetches())
	})
}

func TestNewVerifier_Configuration(t *testing.T) {
	source := jwks.SourceFunc(func(ctx context.Context) (jwks.KeySet, error) { return jwks.KeySet{}, nil })
	valid := jwt.Config{Domain: "example.com", Audience: audience, Algorithms: []string{"RS256"}}

	cases := []struct {
		name   string
		mutate func(*jwt.Config)
		source jwks.Source
		err    string
	}{
		{"no domain", func(c *jwt.Config) { c.Domain = "" }, source, "issuer domain is required"},
		{"no audience", func(c *jwt.Config) { c.Audience = "" }, source, "audience is required"},
		{"no algorithms", func(c *jwt.Config) { c.Algorithms = nil }, source, "at least one accepted algorithm"},
		{"hmac", func(c *jwt.Config) { c.Algorithms = []string{"RS256", "HS256"} }, source, `unsupported signing algorithm "HS256"`},
		{"none", func(c *jwt.Config) { c.Algorithms = []string{"none"} }, source, `unsupported signing algorithm "none"`},
		{"negative leeway", func(c *jwt.Config) { c.Leeway = -time.Second }, source, "leeway cannot be negative"},
		{"no source", func(c *jwt.Config) {}, nil, "key set source is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)

			_, err := jwt.NewVerifier(cfg, tc.source)

			assert.ErrorContains(t, err, tc.err)
		})
	}

	t.Run("all RSA algorithms", func(t *testing.T) {
		cfg := valid
		cfg.Algorithms = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}

		_, err := jwt.NewVerifier(cfg, source)

		assert.NoError(t, err)
	})
}

func TestConfig_Issuer(t *testing.T) {
	assert.Equal(t, "https://casting.eu.auth0.com/", jwt.Config{Domain: "casting.eu.auth0.com"}.Issuer())
}

func cachedVerifier(t *testing.T, issuer *testhelpers.Issuer, minRefresh time.Duration) *jwt.Verifier {
	t.Helper()

	cache, err := jwks.NewCache(time.Hour, minRefresh)
	require.NoError(t, err)

	source := cache.Source(issuer.KeySetURL(), jwks.NewHTTPSource(issuer.KeySetURL(), jwks.WithClient(issuer.Client())))

	verifier, err := jwt.NewVerifier(jwt.Config{Domain: issuer.Domain(), Audience: audience, Algorithms: []string{"RS256"}}, source)
	require.NoError(t, err)

	return verifier
}

func keySetFor(t *testing.T, keys ...*jose.JSONWebKey) jwks.KeySet {
	t.Helper()

	issuer := testhelpers.NewIssuer(t, keys...)
	ks, err := jwks.NewHTTPSource(issuer.KeySetURL(), jwks.WithClient(issuer.Client())).KeySet(context.Background())
	require.NoError(t, err)

	return ks
}

func signHMAC(t *testing.T, claims josejwt.Claims) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte("a-shared-secret-of-sufficient-length")},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", "signing-key"),
	)
	require.NoError(t, err)

	token, err := josejwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return token
}
