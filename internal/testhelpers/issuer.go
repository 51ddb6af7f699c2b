package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

/*
Portions of this file adapted from:
	https://github.com/auth0/go-jwt-middleware/blob/b4b1b5f6d1b1eb3c7f4538a29f2caf2889693619/examples/http-jwks-example/main_test.go

Usage licensed under the MIT License (MIT).
*/

// Issuer is a stand-in identity provider: it publishes a key set over TLS at
// the well-known location and signs tokens with its private keys.
type Issuer struct {
	server *httptest.Server

	mu        sync.Mutex
	published []jose.JSONWebKey
	status    int

	fetches atomic.Int32
}

// NewIssuer starts an issuer that publishes the public half of keys. The
// server is closed when the test completes.
func NewIssuer(t *testing.T, keys ...*jose.JSONWebKey) *Issuer {
	t.Helper()

	iss := &Issuer{status: http.StatusOK}
	iss.Publish(keys...)

	iss.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			t.Errorf("was not expecting to handle the following url: %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
			return
		}

		iss.fetches.Add(1)

		iss.mu.Lock()
		status := iss.status
		keySet := jose.JSONWebKeySet{Keys: iss.published}
		iss.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(keySet); err != nil {
			t.Error(err)
		}
	}))
	t.Cleanup(iss.server.Close)

	return iss
}

// Publish replaces the published key set with the public half of keys, in
// the order given.
func (i *Issuer) Publish(keys ...*jose.JSONWebKey) {
	published := make([]jose.JSONWebKey, 0, len(keys))
	for _, k := range keys {
		published = append(published, k.Public())
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.published = published
}

// Fail makes the key set endpoint respond with status until reset with
// http.StatusOK.
func (i *Issuer) Fail(status int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = status
}

// Domain is the host:port of the issuer, as it would be configured.
func (i *Issuer) Domain() string {
	return strings.TrimPrefix(i.server.URL, "https://")
}

// URL is the expected "iss" claim for tokens from this issuer.
func (i *Issuer) URL() string {
	return i.server.URL + "/"
}

// KeySetURL is the well-known key set location.
func (i *Issuer) KeySetURL() string {
	return i.server.URL + "/.well-known/jwks.json"
}

// Client trusts the issuer's test certificate.
func (i *Issuer) Client() *http.Client {
	return i.server.Client()
}

// Fetches is the number of key set requests served.
func (i *Issuer) Fetches() int {
	return int(i.fetches.Load())
}

// GenerateKey creates an RSA signing key with the given key ID.
func GenerateKey(t *testing.T, kid string) *jose.JSONWebKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate private key")

	return &jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// Sign creates a compact signed token from the merged claims using the key's
// algorithm.
func Sign(t *testing.T, key *jose.JSONWebKey, claims ...any) string {
	t.Helper()

	return SignWith(t, jose.SignatureAlgorithm(key.Algorithm), key, claims...)
}

// SignWith signs the token using alg regardless of the key's declared
// algorithm.
func SignWith(t *testing.T, alg jose.SignatureAlgorithm, key *jose.JSONWebKey, claims ...any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	builder := jwt.Signed(signer)
	for _, claim := range claims {
		builder = builder.Claims(claim)
	}

	token, err := builder.Serialize()
	require.NoError(t, err)

	return token
}

// Valid sets a current validity window on claims.
func Valid(claims jwt.Claims) jwt.Claims {
	now := time.Now().UTC()

	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now.Add(-1 * time.Minute))
	claims.Expiry = jwt.NewNumericDate(now.Add(1 * time.Minute))

	return claims
}

// Lapsed sets a validity window that ended an hour ago.
func Lapsed(claims jwt.Claims) jwt.Claims {
	issued := time.Now().UTC().Add(-2 * time.Hour)

	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.NotBefore = jwt.NewNumericDate(issued)
	claims.Expiry = jwt.NewNumericDate(issued.Add(1 * time.Hour))

	return claims
}

// Permissions is the custom permissions claim.
func Permissions(permissions ...string) map[string]any {
	if permissions == nil {
		permissions = []string{}
	}
	return map[string]any{"permissions": permissions}
}
