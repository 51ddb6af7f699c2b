// Package jwks retrieves and resolves an issuer's published signing keys.
package jwks

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/jamestelfer/casting-gate/internal/failure"
)

// SigningKey is a single public key as published in a JSON Web Key Set. Only
// the fields needed to rebuild an RSA public key are kept.
type SigningKey struct {
	KeyType   string `json:"kty"`
	KeyID     string `json:"kid"`
	Use       string `json:"use,omitempty"`
	Algorithm string `json:"alg,omitempty"`
	N         string `json:"n"`
	E         string `json:"e"`
}

// KeySet is the ordered list of keys published by the issuer. Order is
// preserved from the source document.
type KeySet struct {
	Keys []SigningKey `json:"keys"`
}

// Parse decodes a key set document. A document without a "keys" array is
// rejected.
func Parse(data []byte) (KeySet, error) {
	var doc struct {
		Keys *[]SigningKey `json:"keys"`
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return KeySet{}, fmt.Errorf("key set document is not valid JSON: %w", err)
	}

	if doc.Keys == nil {
		return KeySet{}, errors.New(`key set document has no "keys" array`)
	}

	return KeySet{Keys: *doc.Keys}, nil
}

// Resolve returns the key whose ID exactly equals kid. If the set contains
// more than one key with the same ID, the first in document order is
// returned. There is no fallback: a set without a matching key is a
// KeyNotFound failure.
func (s KeySet) Resolve(kid string) (SigningKey, error) {
	if kid == "" {
		return SigningKey{}, failure.Wrapf(failure.MalformedToken, "token header has no key id")
	}

	for _, k := range s.Keys {
		if k.KeyID == kid {
			return k, nil
		}
	}

	return SigningKey{}, failure.Wrapf(failure.KeyNotFound, "no key with id %q in a set of %d", kid, len(s.Keys))
}

// KeyIDs lists the key IDs in the set, in order.
func (s KeySet) KeyIDs() []string {
	ids := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		ids = append(ids, k.KeyID)
	}
	return ids
}

// PublicKey rebuilds the RSA public key from the modulus and exponent.
func (k SigningKey) PublicKey() (*rsa.PublicKey, error) {
	if k.KeyType != "RSA" {
		return nil, fmt.Errorf("key %q has unsupported key type %q", k.KeyID, k.KeyType)
	}

	raw, err := json.Marshal(map[string]string{
		"kty": k.KeyType,
		"kid": k.KeyID,
		"n":   k.N,
		"e":   k.E,
	})
	if err != nil {
		return nil, err
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("key %q could not be decoded: %w", k.KeyID, err)
	}

	pub, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %q is not an RSA public key", k.KeyID)
	}

	return pub, nil
}
