// Package bearer extracts bearer tokens from the HTTP Authorization header.
package bearer

import (
	"net/http"
	"strings"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/jamestelfer/casting-gate/internal/failure"
)

const scheme = "bearer"

// Extract returns the token from an Authorization header value. The header is
// only checked for shape: the token is returned as-is without any decoding.
func Extract(header string) (string, error) {
	if header == "" {
		return "", failure.New(failure.MissingHeader)
	}

	parts := strings.Fields(header)

	if len(parts) == 0 || strings.ToLower(parts[0]) != scheme {
		return "", failure.New(failure.MalformedScheme)
	}

	if len(parts) == 1 {
		return "", failure.New(failure.MissingToken)
	}

	if len(parts) > 2 {
		return "", failure.New(failure.MalformedHeader)
	}

	return parts[1], nil
}

// FromRequest extracts the bearer token from the request's Authorization
// header.
func FromRequest(r *http.Request) (string, error) {
	return Extract(r.Header.Get("Authorization"))
}

// marker for interface implementation
var _ jwtmiddleware.TokenExtractor = FromRequest
