package jwt

import (
	"context"
	"slices"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
)

// Claims is the decoded claim set of a token that has passed every
// verification step. A Claims value is never constructed from a token that
// failed verification.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time

	// Permissions is nil when the token carries no "permissions" claim at all,
	// and an empty, non-nil slice when the claim is present but empty. The two
	// are treated differently when checking for a permission.
	Permissions []string

	// Raw is the complete claim set as decoded from the token payload.
	Raw map[string]any
}

// HasPermissionsClaim reports whether the token carried a "permissions" claim.
func (c *Claims) HasPermissionsClaim() bool {
	return c.Permissions != nil
}

// HasPermission reports whether permission is granted, by exact,
// case-sensitive comparison.
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// ContextWithClaims returns a new context.Context with the provided claims
// stored where the JWT middleware would store them.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, jwtmiddleware.ContextKey{}, claims)
}

// ClaimsFromContext returns the verified claims from the context as set by the
// JWT middleware. This will return nil if the context data is not set. This
// should be regarded as an error for handlers that expect the claims to be
// present.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(jwtmiddleware.ContextKey{}).(*Claims)
	return claims
}

// RequireClaimsFromContext returns the verified claims from the context,
// panicking if they are not present. Use only in handlers that are always
// wrapped by the authorization middleware.
func RequireClaimsFromContext(ctx context.Context) *Claims {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		panic("verified claims not found in context, cannot continue")
	}

	return claims
}
