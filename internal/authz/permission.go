// Package authz enforces that a verified caller holds the permission an
// operation requires.
package authz

import (
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/jamestelfer/casting-gate/internal/jwt"
)

// CheckPermission confirms that claims grant permission. An empty permission
// requires nothing and succeeds without looking at the claims. A token with no
// permissions claim at all is reported separately from one whose permissions
// do not include the one required.
func CheckPermission(claims *jwt.Claims, permission string) error {
	if permission == "" {
		return nil
	}

	if claims == nil || !claims.HasPermissionsClaim() {
		return failure.New(failure.PermissionsClaimMissing)
	}

	if !claims.HasPermission(permission) {
		return failure.Wrapf(failure.AccessDenied, "permission %q not granted", permission)
	}

	return nil
}
