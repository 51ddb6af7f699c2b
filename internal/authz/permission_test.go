package authz_test

import (
	"testing"

	"github.com/jamestelfer/casting-gate/internal/authz"
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/jamestelfer/casting-gate/internal/jwt"
	"github.com/stretchr/testify/assert"
)

func TestCheckPermission(t *testing.T) {
	granted := &jwt.Claims{Permissions: []string{"get:movies", "patch:actors"}}

	cases := []struct {
		name       string
		claims     *jwt.Claims
		permission string
		expected   failure.Kind
	}{
		{"granted", granted, "get:movies", failure.Unknown},
		{"second of several", granted, "patch:actors", failure.Unknown},
		{"not granted", granted, "delete:movies", failure.AccessDenied},
		{"case sensitive", granted, "GET:movies", failure.AccessDenied},
		{"empty set", &jwt.Claims{Permissions: []string{}}, "get:movies", failure.AccessDenied},
		{"claim absent", &jwt.Claims{}, "get:movies", failure.PermissionsClaimMissing},
		{"no claims", nil, "get:movies", failure.PermissionsClaimMissing},
		{"nothing required", &jwt.Claims{}, "", failure.Unknown},
		{"nothing required, no claims", nil, "", failure.Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := authz.CheckPermission(tc.claims, tc.permission)

			if tc.expected == failure.Unknown {
				assert.NoError(t, err)
				return
			}

			assert.Equal(t, tc.expected, failure.KindOf(err))
		})
	}
}
