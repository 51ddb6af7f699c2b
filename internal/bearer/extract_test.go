package bearer

import (
	"net/http"
	"testing"

	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name      string
		header    string
		wantToken string
		wantKind  failure.Kind
	}{
		{name: "valid", header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "lower case scheme", header: "bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "upper case scheme", header: "BEARER abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "repeated separator", header: "Bearer   abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "token not decoded", header: "Bearer not-a-jwt", wantToken: "not-a-jwt"},
		{name: "empty", header: "", wantKind: failure.MissingHeader},
		{name: "whitespace only", header: "   ", wantKind: failure.MalformedScheme},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantKind: failure.MalformedScheme},
		{name: "scheme prefix only", header: "Bearerabc.def.ghi", wantKind: failure.MalformedScheme},
		{name: "token without scheme", header: "abc.def.ghi", wantKind: failure.MalformedScheme},
		{name: "scheme without token", header: "Bearer", wantKind: failure.MissingToken},
		{name: "scheme with trailing space", header: "Bearer ", wantKind: failure.MissingToken},
		{name: "extra segments", header: "Bearer abc def", wantKind: failure.MalformedHeader},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := Extract(tc.header)

			if tc.wantKind != failure.Unknown {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, failure.KindOf(err))
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantToken, token)
		})
	}
}

func TestFromRequest(t *testing.T) {
	t.Run("header absent", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/movies", nil)
		require.NoError(t, err)

		_, err = FromRequest(req)

		assert.Equal(t, failure.MissingHeader, failure.KindOf(err))
	})

	t.Run("header present", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/movies", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer token-value")

		token, err := FromRequest(req)

		require.NoError(t, err)
		assert.Equal(t, "token-value", token)
	})
}
