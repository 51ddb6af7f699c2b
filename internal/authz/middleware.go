package authz

import (
	"context"
	"encoding/json"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/jamestelfer/casting-gate/internal/bearer"
	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Middleware returns HTTP middleware that requires the caller to hold
// permission. The verified claims are set on the request context and can be
// retrieved by calling jwt.ClaimsFromContext(ctx). Preflight OPTIONS requests
// are passed through without authorization.
func (g *Gate) Middleware(permission string) func(http.Handler) http.Handler {
	extract := func(r *http.Request) (string, error) {
		token, err := bearer.FromRequest(r)
		if err != nil {
			return "", g.record(r.Context(), permission, nil, err)
		}
		return token, nil
	}

	validate := func(ctx context.Context, token string) (any, error) {
		return g.authorizeToken(ctx, token, permission)
	}

	return jwtmiddleware.New(
		validate,
		jwtmiddleware.WithTokenExtractor(extract),
		jwtmiddleware.WithErrorHandler(ErrorHandler),
		jwtmiddleware.WithValidateOnOptions(false),
	).CheckJWT
}

// ErrorHandler renders err as the JSON error body. Authorization failures are
// rendered with their own status and message; anything else is an internal
// error and its detail is not exposed.
func ErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if f, ok := failure.As(err); ok {
		WriteError(w, f.Status, f.Message)
		return
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Msg("unexpected error in authorization")
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// WriteError writes the JSON error body with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorBody{
		Success: false,
		Error:   status,
		Message: message,
	})
}
