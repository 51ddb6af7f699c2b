package main

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/jamestelfer/casting-gate/internal/audit"
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type", "Authorization"}
)

// corsHandler answers preflight requests before they reach routing or
// authorization, and adds the allowed origin to every cross-origin response,
// including failed authorizations, so that browsers can read the error body.
func corsHandler(allowedOrigin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{allowedOrigin},
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
		ExposedHeaders: []string{audit.RequestIDHeader},
	})
}

// maxRequestSize limits the size of the request body that will be read.
func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
