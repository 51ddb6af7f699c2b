package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"github.com/jamestelfer/casting-gate/internal/audit"
	"github.com/jamestelfer/casting-gate/internal/authz"
	"github.com/jamestelfer/casting-gate/internal/catalog"
	"github.com/jamestelfer/casting-gate/internal/config"
	"github.com/jamestelfer/casting-gate/internal/jwks"
	"github.com/jamestelfer/casting-gate/internal/jwt"
	"github.com/jamestelfer/casting-gate/internal/observe"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinas/alice"
)

// The request body size is fairly limited to prevent accidental or deliberate
// abuse. Given the current API shape, this is not configurable.
const requestLimitBytes = int64(20 << 10) // 20 KB

func configureServerRoutes(ctx context.Context, cfg config.Config, keys jwks.Source, store *catalog.Store) (http.Handler, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	policy, err := config.LoadPolicy(cfg.Server.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("authorization policy load failed: %w", err)
	}

	if encoded, err := policy.Encode(); err == nil {
		log.Debug().Str("policy", encoded).Msg("authorization policy loaded")
	}

	verifier, err := jwt.NewVerifier(jwt.Config{
		Domain:     cfg.Authorization.Domain,
		Audience:   cfg.Authorization.Audience,
		Algorithms: cfg.Authorization.Algorithms,
		Leeway:     cfg.Authorization.AllowedClockSkew,
	}, keys)
	if err != nil {
		return nil, fmt.Errorf("token verifier configuration failed: %w", err)
	}

	gate, err := authz.NewGate(verifier)
	if err != nil {
		return nil, fmt.Errorf("authorization gate configuration failed: %w", err)
	}

	// configure middleware: CORS is outermost so that every response carries
	// the allowed origin
	corsMiddleware := corsHandler(cfg.Server.CORSAllowedOrigin)
	publicRouteMiddleware := alice.New(corsMiddleware)
	authorizedRouteMiddleware := alice.New(corsMiddleware, maxRequestSize(requestLimitBytes), audit.Middleware())

	for _, r := range catalogRoutes(store) {
		permission, ok := policy.Permission(r.Method, r.Path)
		if !ok {
			return nil, fmt.Errorf("authorization policy has no entry for %s", r.Pattern())
		}

		mux.Handle(r.Pattern(), authorizedRouteMiddleware.
			Append(gate.Middleware(permission)).
			Then(r.handler))
	}

	// no route matches OPTIONS, so preflight requests for any path reach the
	// catch-all and are answered by the CORS middleware
	mux.Handle("GET /{$}", publicRouteMiddleware.Then(handleIndex()))
	mux.Handle("/", publicRouteMiddleware.Then(handleNotFound()))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", handleHealthCheck())

	return mux, nil
}

type catalogRoute struct {
	config.Route
	handler http.Handler
}

// catalogRoutes lists the protected endpoints. The permission each requires is
// taken from the authorization policy.
func catalogRoutes(store *catalog.Store) []catalogRoute {
	route := func(method, path string, handler http.Handler) catalogRoute {
		return catalogRoute{Route: config.Route{Method: method, Path: path}, handler: handler}
	}

	return []catalogRoute{
		route(http.MethodGet, "/movies", handleListMovies(store)),
		route(http.MethodGet, "/actors", handleListActors(store)),
		route(http.MethodPost, "/movies", handleCreateMovie(store)),
		route(http.MethodPost, "/actors", handleCreateActor(store)),
		route(http.MethodPatch, "/movies/{id}", handleUpdateMovie(store)),
		route(http.MethodPatch, "/actors/{id}", handleUpdateActor(store)),
		route(http.MethodDelete, "/movies/{id}", handleDeleteMovie(store)),
		route(http.MethodDelete, "/actors/{id}", handleDeleteActor(store)),
	}
}

// configureKeySource composes the key set source: the issuer's endpoint,
// optionally shared between replicas via Redis, cached in process. The
// returned function releases any resources held by the source.
func configureKeySource(cfg config.AuthorizationConfig, client *http.Client) (jwks.Source, func() error, error) {
	keySetURL := cfg.KeySetURL()
	closer := func() error { return nil }

	var source jwks.Source = jwks.NewHTTPSource(
		keySetURL,
		jwks.WithClient(client),
		jwks.WithTimeout(cfg.JWKSFetchTimeout),
	)

	// caching is disabled with a zero TTL: every verification fetches
	if cfg.JWKSCacheTTL <= 0 {
		log.Warn().Str("url", keySetURL).Msg("key set caching disabled")
		return source, closer, nil
	}

	if cfg.JWKSRedisURL != "" {
		rdb, err := jwks.NewRedisClient(cfg.JWKSRedisURL)
		if err != nil {
			return nil, nil, err
		}

		source = jwks.NewRedisStore(rdb, keySetURL, cfg.JWKSCacheTTL, source)
		closer = rdb.Close
	}

	cache, err := jwks.NewCache(cfg.JWKSCacheTTL, cfg.JWKSMinRefreshInterval)
	if err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("key set cache configuration failed: %w", err)
	}

	return cache.Source(keySetURL, source), closer, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HttpTransport(
		configureHttpTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	keys, closeKeys, err := configureKeySource(cfg.Authorization, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("key set source configuration failed: %w", err)
	}

	// setup routing and dependencies
	handler, err := configureServerRoutes(ctx, cfg, keys, catalog.NewStore())
	if err != nil {
		_ = closeKeys()
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	// start the server
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        handler,
		MaxHeaderBytes: 20 << 10, // 20 KB
	}

	server.RegisterOnShutdown(func() {
		if err := closeKeys(); err != nil {
			log.Warn().Err(err).Msg("key set store: close failed")
		}

		log.Info().Msg("telemetry: shutting down")
		if err := shutdownTelemetry(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry: shutdown failed")
		}
		log.Info().Msg("telemetry: shutdown complete")
	})

	err = serveHTTP(ctx, cfg.Server, server)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHttpTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHttpMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHttpMaxConnsPerHost

	return transport
}
