package observe

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

type Multiplexer interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux instruments every request with OpenTelemetry. Spans and metrics for a
// request are labelled with the route pattern it matched rather than the raw
// path, so that IDs in paths do not create unbounded cardinality.
type Mux struct {
	wrapped Multiplexer
	handler http.Handler
}

func NewMux(wrapped Multiplexer, opts ...otelhttp.Option) *Mux {
	return &Mux{
		wrapped: wrapped,
		handler: otelhttp.NewHandler(wrapped, "request", opts...),
	}
}

func (mux *Mux) Handle(pattern string, handler http.Handler) {
	// Configure the "http.route" for the HTTP instrumentation.
	taggedHandler := otelhttp.WithRouteTag(pattern, handler)
	mux.wrapped.Handle(pattern, spanNamed(pattern, taggedHandler))
}

func (mux *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux.handler.ServeHTTP(w, r)
}

func spanNamed(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetName(pattern)
		next.ServeHTTP(w, r)
	})
}
