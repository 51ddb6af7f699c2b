package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRouteTag(t *testing.T) {
	rawMux := http.NewServeMux()
	mux := NewMux(rawMux)

	var routeLabels []attribute.KeyValue

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the otel handler middleware adds the labeler, so this is also
		// indirectly testing the presence of that middleware configuration in
		// the observe muxer
		labels, _ := otelhttp.LabelerFromContext(r.Context())

		routeLabels = labels.Get()
	})
	mux.Handle("PATCH /movies/{id}", testHandler)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("PATCH", "/movies/42", nil)
	req = req.WithContext(context.Background())

	mux.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code, "Expected HTTP status OK")
	assert.Equal(t, []attribute.KeyValue{attribute.String("http.route", "PATCH /movies/{id}")}, routeLabels)
}

func TestSpanNamedForRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	mux := NewMux(http.NewServeMux(), otelhttp.WithTracerProvider(provider))
	mux.Handle("DELETE /actors/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/actors/7", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "DELETE /actors/{id}", spans[0].Name())
}
