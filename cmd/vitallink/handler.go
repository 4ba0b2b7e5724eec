package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/vitallink/internal/postgres"
	"github.com/linnemanlabs/vitallink/internal/vitalsapi"
)

// newHandler builds the public listener: chi routes inside, then the
// middleware wrappers with the outermost added last.
func newHandler(api *vitalsapi.API, L log.Logger, healthz, readyz http.HandlerFunc, instrument func(http.Handler) http.Handler, clientIP httpmw.ClientIPOptions) http.Handler {
	r := chi.NewRouter()

	// Compress text responses (JSON only)
	r.Use(middleware.Compress(5, "application/json"))

	// Annotate logger (and span if recording) with http.route from the chi pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// method and query totals for the DB tracer
	r.Use(dbStats)

	r.Use(httpmw.AccessLog())

	// readings are a few hundred bytes
	r.Use(httpmw.MaxBody(1024 * 16))

	r.Get("/-/healthy", healthz)
	r.Get("/-/ready", readyz)

	api.RegisterRoutes(r)

	// wrappers below: the last one added sees the raw request first and the
	// response last. Inner layers get the context the outer ones built.
	var h http.Handler = r

	// request-scoped logger, inner so it sees trace_id and the chi route
	h = httpmw.WithLogger(L)(h)

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// health checks are not traced
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// renamed to the route pattern by AnnotateHTTPRoute
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	// prometheus http metrics
	h = instrument(h)

	// resolve the client ip once, outer so everything downstream agrees on it
	h = httpmw.ClientIPWithOptions(clientIP)(h)

	h = httpmw.RequestID("X-Request-Id")(h)

	// outer so panics anywhere below become a logged 500
	h = httpmw.Recover(L, nil)(h)

	// outermost so every response carries them
	h = httpmw.SecurityHeaders(h)
	return h
}

// dbStats labels database queries with the request method and totals them
// onto the request span once the handler returns.
func dbStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := postgres.WithHTTPMethod(r.Context(), r.Method)
		ctx = postgres.WithRequestStats(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))

		stats, ok := postgres.RequestStatsFrom(ctx)
		if !ok {
			return
		}
		queries, failed, total := stats.Snapshot()
		if queries == 0 {
			return
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("db.queries", queries),
			attribute.Int("db.queries_failed", failed),
			attribute.Float64("db.time_ms", float64(total.Microseconds())/1000),
		)
	})
}
