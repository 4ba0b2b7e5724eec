package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// QueryObserver receives the duration of every query, labelled with the HTTP
// method and chi route that issued it. main wires it to Prometheus.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

type observerBox struct{ QueryObserver }

var observer atomic.Pointer[observerBox]

// SetQueryObserver installs the process-wide query observer. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&observerBox{QueryObserver: o})
}

func currentObserver() QueryObserver {
	if b := observer.Load(); b != nil {
		return b.QueryObserver
	}
	return nil
}

type (
	methodKey struct{}
	statsKey  struct{}
	queryKey  struct{}
)

// WithHTTPMethod records the request method for query metric labels.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, methodKey{}, method)
}

func requestMethod(ctx context.Context) string {
	if m, ok := ctx.Value(methodKey{}).(string); ok {
		return m
	}
	return "UNKNOWN"
}

func requestRoute(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

// RequestStats totals the queries issued while serving one request.
type RequestStats struct {
	mu      sync.Mutex
	queries int
	errors  int
	total   time.Duration
}

// Add records one query.
func (s *RequestStats) Add(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.total += dur
	if err != nil {
		s.errors++
	}
}

// Snapshot returns the totals so far.
func (s *RequestStats) Snapshot() (queries, failed int, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.errors, s.total
}

// WithRequestStats attaches an empty RequestStats to ctx.
func WithRequestStats(ctx context.Context) context.Context {
	return context.WithValue(ctx, statsKey{}, &RequestStats{})
}

// RequestStatsFrom returns the RequestStats attached to ctx, if any.
func RequestStatsFrom(ctx context.Context) (*RequestStats, bool) {
	s, ok := ctx.Value(statsKey{}).(*RequestStats)
	return s, ok
}

// queryInfo is carried from TraceQueryStart to TraceQueryEnd.
type queryInfo struct {
	sql     string
	args    []any
	start   time.Time
	caller  string
	handler string
}

// queryTracer decorates another pgx.QueryTracer (otelpgx in production)
// with a structured log line, request stats and the query observer.
type queryTracer struct {
	next pgx.QueryTracer

	// successful queries faster than logAbove are not logged; 0 logs all
	logAbove time.Duration
}

func newQueryTracer(next pgx.QueryTracer, logAbove time.Duration) *queryTracer {
	return &queryTracer{next: next, logAbove: logAbove}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qi := &queryInfo{sql: data.SQL, args: data.Args, start: time.Now()}
	qi.caller, qi.handler = appFrames()

	// the wrapped tracer opens its span first so the attributes land on it
	if t.next != nil {
		ctx = t.next.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if qi.caller != "" {
			span.SetAttributes(attribute.String("db.caller", qi.caller))
		}
		if qi.handler != "" {
			span.SetAttributes(attribute.String("db.handler", qi.handler))
		}
	}

	return context.WithValue(ctx, queryKey{}, qi)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.next != nil {
		t.next.TraceQueryEnd(ctx, conn, data)
	}

	qi, ok := ctx.Value(queryKey{}).(*queryInfo)
	if !ok {
		return
	}
	dur := time.Since(qi.start)

	if s, ok := RequestStatsFrom(ctx); ok {
		s.Add(dur, data.Err)
	}

	if obs := currentObserver(); obs != nil {
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		obs.ObserveQuery(ctx, requestMethod(ctx), requestRoute(ctx), outcome, dur)
	}

	if data.Err == nil && dur < t.logAbove {
		return
	}

	L := log.FromContext(ctx)
	fields := queryLogFields(qi, data, dur)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

func queryLogFields(qi *queryInfo, data pgx.TraceQueryEndData, dur time.Duration) []any {
	fields := []any{
		"db.statement", strings.Join(strings.Fields(qi.sql), " "),
		"db.args", len(qi.args),
		"db.duration", dur.Seconds(),
	}

	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		op, _, _ := strings.Cut(tag, " ")
		fields = append(fields,
			"db.operation.name", strings.ToUpper(op),
			"db.rows", data.CommandTag.RowsAffected(),
		)
	}
	if qi.caller != "" {
		fields = append(fields, "db.caller", qi.caller)
	}
	if qi.handler != "" {
		fields = append(fields, "db.handler", qi.handler)
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	return fields
}

// appFrames walks the stack for the function issuing the query (caller) and
// the first frame above it outside this package (handler).
func appFrames() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		switch {
		case fn == "",
			strings.HasPrefix(fn, "runtime."),
			strings.Contains(fn, "github.com/jackc/pgx/v5"),
			strings.Contains(fn, "github.com/exaring/otelpgx"),
			strings.Contains(fn, "queryTracer).TraceQuery"):
		case caller == "":
			caller = shortFuncName(fn)
		case strings.Contains(fn, "vitallink/internal/postgres."):
		default:
			return caller, shortFuncName(fn)
		}

		if !more {
			return caller, handler
		}
	}
}

// shortFuncName drops the import path and package name, keeping receiver
// and method: ".../sos/pgstore.(*Store).ListContacts" -> "(*Store).ListContacts".
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
