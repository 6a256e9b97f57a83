package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const modulePrefix = "github.com/linnemanlabs/vettriage/"

// QueryObserver receives per-query timings, labelled by the HTTP method and
// chi route that issued them.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

type queryStateKey struct{}

// queryState travels from TraceQueryStart to TraceQueryEnd.
type queryState struct {
	sql    string
	args   []any
	start  time.Time
	caller string
}

// queryTracer runs an inner tracer (otelpgx) and adds a log line, request
// stats and an observer callback for every query.
type queryTracer struct {
	inner    pgx.QueryTracer
	observer QueryObserver
	// queries faster than slowQuery that succeed are not logged; 0 logs all
	slowQuery time.Duration
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	st := &queryState{
		sql:    data.SQL,
		args:   data.Args,
		start:  time.Now(),
		caller: queryCaller(),
	}

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}
	if span := trace.SpanFromContext(ctx); st.caller != "" && span.IsRecording() {
		span.SetAttributes(attribute.String("db.caller", st.caller))
	}
	return context.WithValue(ctx, queryStateKey{}, st)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	st, ok := ctx.Value(queryStateKey{}).(*queryState)
	if !ok {
		return
	}
	dur := time.Since(st.start)

	if s, ok := ReqDBStatsFromContext(ctx); ok {
		s.AddQuery(dur, data.Err)
	}

	if t.observer != nil {
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		t.observer.ObserveQuery(ctx, orDefault(httpMethodFromContext(ctx), "UNKNOWN"), orDefault(routePattern(ctx), "unknown"), outcome, dur)
	}

	if data.Err == nil && dur < t.slowQuery {
		return
	}

	fields := []any{
		"db.statement", st.sql,
		"db.args", st.args,
		"db.duration", dur.Seconds(),
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		fields = append(fields, "db.operation.name", strings.ToUpper(strings.Fields(tag)[0]), "db.rows", data.CommandTag.RowsAffected())
	}
	if st.caller != "" {
		fields = append(fields, "db.caller", st.caller)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

func routePattern(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// queryCaller returns the first frame of this module outside this package,
// i.e. the store method that issued the query.
func queryCaller() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, modulePrefix) && !strings.HasPrefix(fr.Function, modulePrefix+"internal/postgres.") {
			return shortFuncName(fr.Function)
		}
		if !more {
			return ""
		}
	}
}

// shortFuncName turns "a/b/pkg.(*T).M" into "pkg.(*T).M".
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		return fn[i+1:]
	}
	return fn
}
