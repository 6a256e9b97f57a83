package postgres

import (
	"context"
	"sync"
	"time"
)

type dbStatsKey struct{}

type httpMethodKey struct{}

// ReqDBStats accumulates the database work done on behalf of one request.
type ReqDBStats struct {
	mu       sync.Mutex
	queries  int
	errors   int
	duration time.Duration
}

// AddQuery records a single query execution.
func (s *ReqDBStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.duration += dur
	if err != nil {
		s.errors++
	}
}

// Snapshot returns the query count, error count and total query time so far.
func (s *ReqDBStats) Snapshot() (queries, errors int, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.errors, s.duration
}

// NewReqDBStatsContext returns a context carrying an empty ReqDBStats.
func NewReqDBStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &ReqDBStats{})
}

// ReqDBStatsFromContext extracts the ReqDBStats from ctx, if present.
func ReqDBStatsFromContext(ctx context.Context) (*ReqDBStats, bool) {
	s, ok := ctx.Value(dbStatsKey{}).(*ReqDBStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method for query metric labels.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

func httpMethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(httpMethodKey{}).(string)
	return m
}
