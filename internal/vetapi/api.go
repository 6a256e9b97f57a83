// Package vetapi is the HTTP boundary of the triage service. It decodes and
// resizes uploaded images, rejects bad input before it reaches the engine and
// renders results in the JSON envelope clients expect.
package vetapi

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vettriage/internal/postgres"
	"github.com/linnemanlabs/vettriage/internal/triage"
	"github.com/linnemanlabs/vettriage/internal/vqa"
)

// TriageService defines the business operations vetapi needs.
type TriageService interface {
	Analyze(ctx context.Context, img image.Image) (*triage.Analysis, error)
	Ask(ctx context.Context, img image.Image, question string) (triage.QuickAnswer, error)
	Get(ctx context.Context, id string) (*triage.RunRecord, bool, error)
	Recent(ctx context.Context, limit int) ([]*triage.RunRecord, error)
	Status() vqa.Status
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	auth   func(http.Handler) http.Handler
	now    func() time.Time
}

// New creates a new API handler. auth wraps every /api/v1 route; nil means
// no authentication.
func New(logger log.Logger, svc TriageService, auth func(http.Handler) http.Handler) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		auth:   auth,
		now:    time.Now,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth)
		}
		r.Use(dbStats)

		r.Post("/analyze", a.handleAnalyze)
		r.Post("/quick-question", a.handleQuickQuestion)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/model", a.handleModel)
	})
}

// dbStats stashes the HTTP method for query metrics and collects per-request
// query counts onto the server span.
func dbStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := postgres.WithHTTPMethod(r.Context(), r.Method)
		ctx = postgres.NewReqDBStatsContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))

		s, ok := postgres.ReqDBStatsFromContext(ctx)
		if !ok {
			return
		}
		if q, e, d := s.Snapshot(); q > 0 {
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.Int("db.queries", q),
				attribute.Int("db.errors", e),
				attribute.Float64("db.duration_ms", float64(d)/float64(time.Millisecond)),
			)
		}
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// timestamp renders the current time as fractional unix seconds.
func (a *API) timestamp() float64 {
	return float64(a.now().UnixNano()) / float64(time.Second)
}
