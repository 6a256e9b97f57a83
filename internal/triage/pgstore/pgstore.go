// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vettriage/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// MaxRecent caps Recent regardless of the requested limit.
const MaxRecent = 500

// Store persists run records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const runColumns = `id, image_fingerprint, urgency, confidence, critical_count, priority_count,
	positive_count, summary, truncated, error, processing_s, execution_mode, model, created_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Get retrieves a run record by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.RunRecord, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM triage_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return r, true, nil
}

// Put inserts a run record, replacing any record with the same ID.
func (s *Store) Put(ctx context.Context, r *triage.RunRecord) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx, `INSERT INTO triage_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			image_fingerprint = EXCLUDED.image_fingerprint,
			urgency           = EXCLUDED.urgency,
			confidence        = EXCLUDED.confidence,
			critical_count    = EXCLUDED.critical_count,
			priority_count    = EXCLUDED.priority_count,
			positive_count    = EXCLUDED.positive_count,
			summary           = EXCLUDED.summary,
			truncated         = EXCLUDED.truncated,
			error             = EXCLUDED.error,
			processing_s      = EXCLUDED.processing_s,
			execution_mode    = EXCLUDED.execution_mode,
			model             = EXCLUDED.model`,
		r.ID, r.ImageFingerprint, string(r.Urgency), r.Confidence, r.CriticalCount, r.PriorityCount,
		r.PositiveCount, r.Summary, r.Truncated, r.Error, r.ProcessingTime, r.ExecutionMode, r.ModelUsed, r.CreatedAt,
	)
	if err != nil {
		err = fmt.Errorf("upsert run %s: %w", r.ID, err)
		fail(span, err)
		return err
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*triage.RunRecord, error) {
	ctx, span := startSpan(ctx, "pgstore.Recent", "SELECT")
	defer span.End()

	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM triage_runs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		err = fmt.Errorf("query runs: %w", err)
		fail(span, err)
		return nil, err
	}
	defer rows.Close()

	var out []*triage.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			fail(span, err)
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("iterate runs: %w", err)
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// scanRun scans one row. pgx.ErrNoRows is returned unwrapped.
func scanRun(row pgx.Row) (*triage.RunRecord, error) {
	var (
		r       triage.RunRecord
		urgency string
	)
	err := row.Scan(
		&r.ID, &r.ImageFingerprint, &urgency, &r.Confidence, &r.CriticalCount, &r.PriorityCount,
		&r.PositiveCount, &r.Summary, &r.Truncated, &r.Error, &r.ProcessingTime, &r.ExecutionMode,
		&r.ModelUsed, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Urgency = triage.Urgency(urgency)
	return &r, nil
}
