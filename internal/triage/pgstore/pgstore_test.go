package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vettriage/internal/postgres"
	"github.com/linnemanlabs/vettriage/internal/triage"
	"github.com/linnemanlabs/vettriage/internal/triage/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("VETTRIAGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VETTRIAGE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, postgres.Options{})
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func testRecord(createdAt time.Time) *triage.RunRecord {
	return &triage.RunRecord{
		ID:               ulid.Make().String(),
		ImageFingerprint: "0123456789abcdef",
		Urgency:          triage.UrgencyHigh,
		Confidence:       0.8,
		CriticalCount:    0,
		PriorityCount:    2,
		PositiveCount:    3,
		Summary:          "Critical: 0, Priority: 2, Positive: 3",
		ProcessingTime:   4.25,
		ExecutionMode:    "portable",
		ModelUsed:        "Salesforce/blip-vqa-base",
		CreatedAt:        createdAt,
	}
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := testRecord(time.Now().Truncate(time.Microsecond).UTC())
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "ID", r.ID, got.ID)
	assertEqual(t, "ImageFingerprint", r.ImageFingerprint, got.ImageFingerprint)
	assertEqual(t, "Urgency", string(r.Urgency), string(got.Urgency))
	assertEqual(t, "Confidence", r.Confidence, got.Confidence)
	assertEqual(t, "PriorityCount", r.PriorityCount, got.PriorityCount)
	assertEqual(t, "PositiveCount", r.PositiveCount, got.PositiveCount)
	assertEqual(t, "Summary", r.Summary, got.Summary)
	assertEqual(t, "ProcessingTime", r.ProcessingTime, got.ProcessingTime)
	assertEqual(t, "ExecutionMode", r.ExecutionMode, got.ExecutionMode)
	assertEqual(t, "ModelUsed", r.ModelUsed, got.ModelUsed)
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent ID")
	}
}

func TestUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := testRecord(time.Now().Truncate(time.Microsecond).UTC())
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r.Urgency = triage.UrgencyLow
	r.Truncated = true
	r.Error = "triage panic: boom"
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put (update): %v", err)
	}

	got, ok, err := s.Get(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	assertEqual(t, "Urgency", string(triage.UrgencyLow), string(got.Urgency))
	assertEqual(t, "Truncated", true, got.Truncated)
	assertEqual(t, "Error", "triage panic: boom", got.Error)
}

func TestRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// future timestamps keep these ahead of rows left by other tests
	base := time.Now().Add(24 * time.Hour).Truncate(time.Microsecond).UTC()
	older := testRecord(base)
	newer := testRecord(base.Add(time.Minute))
	for _, r := range []*triage.RunRecord{older, newer} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	recs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(recs))
	}
	assertEqual(t, "recs[0].ID", newer.ID, recs[0].ID)
	assertEqual(t, "recs[1].ID", older.ID, recs[1].ID)
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}
