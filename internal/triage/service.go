package triage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vettriage/internal/vqa"
)

const (
	DefaultWorkers        = 4
	DefaultRequestTimeout = 5 * time.Minute
	DefaultStoreTimeout   = 10 * time.Second

	notifyTimeout = 30 * time.Second
)

// ErrBusy is returned when no worker became free before the request deadline.
var ErrBusy = errors.New("triage: all workers busy")

// ServiceConfig sizes the worker pool and bounds each request.
type ServiceConfig struct {
	Workers        int
	RequestTimeout time.Duration
	// StoreTimeout bounds writing the run record.
	StoreTimeout   time.Duration
}

// Analysis is a finished analysis and the id of its run record.
type Analysis struct {
	RunID  string
	Result *Result
}

// Service is the business boundary for triage operations.
type Service struct {
	engine   *Engine
	store    Store
	notifier Notifier
	cfg      ServiceConfig
	pool     *semaphore.Weighted
	logger   log.Logger

	notifies sync.WaitGroup
}

// NewService creates a service. notifier may be nil.
func NewService(engine *Engine, store Store, notifier Notifier, cfg ServiceConfig, logger log.Logger) *Service {
	if engine == nil {
		panic(xerrors.New("triage service requires an engine"))
	}
	if store == nil {
		panic(xerrors.New("triage service requires a store"))
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		engine:   engine,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		pool:     semaphore.NewWeighted(int64(cfg.Workers)),
		logger:   logger,
	}
}

// Analyze runs a full triage of img on a pooled worker. The request timeout
// covers the wait for a worker and the run itself. The only error is ErrBusy;
// everything that goes wrong inside the run is reported on the Result.
func (s *Service) Analyze(ctx context.Context, img image.Image) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := s.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer s.pool.Release(1)

	id := ulid.Make().String()
	L := s.logger.With("run_id", id)
	ctx = log.WithContext(ctx, L)

	res := s.engine.Run(ctx, img)
	rec := newRunRecord(id, res)

	// the run log must not fail the request
	putCtx, putCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	if err := s.store.Put(putCtx, rec); err != nil {
		L.Error(ctx, err, "failed to persist run record")
	}
	putCancel()

	if s.notifier != nil && rec.Urgency.Notable() {
		s.notifies.Add(1)
		go s.notify(context.WithoutCancel(ctx), L, rec)
	}

	return &Analysis{RunID: id, Result: res}, nil
}

// Ask answers one ad hoc question on a pooled worker.
func (s *Service) Ask(ctx context.Context, img image.Image, question string) (QuickAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := s.pool.Acquire(ctx, 1); err != nil {
		return QuickAnswer{}, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer s.pool.Release(1)

	return s.engine.AskOne(ctx, img, question), nil
}

// Get retrieves a run record by id.
func (s *Service) Get(ctx context.Context, id string) (*RunRecord, bool, error) {
	return s.store.Get(ctx, id)
}

// Recent lists the newest run records, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	return s.store.Recent(ctx, limit)
}

// Status reports the model gateway state.
func (s *Service) Status() vqa.Status {
	return s.engine.gateway.Status()
}

// Wait blocks until pending notifications have been sent.
func (s *Service) Wait() {
	s.notifies.Wait()
}

func (s *Service) notify(ctx context.Context, L log.Logger, rec *RunRecord) {
	defer s.notifies.Done()

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, rec); err != nil {
		L.Error(ctx, err, "failed to send notification", "urgency", rec.Urgency)
	}
}

func newRunRecord(id string, res *Result) *RunRecord {
	a := res.OverallAssessment
	return &RunRecord{
		ID:               id,
		ImageFingerprint: res.ImageFingerprint,
		Urgency:          a.UrgencyLevel,
		Confidence:       a.Confidence,
		CriticalCount:    a.CriticalCount,
		PriorityCount:    a.PriorityCount,
		PositiveCount:    a.PositiveCount,
		Summary:          a.Summary,
		Truncated:        res.Truncated,
		Error:            res.Error,
		ProcessingTime:   res.ProcessingTime,
		ExecutionMode:    string(res.ExecutionMode),
		ModelUsed:        res.ModelUsed,
		CreatedAt:        time.Now().UTC(),
	}
}
