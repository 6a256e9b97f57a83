// Package vqa wraps a visual-question-answering backend behind a single Ask
// operation. The Gateway picks an execution mode at startup, serializes model
// calls process wide and turns every per-call failure into a sentinel answer.
package vqa

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Unknown is the answer text reported when a question could not be answered.
const Unknown = "unknown"

// DefaultQuestionTimeout bounds a single model call when Config leaves it unset.
const DefaultQuestionTimeout = 30 * time.Second

var (
	// ErrResource marks a backend failure caused by exhausted accelerator
	// resources. It is the only load error that triggers the portable retry.
	ErrResource = errors.New("vqa: accelerator resources exhausted")

	// ErrNotReady is reported by Ask before Start succeeded.
	ErrNotReady = errors.New("vqa: model not ready")

	// ErrTimeout is reported when a single model call exceeds its timeout.
	ErrTimeout = errors.New("vqa: model call timed out")
)

// Mode is the execution mode the model was loaded in.
type Mode string

const (
	ModeAccelerated Mode = "accelerated"
	ModePortable    Mode = "portable"
)

// Backend loads models. Implementations live in subpackages.
type Backend interface {
	Name() string
	// Accelerated reports whether an accelerated execution mode is available.
	Accelerated(ctx context.Context) bool
	Load(ctx context.Context, mode Mode) (Model, error)
}

// Model answers one question about one image. Implementations must return
// once ctx is done.
type Model interface {
	Answer(ctx context.Context, img image.Image, question string) (text string, score float64, err error)
}

// Answer is the gateway's reply. Err is set when the call failed; Text and
// Score then hold the sentinel values.
type Answer struct {
	Text  string
	Score float64
	Err   error
}

// Failed reports whether the answer is a failure sentinel.
func (a Answer) Failed() bool { return a.Err != nil }

// Status is the operational view of the gateway.
type Status struct {
	Ready   bool   `json:"ready"`
	Mode    Mode   `json:"mode,omitempty"`
	Backend string `json:"backend"`
	Model   string `json:"model,omitempty"`
}

// ModelNamer is implemented by backends that can name the model they serve.
type ModelNamer interface {
	ModelName() string
}

// Config controls gateway behavior.
type Config struct {
	// QuestionTimeout bounds each model call.
	QuestionTimeout time.Duration

	// ForcePortable skips the accelerated attempt.
	ForcePortable bool
}

// Hooks receives gateway events. Nil fields are skipped.
type Hooks struct {
	OnStart func(mode Mode, fellBack bool)
	OnCall  func(mode Mode, duration float64, err error)
}

// Gateway is the single entry point to the model.
type Gateway struct {
	backend Backend
	cfg     Config
	logger  log.Logger
	hooks   Hooks

	// one slot: at most one model call in flight
	slot chan struct{}

	mu    sync.RWMutex
	model Model
	mode  Mode
}

// New creates a gateway for backend. Start must succeed before Ask returns
// real answers.
func New(backend Backend, cfg Config, logger log.Logger, hooks Hooks) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.QuestionTimeout <= 0 {
		cfg.QuestionTimeout = DefaultQuestionTimeout
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		hooks:   hooks,
		slot:    make(chan struct{}, 1),
	}
}

// Start loads the model. It makes at most two attempts: accelerated when
// available, then portable if the accelerated load ran out of resources.
// Any other failure, or a failed portable attempt, is returned and is fatal.
func (g *Gateway) Start(ctx context.Context) error {
	mode := ModePortable
	if !g.cfg.ForcePortable && g.backend.Accelerated(ctx) {
		mode = ModeAccelerated
	}

	L := g.logger.With("backend", g.backend.Name())
	L.Info(ctx, "loading vqa model", "mode", mode)

	m, err := g.backend.Load(ctx, mode)
	fellBack := false
	if err != nil && mode == ModeAccelerated && errors.Is(err, ErrResource) {
		L.Warn(ctx, "accelerated load failed, retrying in portable mode", "error", err)
		mode = ModePortable
		fellBack = true
		m, err = g.backend.Load(ctx, mode)
	}
	if err != nil {
		return fmt.Errorf("load %s model (%s): %w", g.backend.Name(), mode, err)
	}

	g.mu.Lock()
	g.model = m
	g.mode = mode
	g.mu.Unlock()

	if g.hooks.OnStart != nil {
		g.hooks.OnStart(mode, fellBack)
	}
	L.Info(ctx, "vqa model ready", "mode", mode, "fell_back", fellBack)
	return nil
}

// Ask answers question about img. It never fails: errors, timeouts and
// panics inside the backend come back as an Unknown answer with zero score
// and Err set.
func (g *Gateway) Ask(ctx context.Context, img image.Image, question string) Answer {
	g.mu.RLock()
	m, mode := g.model, g.mode
	g.mu.RUnlock()
	if m == nil {
		return failed(ErrNotReady)
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return failed(ctx.Err())
	}
	defer func() { <-g.slot }()

	start := time.Now()
	text, score, err := g.call(ctx, m, img, question)
	if g.hooks.OnCall != nil {
		g.hooks.OnCall(mode, time.Since(start).Seconds(), err)
	}
	if err != nil {
		return failed(err)
	}
	return Answer{Text: strings.TrimSpace(text), Score: score}
}

func (g *Gateway) call(ctx context.Context, m Model, img image.Image, question string) (text string, score float64, err error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.QuestionTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vqa: backend panic: %v", r)
		}
	}()

	text, score, err = m.Answer(cctx, img, question)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, g.cfg.QuestionTimeout, err)
	}
	return text, score, err
}

// Status reports readiness and the selected mode.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Status{
		Ready:   g.model != nil,
		Mode:    g.mode,
		Backend: g.backend.Name(),
	}
	if n, ok := g.backend.(ModelNamer); ok {
		st.Model = n.ModelName()
	}
	return st
}

func failed(err error) Answer {
	return Answer{Text: Unknown, Score: 0, Err: err}
}
