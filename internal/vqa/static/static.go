// Package static is a scripted vqa backend for local runs and tests. Answers
// are chosen by matching question keywords; nothing is inferred from the image.
package static

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/vettriage/internal/vqa"
)

// ErrScripted is returned for questions configured to fail.
var ErrScripted = errors.New("static: scripted failure")

// Rule answers any question containing Keyword (case-insensitive).
type Rule struct {
	Keyword string
	Answer  string
	// Delay simulates inference time; the call honors ctx while waiting.
	Delay time.Duration
	Fail  bool
}

// Backend hands out a scripted Model.
type Backend struct {
	Rules   []Rule
	Default string

	// HasAccelerator is reported by Accelerated.
	HasAccelerator bool
	// LoadErrs are returned by successive Load calls before loading succeeds.
	LoadErrs []error
	// Record keeps every question asked for Calls. Off by default so a
	// long-running server does not accumulate questions.
	Record bool

	mu    sync.Mutex
	loads []vqa.Mode
	calls []string
}

// New returns a backend answering default to every question not matched by rules.
func New(def string, rules ...Rule) *Backend {
	return &Backend{Rules: rules, Default: def}
}

// Name implements vqa.Backend.
func (b *Backend) Name() string { return "static" }

// Accelerated implements vqa.Backend.
func (b *Backend) Accelerated(context.Context) bool { return b.HasAccelerator }

// Load implements vqa.Backend.
func (b *Backend) Load(_ context.Context, mode vqa.Mode) (vqa.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.loads)
	b.loads = append(b.loads, mode)
	if n < len(b.LoadErrs) && b.LoadErrs[n] != nil {
		return nil, b.LoadErrs[n]
	}
	return b, nil
}

// Loads returns the modes Load was called with, in order.
func (b *Backend) Loads() []vqa.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]vqa.Mode(nil), b.loads...)
}

// Calls returns the questions answered so far, in order. It is empty unless
// Record is set.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Answer implements vqa.Model.
func (b *Backend) Answer(ctx context.Context, _ image.Image, question string) (string, float64, error) {
	if b.Record {
		b.mu.Lock()
		b.calls = append(b.calls, question)
		b.mu.Unlock()
	}

	rule, ok := b.match(question)
	if !ok {
		return b.Default, 1, nil
	}
	if rule.Delay > 0 {
		t := time.NewTimer(rule.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	if rule.Fail {
		return "", 0, ErrScripted
	}
	return rule.Answer, 1, nil
}

func (b *Backend) match(question string) (Rule, bool) {
	q := strings.ToLower(question)
	for _, r := range b.Rules {
		if strings.Contains(q, strings.ToLower(r.Keyword)) {
			return r, true
		}
	}
	return Rule{}, false
}
