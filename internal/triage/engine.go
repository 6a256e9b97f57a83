package triage

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vettriage/internal/answercache"
	"github.com/linnemanlabs/vettriage/internal/rules"
	"github.com/linnemanlabs/vettriage/internal/vqa"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vettriage/internal/triage")

// criticalSkipThreshold is the confidence a concerning critical finding must
// exceed to suppress the health phase.
const criticalSkipThreshold = 0.6

// Gateway answers questions about an image. *vqa.Gateway implements it.
type Gateway interface {
	Ask(ctx context.Context, img image.Image, question string) vqa.Answer
	Status() vqa.Status
}

// Rules supplies the question catalog and answer interpretation.
// *rules.Ruleset implements it.
type Rules interface {
	Tier(t rules.Tier) []string
	Score(answer string) float64
	IsConcerning(question, answer string, confidence float64) bool
	IsPositive(answer string) bool
}

// Bundle maps each question of one phase to the gateway's answer. Failed
// answers are kept as failure markers.
type Bundle map[string]vqa.Answer

// Deps are the collaborators of an Engine. Cache may be nil to disable
// answer reuse.
type Deps struct {
	Gateway Gateway
	Cache   *answercache.Cache[Bundle]
	Rules   Rules
}

// CompleteEvent describes a finished run for metrics.
type CompleteEvent struct {
	Urgency   Urgency
	Mode      vqa.Mode
	Duration  float64
	Truncated bool
	Failed    bool
}

// EngineHooks receives engine events. Nil fields are skipped.
type EngineHooks struct {
	OnQuestion func(tier rules.Tier, failed, cached bool)
	OnComplete func(e *CompleteEvent)
}

// Engine runs the three triage phases against one image.
type Engine struct {
	gateway Gateway
	cache   *answercache.Cache[Bundle]
	rules   Rules
	logger  log.Logger
	hooks   EngineHooks

	synthesize func(critical, priority, health []Finding) Assessment
}

// NewEngine creates an engine. Gateway and Rules are required.
func NewEngine(deps Deps, logger log.Logger, hooks EngineHooks) *Engine {
	if deps.Gateway == nil {
		panic(xerrors.New("triage engine requires a gateway"))
	}
	if deps.Rules == nil {
		panic(xerrors.New("triage engine requires rules"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		gateway: deps.Gateway,
		cache:   deps.Cache,
		rules:   deps.Rules,
		logger:  logger,
		hooks:   hooks,

		synthesize: Synthesize,
	}
}

// Run analyzes img. The critical and priority phases always run; the health
// phase runs only when no critical concern was found. If ctx is done before a
// phase starts, the remaining phases are skipped and the result is marked
// truncated. Run never returns nil; a panic during the run is reported in
// Result.Error alongside the findings gathered so far.
func (e *Engine) Run(ctx context.Context, img image.Image) (res *Result) {
	start := time.Now()
	st := e.gateway.Status()

	ctx, span := tracer.Start(ctx, "triage.Run", trace.WithAttributes(
		attribute.String("vqa.backend", st.Backend),
		attribute.String("vqa.mode", string(st.Mode)),
	))
	defer span.End()

	res = &Result{
		CriticalFindings: []Finding{},
		PriorityFindings: []Finding{},
		HealthFindings:   []Finding{},
		ModelUsed:        modelName(st),
		ExecutionMode:    st.Mode,
	}

	imgFP := answercache.ImageFingerprint(img)
	res.ImageFingerprint = fmt.Sprintf("%016x", imgFP)
	L := e.logger.With("image_fingerprint", res.ImageFingerprint)

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("triage panic: %v", r)
			L.Error(ctx, fmt.Errorf("%s", res.Error), "triage run panicked")
			span.SetStatus(codes.Error, res.Error)
		}
		if err := e.assess(res); err != nil {
			res.Error = joinErr(res.Error, err.Error())
			L.Error(ctx, err, "assessment failed")
			span.SetStatus(codes.Error, res.Error)
		}
		res.ProcessingTime = time.Since(start).Seconds()

		span.SetAttributes(
			attribute.String("triage.urgency", string(res.OverallAssessment.UrgencyLevel)),
			attribute.Bool("triage.truncated", res.Truncated),
		)
		if e.hooks.OnComplete != nil {
			e.hooks.OnComplete(&CompleteEvent{
				Urgency:   res.OverallAssessment.UrgencyLevel,
				Mode:      res.ExecutionMode,
				Duration:  res.ProcessingTime,
				Truncated: res.Truncated,
				Failed:    res.Error != "",
			})
		}
		L.Info(ctx, "triage complete",
			"urgency", res.OverallAssessment.UrgencyLevel,
			"summary", res.OverallAssessment.Summary,
			"truncated", res.Truncated,
			"duration", res.ProcessingTime,
		)
	}()

	if !e.phaseAllowed(ctx, L, res, rules.TierCritical) {
		return res
	}
	e.runPhase(ctx, L, img, imgFP, rules.TierCritical, &res.CriticalFindings)

	if !e.phaseAllowed(ctx, L, res, rules.TierPriority) {
		return res
	}
	e.runPhase(ctx, L, img, imgFP, rules.TierPriority, &res.PriorityFindings)

	if criticalConcernFound(res.CriticalFindings) {
		L.Info(ctx, "critical concern found, skipping health phase")
		e.deadlineHit(ctx, L, res)
		return res
	}
	if !e.phaseAllowed(ctx, L, res, rules.TierHealth) {
		return res
	}
	e.runPhase(ctx, L, img, imgFP, rules.TierHealth, &res.HealthFindings)
	e.deadlineHit(ctx, L, res)

	return res
}

// AskOne answers a single ad hoc question. It bypasses the cache and derives
// no concern or health flags.
func (e *Engine) AskOne(ctx context.Context, img image.Image, question string) QuickAnswer {
	ctx, span := tracer.Start(ctx, "triage.AskOne")
	defer span.End()

	a := e.gateway.Ask(ctx, img, question)
	if a.Failed() {
		e.logger.Warn(ctx, "question failed", "question", question, "error", a.Err)
		span.RecordError(a.Err)
		return QuickAnswer{Question: question, Answer: vqa.Unknown}
	}
	return QuickAnswer{Question: question, Answer: a.Text, Confidence: e.rules.Score(a.Text)}
}

func (e *Engine) phaseAllowed(ctx context.Context, L log.Logger, res *Result, tier rules.Tier) bool {
	if err := ctx.Err(); err != nil {
		res.Truncated = true
		L.Warn(ctx, "request deadline reached, skipping remaining phases", "next_phase", tier, "error", err)
		return false
	}
	return true
}

// deadlineHit marks res truncated when ctx ended during the last phase run;
// its remaining questions were degraded rather than answered.
func (e *Engine) deadlineHit(ctx context.Context, L log.Logger, res *Result) {
	if err := ctx.Err(); err != nil {
		res.Truncated = true
		L.Warn(ctx, "request deadline reached during final phase", "error", err)
	}
}

// assess fills in the overall assessment. A panic while synthesizing is
// returned as an error and leaves the zero Assessment.
func (e *Engine) assess(res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assessment panic: %v", r)
		}
	}()
	res.OverallAssessment = e.synthesize(res.CriticalFindings, res.PriorityFindings, res.HealthFindings)
	return nil
}

func joinErr(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "; " + next
}

func (e *Engine) runPhase(ctx context.Context, L log.Logger, img image.Image, imgFP uint64, tier rules.Tier, out *[]Finding) {
	questions := e.rules.Tier(tier)

	ctx, span := tracer.Start(ctx, "triage.phase", trace.WithAttributes(
		attribute.String("triage.tier", string(tier)),
		attribute.Int("triage.questions", len(questions)),
	))
	defer span.End()

	key := answercache.KeyFor(imgFP, questions)
	var (
		bundle Bundle
		hit    bool
	)
	if e.cache != nil {
		bundle, hit = e.cache.Get(key)
	}
	if !hit {
		bundle = make(Bundle, len(questions))
	}
	span.SetAttributes(attribute.Bool("triage.cache_hit", hit))

	failures := 0
	for _, q := range questions {
		a, cached := bundle[q]
		if !cached {
			a = e.gateway.Ask(ctx, img, q)
			if !hit {
				bundle[q] = a
			}
		}
		if a.Failed() {
			failures++
			L.Warn(ctx, "question failed", "tier", tier, "question", q, "cached", cached, "error", a.Err)
		}
		if e.hooks.OnQuestion != nil {
			e.hooks.OnQuestion(tier, a.Failed(), cached)
		}
		*out = append(*out, e.finding(tier, q, a))
	}
	span.SetAttributes(attribute.Int("triage.failures", failures))

	// answers gathered after the deadline may be cancellation artifacts
	if e.cache != nil && !hit && ctx.Err() == nil {
		e.cache.Put(key, bundle)
	}
}

func (e *Engine) finding(tier rules.Tier, question string, a vqa.Answer) Finding {
	f := Finding{Tier: tier, Question: question}
	if a.Failed() {
		f.Answer = vqa.Unknown
		return f
	}
	f.Answer = a.Text
	f.Confidence = e.rules.Score(a.Text)
	if tier == rules.TierHealth {
		f.Positive = e.rules.IsPositive(a.Text)
	} else {
		f.Concerning = e.rules.IsConcerning(question, a.Text, f.Confidence)
	}
	return f
}

func criticalConcernFound(fs []Finding) bool {
	for _, f := range fs {
		if f.Concerning && f.Confidence > criticalSkipThreshold {
			return true
		}
	}
	return false
}

func modelName(st vqa.Status) string {
	if st.Model != "" {
		return st.Model
	}
	return st.Backend
}
