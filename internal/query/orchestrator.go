package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/assembler"
	"github.com/farmora/backend/internal/cache"
	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/intent"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/internal/synthesis"
	"github.com/farmora/backend/internal/translate"
	"github.com/farmora/backend/pkg/logger"
)

const tracerName = "github.com/farmora/backend/internal/query"

// Synthesizer produces the answer from the assembled context.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*domain.Answer, error)
}

type Config struct {
	Deadline         time.Duration
	PerToolTimeout   time.Duration
	SynthesisReserve time.Duration
	PriorContextTTL  time.Duration
	ExportTimeout    time.Duration
	Clock            clockwork.Clock
}

func (c *Config) setDefaults() {
	if c.Deadline <= 0 {
		c.Deadline = 12 * time.Second
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 8 * time.Second
	}
	if c.SynthesisReserve <= 0 {
		c.SynthesisReserve = 3 * time.Second
	}
	if c.PriorContextTTL <= 0 {
		c.PriorContextTTL = 6 * time.Hour
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

type Request struct {
	Question string
	// Location is nil when the caller sent none.
	Location     *domain.Location
	UserLanguage string
	UserID       string
}

type Orchestrator struct {
	normalizer *translate.Normalizer
	classifier *intent.Classifier
	assembler  *assembler.Assembler
	moderator  *moderator.Moderator
	engine     Synthesizer
	exporter   TraceExporter
	prior      *cache.Coalescing[domain.AssembledContext]
	tracer     trace.Tracer
	cfg        Config
}

// NewOrchestrator wires the pipeline. exporter may be nil.
func NewOrchestrator(
	normalizer *translate.Normalizer,
	classifier *intent.Classifier,
	asm *assembler.Assembler,
	mod *moderator.Moderator,
	engine Synthesizer,
	exporter TraceExporter,
	cfg Config,
) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		normalizer: normalizer,
		classifier: classifier,
		assembler:  asm,
		moderator:  mod,
		engine:     engine,
		exporter:   exporter,
		prior: cache.New(cache.Options[domain.AssembledContext]{
			Name:      "prior_context",
			Clock:     cfg.Clock,
			Cacheable: func(c domain.AssembledContext) bool { return !c.Empty },
			Logger:    logger.GetLogger(),
		}),
		tracer: otel.Tracer(tracerName),
		cfg:    cfg,
	}
}

// run carries the per-query state between stages.
type run struct {
	trace    *Trace
	query    domain.Query
	text     string
	language string
	intent   domain.Intent
	context  domain.AssembledContext
	answer   *domain.Answer
	warnings []domain.Warning
	degraded bool
}

func (r *run) warn(w domain.Warning) {
	r.warnings = append(r.warnings, w)
	r.degraded = true
}

// AskQuery runs one question through the pipeline. It returns exactly one of
// an Answer or a *domain.PipelineError.
func (o *Orchestrator) AskQuery(ctx context.Context, req Request) (*domain.Answer, error) {
	start := o.cfg.Clock.Now()
	q := domain.Query{
		ID:           uuid.New().String(),
		RawText:      req.Question,
		UserLanguage: req.UserLanguage,
		UserID:       req.UserID,
		Timestamp:    start,
	}
	if req.Location != nil {
		q.Location = *req.Location
	}

	r := &run{trace: newTrace(q, start), query: q}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "farmora.ask", trace.WithAttributes(
		attribute.String("query.id", q.ID),
		attribute.String("query.language", q.UserLanguage),
	))
	defer span.End()

	logger.Info("Processing query",
		zap.String("query_id", q.ID),
		zap.String("user_id", q.UserID),
		zap.Int("length", len(q.RawText)),
	)

	answer, perr := o.execute(ctx, r)

	r.trace.FinishedAt = o.cfg.Clock.Now()
	if perr != nil {
		perr.QueryID = q.ID
		r.trace.Err = perr
		if !r.trace.State.Terminal() {
			r.trace.move(StateAborted, moderator.Abort, perr.Message, r.trace.FinishedAt)
		}
		span.RecordError(perr)
		span.SetStatus(codes.Error, string(perr.Kind))
	} else {
		r.trace.Answer = answer
		r.trace.move(StateCompleted, moderator.Proceed, "", r.trace.FinishedAt)
		span.SetAttributes(
			attribute.Bool("answer.degraded", answer.Degraded),
			attribute.Float64("answer.confidence", answer.Confidence),
		)
	}

	o.finish(ctx, r)

	if perr != nil {
		return nil, perr
	}
	return answer, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*domain.Answer, *domain.PipelineError) {
	if perr := o.normalize(ctx, r); perr != nil {
		return nil, perr
	}
	if perr := o.classify(ctx, r); perr != nil {
		return nil, perr
	}
	if perr := o.assemble(ctx, r); perr != nil {
		return nil, perr
	}
	if perr := o.synthesize(ctx, r); perr != nil {
		return nil, perr
	}
	return o.finalize(ctx, r), nil
}

func (o *Orchestrator) stage(ctx context.Context, r *run, state State) (context.Context, func()) {
	r.trace.move(state, moderator.Proceed, "", o.cfg.Clock.Now())
	ctx, span := o.tracer.Start(ctx, "stage."+strings.ToLower(string(state)))
	began := o.cfg.Clock.Now()
	return ctx, func() {
		metrics.StageDuration.WithLabelValues(strings.ToLower(string(state))).Observe(o.cfg.Clock.Since(began).Seconds())
		span.End()
	}
}

func (o *Orchestrator) deadlineHit(ctx context.Context, state State) *domain.PipelineError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewDeadlineExceededError(strings.ToLower(string(state)))
	}
	if ctx.Err() != nil {
		return domain.NewInputError(strings.ToLower(string(state)), "request cancelled")
	}
	return nil
}

func (o *Orchestrator) normalize(ctx context.Context, r *run) *domain.PipelineError {
	ctx, end := o.stage(ctx, r, StateNormalizing)
	defer end()

	res := o.normalizer.ToWorkingLanguage(ctx, r.query.RawText, r.query.UserLanguage)
	r.text = res.Text
	r.language = res.Source
	r.trace.Language = res.Source
	if res.Degraded {
		r.warn(domain.NewTranslationDegradedWarning("question could not be translated: " + res.Detail))
	}
	return o.deadlineHit(ctx, StateNormalizing)
}

func (o *Orchestrator) classify(ctx context.Context, r *run) *domain.PipelineError {
	ctx, end := o.stage(ctx, r, StateClassifying)
	defer end()

	r.intent = o.classifier.Classify(r.text, r.query.Location)
	r.trace.Intent = r.intent
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("intent.label", string(r.intent.Label)),
		attribute.Float64("intent.confidence", r.intent.Confidence),
	)

	d := o.moderator.Check(moderator.StageClassification, moderator.Output{Question: r.text, Intent: r.intent})
	if d.Verdict == moderator.Abort {
		return d.Err
	}
	return o.deadlineHit(ctx, StateClassifying)
}

// assemblyWindow is min(perToolTimeout, remaining deadline - synthesis reserve).
// Once earlier stages have eaten into the reserve, tools get whatever is left of
// the deadline instead. A result <= 0 means the deadline has passed.
func (o *Orchestrator) assemblyWindow(ctx context.Context) time.Duration {
	window := o.cfg.PerToolTimeout
	dl, ok := ctx.Deadline()
	if !ok {
		return window
	}
	left := time.Until(dl)
	if reserved := left - o.cfg.SynthesisReserve; reserved > 0 {
		left = reserved
	}
	if left < window {
		window = left
	}
	return window
}

func (o *Orchestrator) assemble(ctx context.Context, r *run) *domain.PipelineError {
	ctx, end := o.stage(ctx, r, StateAssembling)
	defer end()

	priorKey := o.priorKey(r)
	_, hasPrior := o.prior.Peek(priorKey)

	var d moderator.Decision
	for attempt := 0; ; attempt++ {
		window := o.assemblyWindow(ctx)
		if window <= 0 {
			return domain.NewDeadlineExceededError(strings.ToLower(string(StateAssembling)))
		}
		actx, cancel := context.WithTimeout(ctx, window)
		r.context = o.assembler.Assemble(actx, r.intent, r.query, assembler.Options{
			Relaxed: attempt > 0,
			Observe: func(res domain.ToolResult) { r.trace.ToolResults = append(r.trace.ToolResults, res) },
		})
		cancel()

		d = o.moderator.Check(moderator.StageAssembly, moderator.Output{
			Attempt:         attempt,
			Question:        r.text,
			Intent:          r.intent,
			Context:         &r.context,
			HasPriorContext: hasPrior,
		})
		if d.Verdict != moderator.RetryWithFallback {
			break
		}
		if perr := o.deadlineHit(ctx, StateAssembling); perr != nil {
			return perr
		}
		if !r.trace.retry(d.Reason, o.cfg.Clock.Now()) {
			return domain.NewAllToolsFailedError(string(moderator.StageAssembly), r.context.FailedTools)
		}
		logger.Info("Retrying assembly with relaxed tiers", zap.String("query_id", r.query.ID))
	}

	if d.Verdict == moderator.Abort {
		return d.Err
	}

	failed := r.context.FailedTools
	switch {
	case d.UsePriorContext:
		prior, ok := o.prior.Peek(priorKey)
		if !ok {
			return domain.NewAllToolsFailedError(string(moderator.StageAssembly), failed)
		}
		prior.Stale = true
		prior.FailedTools = failed
		prior.AttemptedTools = r.context.AttemptedTools
		r.context = prior
	case d.NoExternalData:
		r.context.NoExternalData = true
	case !r.context.Empty:
		o.prior.Set(priorKey, r.context, o.cfg.PriorContextTTL)
	}
	if len(failed) > 0 {
		r.warn(domain.NewToolUnavailableWarning(failed))
	}

	metrics.ContextTokens.Observe(float64(r.context.TokenBudgetUsed))
	metrics.ContextFacts.Observe(float64(len(r.context.Facts)))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("context.facts", len(r.context.Facts)),
		attribute.Int("context.tokens", r.context.TokenBudgetUsed),
		attribute.Bool("context.stale", r.context.Stale),
	)

	return o.deadlineHit(ctx, StateAssembling)
}

// priorKey identifies "the same kind of question from the same place".
func (o *Orchestrator) priorKey(r *run) string {
	state := r.intent.Entity(domain.EntityState)
	if state == "" {
		state = r.query.Location.State
	}
	district := r.intent.Entity(domain.EntityDistrict)
	if district == "" {
		district = r.query.Location.District
	}
	return strings.ToLower(fmt.Sprintf("prior:%s:%s:%s:%s",
		r.intent.Label, state, district, r.intent.Entity(domain.EntityCommodity)))
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) *domain.PipelineError {
	ctx, end := o.stage(ctx, r, StateSynthesizing)
	defer end()

	for attempt := 0; ; attempt++ {
		ans, err := o.engine.Synthesize(ctx, synthesis.Request{
			QueryID:         r.query.ID,
			Question:        r.text,
			Intent:          r.intent,
			Context:         r.context,
			WorkingLanguage: o.normalizer.WorkingLanguage(),
			Strict:          attempt > 0,
		})
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.NewDeadlineExceededError(strings.ToLower(string(StateSynthesizing)))
		}

		d := o.moderator.Check(moderator.StageSynthesis, moderator.Output{
			Attempt:      attempt,
			Question:     r.text,
			Intent:       r.intent,
			Answer:       ans,
			SynthesisErr: err,
		})
		switch d.Verdict {
		case moderator.Proceed:
			r.answer = ans
			return nil
		case moderator.Abort:
			return d.Err
		}

		logger.Warn("Synthesis rejected, retrying with strict prompt",
			zap.String("query_id", r.query.ID),
			zap.String("reason", d.Reason),
		)
		if perr := o.deadlineHit(ctx, StateSynthesizing); perr != nil {
			return perr
		}
		if !r.trace.retry(d.Reason, o.cfg.Clock.Now()) {
			return domain.NewSynthesisQualityError(string(moderator.StageSynthesis), errors.New(d.Reason))
		}
	}
}

// finalize translates the answer back and seals it. It never fails: a missed
// deadline or a failed translation delivers the working-language text.
func (o *Orchestrator) finalize(ctx context.Context, r *run) *domain.Answer {
	ctx, end := o.stage(ctx, r, StateFinalizing)
	defer end()

	text := r.answer.Text
	lang := o.normalizer.WorkingLanguage()

	if ctx.Err() != nil {
		r.warn(domain.NewTranslationDegradedWarning("deadline reached before the answer could be translated"))
	} else {
		res := o.normalizer.ToUserLanguage(ctx, r.answer.Text, r.language, r.intent.Entities)
		d := o.moderator.Check(moderator.StageFinal, moderator.Output{TranslatedText: res.Text})
		switch {
		case d.UseWorkingText:
			r.warn(domain.NewTranslationDegradedWarning("translation came back empty"))
		case res.Degraded:
			r.warn(domain.NewTranslationDegradedWarning("answer could not be translated: " + res.Detail))
		default:
			text = res.Text
			lang = res.Target
		}
	}

	sources := make([]string, len(r.answer.Sources))
	copy(sources, r.answer.Sources)

	out := &domain.Answer{
		QueryID:      r.query.ID,
		Text:         text,
		Sources:      sources,
		Confidence:   r.answer.Confidence,
		Intent:       r.intent,
		LanguageUsed: lang,
		Degraded:     r.degraded || r.context.Stale,
		Warnings:     r.warnings,
		CreatedAt:    o.cfg.Clock.Now(),
	}
	return out
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	t := r.trace
	label := string(t.Intent.Label)
	if label == "" {
		label = "none"
	}
	metrics.QueryTotal.WithLabelValues(t.Outcome()).Inc()
	metrics.QueryDuration.WithLabelValues(label).Observe(t.Latency().Seconds())
	if t.Answer != nil {
		metrics.ConfidenceScore.Observe(t.Answer.Confidence)
	}

	fields := []zap.Field{
		zap.String("query_id", t.Query.ID),
		zap.String("state", string(t.State)),
		zap.String("outcome", t.Outcome()),
		zap.String("intent", label),
		zap.Duration("latency", t.Latency()),
		zap.Int("transitions", len(t.Transitions)),
	}
	if t.Err != nil {
		logger.Warn("Query aborted", append(fields, zap.String("reason", t.Err.Message))...)
	} else {
		logger.Info("Query completed", fields...)
	}

	if o.exporter == nil {
		return
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ExportTimeout)
	defer cancel()
	if err := o.exporter.ExportTrace(ectx, t.Record()); err != nil {
		logger.Warn("Failed to export trace", zap.String("query_id", t.Query.ID), zap.Error(err))
	}
}

// InvalidatePriorContext drops cached contexts whose key starts with
// "prior:"+prefix and returns how many were removed.
func (o *Orchestrator) InvalidatePriorContext(prefix string) int {
	return o.prior.Purge("prior:" + strings.ToLower(prefix))
}
