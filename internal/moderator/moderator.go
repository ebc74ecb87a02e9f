package moderator

import (
	"fmt"
	"strings"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/metrics"
)

type Stage string

const (
	StageClassification Stage = "classification"
	StageAssembly       Stage = "assembly"
	StageSynthesis      Stage = "synthesis"
	StageFinal          Stage = "final"
)

type Verdict string

const (
	Proceed           Verdict = "proceed"
	RetryWithFallback Verdict = "retry_with_fallback"
	Abort             Verdict = "abort"
)

// MaxRetries is the number of retries any one stage may get.
const MaxRetries = 1

// Output is the observable state of the pipeline after a stage. Only the
// fields relevant to the stage being checked are read.
type Output struct {
	// Attempt is 0 for the first run of a stage and 1 for its retry.
	Attempt int

	Question string
	Intent   domain.Intent

	Context         *domain.AssembledContext
	HasPriorContext bool

	Answer       *domain.Answer
	SynthesisErr error

	TranslatedText string
}

type Decision struct {
	Stage   Stage
	Verdict Verdict
	Reason  string
	Err     *domain.PipelineError

	// UsePriorContext asks the orchestrator to substitute the cached context
	// of an earlier similar query.
	UsePriorContext bool
	NoExternalData  bool
	// UseWorkingText delivers the untranslated answer.
	UseWorkingText bool
	Relevance      float64
}

type Moderator struct {
	relevance RelevanceStrategy
	threshold float64
}

func New(strategy RelevanceStrategy, threshold float64) *Moderator {
	if strategy == nil {
		strategy = KeywordOverlap{}
	}
	return &Moderator{relevance: strategy, threshold: threshold}
}

// Check decides what happens after a stage. It has no side effects besides
// a metrics counter and never returns RetryWithFallback once Attempt reaches
// MaxRetries.
func (m *Moderator) Check(stage Stage, out Output) Decision {
	var d Decision
	switch stage {
	case StageClassification:
		d = m.checkClassification(out)
	case StageAssembly:
		d = m.checkAssembly(out)
	case StageSynthesis:
		d = m.checkSynthesis(out)
	case StageFinal:
		d = m.checkFinal(out)
	default:
		d = Decision{Verdict: Abort, Reason: "unknown stage",
			Err: domain.NewInputError(string(stage), fmt.Sprintf("unknown stage %q", stage))}
	}
	d.Stage = stage

	metrics.ModeratorVerdicts.WithLabelValues(string(stage), string(d.Verdict)).Inc()
	return d
}

func (m *Moderator) checkClassification(out Output) Decision {
	if strings.TrimSpace(out.Question) == "" {
		return Decision{
			Verdict: Abort,
			Reason:  "empty question after normalization",
			Err:     domain.NewInputError(string(StageClassification), "the question is empty"),
		}
	}
	return Decision{Verdict: Proceed}
}

func (m *Moderator) checkAssembly(out Output) Decision {
	ac := out.Context
	if ac == nil {
		ac = &domain.AssembledContext{Empty: true}
	}

	if !ac.Empty {
		return Decision{Verdict: Proceed}
	}
	if len(out.Intent.RequiredTools) == 0 {
		return Decision{Verdict: Proceed, NoExternalData: true, Reason: "no tools required"}
	}
	if out.Attempt < MaxRetries {
		return Decision{Verdict: RetryWithFallback, Reason: "no usable facts, retrying with relaxed tiers"}
	}

	if ac.AllToolsFailed() {
		if out.HasPriorContext {
			return Decision{Verdict: Proceed, UsePriorContext: true, Reason: "live tools failed, using prior context"}
		}
		return Decision{
			Verdict: Abort,
			Reason:  "every required tool failed",
			Err:     domain.NewAllToolsFailedError(string(StageAssembly), ac.FailedTools),
		}
	}
	return Decision{Verdict: Proceed, NoExternalData: true, Reason: "tools answered without usable facts"}
}

func (m *Moderator) checkSynthesis(out Output) Decision {
	var problem error
	var score float64
	switch {
	case out.SynthesisErr != nil:
		problem = out.SynthesisErr
	case out.Answer == nil || strings.TrimSpace(out.Answer.Text) == "":
		problem = fmt.Errorf("empty answer")
	default:
		score = m.relevance.Score(out.Question, out.Intent, out.Answer.Text)
		if score < m.threshold {
			problem = fmt.Errorf("answer relevance %.2f below %.2f", score, m.threshold)
		}
	}

	if problem == nil {
		return Decision{Verdict: Proceed, Relevance: score}
	}
	if out.Attempt < MaxRetries {
		return Decision{Verdict: RetryWithFallback, Reason: problem.Error(), Relevance: score}
	}
	return Decision{
		Verdict:   Abort,
		Reason:    problem.Error(),
		Relevance: score,
		Err:       domain.NewSynthesisQualityError(string(StageSynthesis), problem),
	}
}

func (m *Moderator) checkFinal(out Output) Decision {
	if strings.TrimSpace(out.TranslatedText) == "" {
		return Decision{Verdict: Proceed, UseWorkingText: true, Reason: "empty translation"}
	}
	return Decision{Verdict: Proceed}
}
