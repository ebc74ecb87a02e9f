package config

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTokenBudget   = errors.New("pipeline.tokenBudget must be positive")
	ErrInvalidTimeout       = errors.New("pipeline timeouts must be positive")
	ErrDeadlineTooShort     = errors.New("pipeline.pipelineDeadlineMs must exceed pipeline.synthesisReserveMs")
	ErrInvalidThreshold     = errors.New("threshold must be within [0,1]")
	ErrInvalidMultiIntent   = errors.New("pipeline.multiIntent must be \"merged\" or \"primary\"")
	ErrMissingWorkingLang   = errors.New("pipeline.workingLanguage is required")
	ErrInvalidQuestionLimit = errors.New("pipeline.maxQuestionLength must be positive")
)

// Validate checks the pipeline section. Other sections fall back to defaults.
func (c *Config) Validate() error {
	p := c.Pipeline

	if p.TokenBudget <= 0 {
		return ErrInvalidTokenBudget
	}
	if p.PerToolTimeoutMs <= 0 || p.PipelineDeadlineMs <= 0 {
		return ErrInvalidTimeout
	}
	if p.SynthesisReserveMs < 0 || p.PipelineDeadlineMs <= p.SynthesisReserveMs {
		return ErrDeadlineTooShort
	}
	if p.WorkingLanguage == "" {
		return ErrMissingWorkingLang
	}
	if p.MaxQuestionLength <= 0 {
		return ErrInvalidQuestionLimit
	}

	thresholds := map[string]float64{
		"classifierConfidenceThreshold": p.ClassifierConfidenceThreshold,
		"secondaryIntentThreshold":      p.SecondaryIntentThreshold,
		"relevanceThreshold":            p.RelevanceThreshold,
	}
	for name, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("pipeline.%s=%v: %w", name, value, ErrInvalidThreshold)
		}
	}

	switch p.MultiIntent {
	case "merged", "primary":
	default:
		return fmt.Errorf("got %q: %w", p.MultiIntent, ErrInvalidMultiIntent)
	}

	for kind, secs := range p.CacheTTLByToolKind {
		if secs < 0 {
			return fmt.Errorf("pipeline.cacheTTLByToolKind.%s=%d: negative TTL", kind, secs)
		}
	}

	return nil
}
