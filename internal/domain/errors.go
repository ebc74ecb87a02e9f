package domain

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindInput               ErrorKind = "INPUT_ERROR"
	KindToolUnavailable     ErrorKind = "TOOL_UNAVAILABLE"
	KindTranslationDegraded ErrorKind = "TRANSLATION_DEGRADED"
	KindSynthesisQuality    ErrorKind = "SYNTHESIS_QUALITY_ERROR"
	KindDeadlineExceeded    ErrorKind = "DEADLINE_EXCEEDED"
	KindAllToolsFailed      ErrorKind = "ALL_TOOLS_FAILED"
)

// Fatal kinds end the query without an Answer. The others travel as warnings.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindToolUnavailable, KindTranslationDegraded:
		return false
	default:
		return true
	}
}

// PipelineError is the only error type that leaves the pipeline.
type PipelineError struct {
	Kind        ErrorKind  `json:"kind"`
	Message     string     `json:"message"`
	Stage       string     `json:"stage,omitempty"`
	FailedTools []ToolKind `json:"failed_tools,omitempty"`
	QueryID     string     `json:"query_id,omitempty"`
	Cause       error      `json:"-"`
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Stage != "" {
		fmt.Fprintf(&b, " (stage %s)", e.Stage)
	}
	if len(e.FailedTools) > 0 {
		kinds := make([]string, len(e.FailedTools))
		for i, k := range e.FailedTools {
			kinds[i] = string(k)
		}
		fmt.Fprintf(&b, " failed tools: %s", strings.Join(kinds, ","))
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches any PipelineError of the same kind, so the sentinels below work
// with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInput               = &PipelineError{Kind: KindInput, Message: "invalid question"}
	ErrToolUnavailable     = &PipelineError{Kind: KindToolUnavailable, Message: "tool unavailable"}
	ErrTranslationDegraded = &PipelineError{Kind: KindTranslationDegraded, Message: "translation degraded"}
	ErrSynthesisQuality    = &PipelineError{Kind: KindSynthesisQuality, Message: "answer failed quality checks"}
	ErrDeadlineExceeded    = &PipelineError{Kind: KindDeadlineExceeded, Message: "deadline exceeded"}
	ErrAllToolsFailed      = &PipelineError{Kind: KindAllToolsFailed, Message: "all tools failed"}
)

func NewInputError(stage, message string) *PipelineError {
	return &PipelineError{Kind: KindInput, Stage: stage, Message: message}
}

func NewAllToolsFailedError(stage string, failed []ToolKind) *PipelineError {
	return &PipelineError{
		Kind:        KindAllToolsFailed,
		Stage:       stage,
		Message:     "no data source could answer this question right now, please try again later",
		FailedTools: failed,
	}
}

func NewSynthesisQualityError(stage string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindSynthesisQuality,
		Stage:   stage,
		Message: "could not produce a reliable answer to this question",
		Cause:   cause,
	}
}

func NewDeadlineExceededError(stage string) *PipelineError {
	return &PipelineError{
		Kind:    KindDeadlineExceeded,
		Stage:   stage,
		Message: "the question took too long to answer, please try again",
	}
}

func NewToolUnavailableWarning(failed []ToolKind) Warning {
	kinds := make([]string, len(failed))
	for i, k := range failed {
		kinds[i] = string(k)
	}
	return Warning{
		Kind:    KindToolUnavailable,
		Message: "some data sources were unavailable: " + strings.Join(kinds, ", "),
	}
}

func NewTranslationDegradedWarning(detail string) Warning {
	return Warning{Kind: KindTranslationDegraded, Message: detail}
}
