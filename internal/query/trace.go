package query

import (
	"context"
	"time"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/internal/storage/models"
)

type State string

const (
	StateReceived     State = "Received"
	StateNormalizing  State = "Normalizing"
	StateClassifying  State = "Classifying"
	StateAssembling   State = "Assembling"
	StateSynthesizing State = "Synthesizing"
	StateFinalizing   State = "Finalizing"
	StateCompleted    State = "Completed"
	StateAborted      State = "Aborted"
)

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

type Transition struct {
	From    State             `json:"from"`
	To      State             `json:"to"`
	Verdict moderator.Verdict `json:"verdict,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	At      time.Time         `json:"at"`
}

// Trace is the ordered record of one query's trip through the pipeline.
type Trace struct {
	Query       domain.Query          `json:"query"`
	Language    string                `json:"language"`
	Intent      domain.Intent         `json:"intent"`
	State       State                 `json:"state"`
	Transitions []Transition          `json:"transitions"`
	ToolResults []domain.ToolResult   `json:"tool_results,omitempty"`
	Retries     map[State]int         `json:"retries,omitempty"`
	Answer      *domain.Answer        `json:"answer,omitempty"`
	Err         *domain.PipelineError `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
}

func newTrace(q domain.Query, at time.Time) *Trace {
	return &Trace{
		Query:     q,
		State:     StateReceived,
		Retries:   make(map[State]int),
		StartedAt: at,
	}
}

func (t *Trace) move(to State, verdict moderator.Verdict, reason string, at time.Time) {
	t.Transitions = append(t.Transitions, Transition{From: t.State, To: to, Verdict: verdict, Reason: reason, At: at})
	t.State = to
}

// retry records a same-state transition and reports whether the state still
// had a retry left.
func (t *Trace) retry(reason string, at time.Time) bool {
	if t.Retries[t.State] >= moderator.MaxRetries {
		return false
	}
	t.Retries[t.State]++
	t.move(t.State, moderator.RetryWithFallback, reason, at)
	return true
}

func (t *Trace) Outcome() string {
	switch {
	case t.Err != nil:
		return string(t.Err.Kind)
	case t.Answer != nil && t.Answer.Degraded:
		return "degraded"
	case t.Answer != nil:
		return "completed"
	}
	return "unknown"
}

func (t *Trace) Latency() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}

// Record flattens the trace for storage.
func (t *Trace) Record() models.TraceRecord {
	r := models.TraceRecord{
		QueryID:     t.Query.ID,
		UserID:      t.Query.UserID,
		Question:    t.Query.RawText,
		Language:    t.Language,
		IntentLabel: string(t.Intent.Label),
		FinalState:  string(t.State),
		Outcome:     t.Outcome(),
		StartedAt:   t.StartedAt,
		LatencyMS:   t.Latency().Milliseconds(),
	}
	if t.Err != nil {
		r.ErrorKind = string(t.Err.Kind)
	}
	if t.Answer != nil {
		r.Degraded = t.Answer.Degraded
		r.Confidence = t.Answer.Confidence
		r.Sources = t.Answer.Sources
	}
	for _, tr := range t.Transitions {
		r.Transitions = append(r.Transitions, models.Transition{
			From:    string(tr.From),
			To:      string(tr.To),
			Verdict: string(tr.Verdict),
			Reason:  tr.Reason,
			At:      tr.At,
		})
	}
	for _, res := range t.ToolResults {
		r.ToolResults = append(r.ToolResults, models.ToolCallRecord{
			Kind:   string(res.Kind),
			Status: string(res.Status),
			Tier:   res.Tier,
			Error:  res.Error,
		})
	}
	return r
}

// TraceExporter receives every finished trace.
type TraceExporter interface {
	ExportTrace(ctx context.Context, t models.TraceRecord) error
}
