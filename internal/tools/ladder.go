package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/pkg/logger"
)

// TierFunc produces the payload for one fallback tier.
type TierFunc func(ctx context.Context, p Params) (domain.Payload, error)

type Tier struct {
	Name    string
	Timeout time.Duration
	// RelaxedOnly tiers run only when Params.Relaxed is set.
	RelaxedOnly bool
	Run         TierFunc
}

// Ladder tries its tiers in order until one yields a payload. The first tier
// to succeed gives StatusOK, a later one StatusPartial.
type Ladder struct {
	kind    domain.ToolKind
	source  string
	timeout time.Duration
	tiers   []Tier
	clock   clockwork.Clock
}

type LadderOption func(*Ladder)

func WithClock(c clockwork.Clock) LadderOption {
	return func(l *Ladder) { l.clock = c }
}

func NewLadder(kind domain.ToolKind, source string, timeout time.Duration, tiers []Tier, opts ...LadderOption) *Ladder {
	l := &Ladder{
		kind:    kind,
		source:  source,
		timeout: timeout,
		tiers:   tiers,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ladder) Kind() domain.ToolKind {
	return l.kind
}

func (l *Ladder) Source() string {
	return l.source
}

func (l *Ladder) Fetch(ctx context.Context, p Params) domain.ToolResult {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	res := domain.ToolResult{
		Kind:        l.kind,
		SourceLabel: l.source,
		Params:      p.Normalized(),
	}

	first := true
	for _, tier := range l.tiers {
		if tier.RelaxedOnly && !p.Relaxed {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, domain.TierAttempt{Tier: tier.Name, Error: "skipped: " + describe(err)})
			continue
		}

		start := l.clock.Now()
		payload, err := l.runTier(ctx, tier, p)
		attempt := domain.TierAttempt{Tier: tier.Name, OK: err == nil, Duration: l.clock.Since(start)}
		if err != nil {
			attempt.Error = describe(err)
		}
		res.Attempts = append(res.Attempts, attempt)
		metrics.ToolTierAttempts.WithLabelValues(string(l.kind), tier.Name, resultLabel(err)).Inc()

		if err == nil {
			res.Payload = payload
			res.Tier = tier.Name
			res.FetchedAt = l.clock.Now()
			res.Status = domain.StatusPartial
			if first {
				res.Status = domain.StatusOK
			}
			metrics.ToolCalls.WithLabelValues(string(l.kind), string(res.Status)).Inc()
			return res
		}

		logger.Debug("Tool tier failed",
			zap.String("tool", string(l.kind)),
			zap.String("tier", tier.Name),
			zap.Error(err),
		)
		first = false
	}

	res.Status = domain.StatusFailed
	res.FetchedAt = l.clock.Now()
	res.Error = l.failureReason(res.Attempts)
	metrics.ToolCalls.WithLabelValues(string(l.kind), string(res.Status)).Inc()

	logger.Warn("Tool exhausted all tiers",
		zap.String("tool", string(l.kind)),
		zap.String("reason", res.Error),
	)
	return res
}

type tierOutcome struct {
	payload domain.Payload
	err     error
}

// runTier bounds a tier by its own timeout and converts panics to errors. A tier
// that ignores ctx is abandoned when the timeout fires.
func (l *Ladder) runTier(ctx context.Context, tier Tier, p Params) (domain.Payload, error) {
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}

	done := make(chan tierOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- tierOutcome{err: fmt.Errorf("tier panicked: %v", r)}
			}
		}()
		payload, err := tier.Run(ctx, p)
		if err == nil && isEmpty(payload) {
			err = ErrNoData
		}
		done <- tierOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return domain.Payload{}, ctx.Err()
	}
}

func (l *Ladder) failureReason(attempts []domain.TierAttempt) string {
	if len(attempts) == 0 {
		return "no tiers available"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Tier+": "+a.Error)
	}
	return "all tiers failed (" + strings.Join(parts, "; ") + ")"
}

func isEmpty(p domain.Payload) bool {
	return p.Weather == nil && p.Prices == nil && p.Place == nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

// Failed builds a failed result for calls that never reached an adapter.
func Failed(kind domain.ToolKind, source string, reason string, at time.Time) domain.ToolResult {
	return domain.ToolResult{
		Kind:        kind,
		Status:      domain.StatusFailed,
		SourceLabel: source,
		FetchedAt:   at,
		Error:       reason,
	}
}
