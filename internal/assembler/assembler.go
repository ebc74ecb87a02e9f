package assembler

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/intent"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/pkg/logger"
)

const (
	charsPerToken = 4
	// lineOverhead covers the "[Fn] " marker the prompt adds to each fact.
	lineOverhead = 2
	ellipsis     = "…"
)

type Config struct {
	TokenBudget        int
	DefaultCommodities []string
	Clock              clockwork.Clock
}

// Options vary per call. Relaxed is set on the moderator's retry.
type Options struct {
	Relaxed bool
	// Observe, when set, receives every ToolResult as it is collected.
	Observe func(domain.ToolResult)
}

type Assembler struct {
	registry           *tools.Registry
	budget             int
	defaultCommodities []string
	clock              clockwork.Clock
}

func New(registry *tools.Registry, cfg Config) *Assembler {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 600
	}
	if len(cfg.DefaultCommodities) == 0 {
		cfg.DefaultCommodities = []string{"Rice", "Wheat"}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Assembler{
		registry:           registry,
		budget:             cfg.TokenBudget,
		defaultCommodities: cfg.DefaultCommodities,
		clock:              cfg.Clock,
	}
}

func (a *Assembler) TokenBudget() int {
	return a.budget
}

type toolCall struct {
	kind   domain.ToolKind
	params tools.Params
}

type callResult struct {
	index  int
	result domain.ToolResult
}

// Assemble runs every required tool concurrently and builds the fact context.
// It returns when all calls finish or ctx ends; calls still running then are
// recorded as failed and their goroutines finish on their own.
func (a *Assembler) Assemble(ctx context.Context, in domain.Intent, q domain.Query, opts Options) domain.AssembledContext {
	calls := a.plan(in, q, opts)
	results := make([]domain.ToolResult, len(calls))
	done := make([]bool, len(calls))

	ch := make(chan callResult, len(calls))
	for i, c := range calls {
		adapter, ok := a.registry.Get(c.kind)
		if !ok {
			results[i] = tools.Failed(c.kind, "", "no adapter registered", a.clock.Now())
			done[i] = true
			ch <- callResult{index: i, result: results[i]}
			continue
		}
		go func(i int, adapter tools.Adapter, p tools.Params) {
			ch <- callResult{index: i, result: adapter.Fetch(ctx, p)}
		}(i, adapter, c.params)
	}

	for received := 0; received < len(calls); {
		select {
		case r := <-ch:
			results[r.index] = r.result
			done[r.index] = true
			received++
		case <-ctx.Done():
		drain:
			for {
				select {
				case r := <-ch:
					results[r.index] = r.result
					done[r.index] = true
				default:
					break drain
				}
			}
			for i, c := range calls {
				if !done[i] {
					results[i] = tools.Failed(c.kind, "", "timed out", a.clock.Now())
					metrics.ToolCalls.WithLabelValues(string(c.kind), "abandoned").Inc()
				}
			}
			received = len(calls)
			logger.Warn("Context assembly stopped before all tools returned", zap.Error(ctx.Err()))
		}
	}

	if opts.Observe != nil {
		for _, r := range results {
			opts.Observe(r)
		}
	}
	return a.build(in, results)
}

// plan lists one call per required tool, and one market call per commodity.
func (a *Assembler) plan(in domain.Intent, q domain.Query, opts Options) []toolCall {
	base := tools.Params{
		Location: q.Location,
		Relaxed:  opts.Relaxed,
	}
	if d := in.Entity(domain.EntityDistrict); d != "" {
		base.Location.District = d
	}
	if s := in.Entity(domain.EntityState); s != "" {
		base.Location.State = s
	}
	if off, err := strconv.Atoi(in.Entity(domain.EntityDayOffset)); err == nil && off > 0 {
		base.DayOffset = off
	}

	var calls []toolCall
	for _, kind := range in.RequiredTools {
		if kind != domain.ToolMarketPrice {
			calls = append(calls, toolCall{kind: kind, params: base})
			continue
		}
		commodities := intent.Commodities(in.Entities)
		if len(commodities) == 0 {
			commodities = a.defaultCommodities
		}
		for _, c := range commodities {
			p := base
			p.Commodity = c
			calls = append(calls, toolCall{kind: kind, params: p})
		}
	}
	return calls
}

func (a *Assembler) build(in domain.Intent, results []domain.ToolResult) domain.AssembledContext {
	out := domain.AssembledContext{ToolResultsConsidered: len(results)}

	failedByKind := map[domain.ToolKind]bool{}
	var facts []domain.Fact
	for _, r := range results {
		if _, seen := failedByKind[r.Kind]; !seen {
			failedByKind[r.Kind] = true
		}
		if r.Usable() {
			failedByKind[r.Kind] = false
		}
		facts = append(facts, factsFrom(r, in)...)
	}
	for _, k := range domain.ToolKinds {
		failed, attempted := failedByKind[k]
		if !attempted {
			continue
		}
		out.AttemptedTools = append(out.AttemptedTools, k)
		if failed {
			out.FailedTools = append(out.FailedTools, k)
		}
	}

	facts = dedupe(facts)
	sort.SliceStable(facts, func(i, j int) bool { return less(facts[i], facts[j]) })

	out.Facts, out.TokenBudgetUsed = a.fit(facts)
	out.Empty = len(out.Facts) == 0
	return out
}

// fit takes ranked facts in order until the next one would exceed the budget.
// A single fact larger than the whole budget is shortened to fit.
func (a *Assembler) fit(ranked []domain.Fact) ([]domain.Fact, int) {
	var selected []domain.Fact
	used := 0
	for _, f := range ranked {
		f.Tokens = FactTokens(f)
		if f.Tokens > a.budget {
			f = truncateFact(f, a.budget)
			if f.Tokens > a.budget {
				continue
			}
		}
		if used+f.Tokens > a.budget {
			break
		}
		selected = append(selected, f)
		used += f.Tokens
	}
	return selected, used
}

// EstimateTokens approximates tokens as four characters each, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// Line renders a fact the way the synthesis prompt shows it, minus its marker.
func Line(f domain.Fact) string {
	return "(" + f.SourceLabel + ") " + f.Text
}

func FactTokens(f domain.Fact) int {
	return EstimateTokens(Line(f)) + lineOverhead
}

func truncateFact(f domain.Fact, budget int) domain.Fact {
	fixed := FactTokens(domain.Fact{SourceLabel: f.SourceLabel})
	keep := (budget-fixed)*charsPerToken - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return f
	}
	r := []rune(f.Text)
	if keep < len(r) {
		f.Text = strings.TrimSpace(string(r[:keep])) + ellipsis
	}
	f.Tokens = FactTokens(f)
	return f
}
