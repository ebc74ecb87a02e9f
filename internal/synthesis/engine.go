package synthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/llm"
	"github.com/farmora/backend/pkg/logger"
)

var (
	ErrLLMTimeout      = errors.New("synthesis timed out")
	ErrLLMFailed       = errors.New("synthesis call failed")
	ErrMalformedOutput = errors.New("malformed synthesis output")
)

var (
	sourcesLineRe = regexp.MustCompile(`(?im)^[ \t*]*sources?[ \t]*:[ \t]*(.*)$`)
	inlineRe      = regexp.MustCompile(`\s*\[(F\d+(?:\s*,\s*F\d+)*)\]`)
	factRefRe     = regexp.MustCompile(`(?i)\bF(\d+)\b`)
)

type Request struct {
	QueryID         string
	Question        string
	Intent          domain.Intent
	Context         domain.AssembledContext
	WorkingLanguage string
	// Strict is set on the retry after a relevance failure.
	Strict bool
}

type Engine struct {
	llm       llm.Completer
	clock     clockwork.Clock
	maxTokens int
}

func NewEngine(c llm.Completer, clock clockwork.Clock, maxTokens int) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{llm: c, clock: clock, maxTokens: maxTokens}
}

// Synthesize makes exactly one completion call. The Answer it returns carries
// the working language; translation happens afterwards.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*domain.Answer, error) {
	temperature := float32(0.3)
	if req.Strict {
		temperature = 0.1
	}

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Purpose:      "synthesis",
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(req),
		Temperature:  temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrLLMTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}

	text, cited := parseOutput(resp.Content, len(req.Context.Facts))
	if text == "" {
		return nil, fmt.Errorf("%w: no answer text", ErrMalformedOutput)
	}

	sources := citedSources(req.Context.Facts, cited)
	if len(sources) == 0 && len(req.Context.Facts) > 0 {
		sources = req.Context.Sources()
	}

	logger.Debug("Answer synthesized",
		zap.String("query_id", req.QueryID),
		zap.Int("facts", len(req.Context.Facts)),
		zap.Ints("cited", cited),
		zap.Bool("strict", req.Strict),
	)

	return &domain.Answer{
		QueryID:      req.QueryID,
		Text:         text,
		Sources:      sources,
		Confidence:   confidence(req, sources),
		Intent:       req.Intent,
		LanguageUsed: req.WorkingLanguage,
		CreatedAt:    e.clock.Now(),
	}, nil
}

// parseOutput strips the SOURCES line and inline [Fn] markers and returns the
// cited fact numbers (1-based, in first-seen order, within range).
func parseOutput(content string, nFacts int) (string, []int) {
	var refs []string
	body := inlineRe.ReplaceAllStringFunc(content, func(m string) string {
		refs = append(refs, m)
		return ""
	})
	body = sourcesLineRe.ReplaceAllStringFunc(body, func(line string) string {
		refs = append(refs, sourcesLineRe.FindStringSubmatch(line)[1])
		return ""
	})

	seen := map[int]bool{}
	var cited []int
	for _, r := range refs {
		for _, m := range factRefRe.FindAllStringSubmatch(r, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > nFacts || seen[n] {
				continue
			}
			seen[n] = true
			cited = append(cited, n)
		}
	}
	return strings.TrimSpace(body), cited
}

// citedSources maps fact numbers to unique source labels in citation order.
func citedSources(facts []domain.Fact, cited []int) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range cited {
		label := facts[n-1].SourceLabel
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

// confidence blends the classifier's confidence with how much of the
// available evidence the answer rests on.
func confidence(req Request, sources []string) float64 {
	available := len(req.Context.Sources())
	coverage := 0.0
	if available > 0 {
		coverage = float64(len(sources)) / float64(available)
		if coverage > 1 {
			coverage = 1
		}
	}
	c := 0.5*req.Intent.Confidence + 0.5*coverage
	if req.Context.Stale {
		c *= 0.8
	}
	return c
}
