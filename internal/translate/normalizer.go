package translate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/cache"
	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/pkg/logger"
	"github.com/farmora/backend/pkg/utils"
)

type Config struct {
	WorkingLanguage string
	// Timeout bounds one translation across all backends.
	Timeout  time.Duration
	CacheTTL time.Duration
	// ProtectedTerms are kept verbatim through every translation.
	ProtectedTerms []string
	Clock          clockwork.Clock
	Store          cache.Store
}

// Result is the outcome of one normalization. Degraded means every backend
// failed and Text is the input passed through unchanged.
type Result struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Provider string `json:"provider,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Translated reports whether a backend actually produced Text.
func (r Result) Translated() bool {
	return r.Provider != "" && !r.Degraded
}

type Normalizer struct {
	working  string
	timeout  time.Duration
	ttl      time.Duration
	backends []Backend
	masker   *masker
	cache    *cache.Coalescing[Result]
}

func NewNormalizer(cfg Config, backends ...Backend) *Normalizer {
	if cfg.WorkingLanguage == "" {
		cfg.WorkingLanguage = English
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Normalizer{
		working:  NormalizeCode(cfg.WorkingLanguage),
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		backends: backends,
		masker:   newMasker(cfg.ProtectedTerms),
		cache: cache.New(cache.Options[Result]{
			Name:      string(domain.ToolTranslation),
			Clock:     cfg.Clock,
			Store:     cfg.Store,
			Cacheable: func(r Result) bool { return !r.Degraded },
			Logger:    logger.GetLogger(),
		}),
	}
}

func (n *Normalizer) WorkingLanguage() string {
	return n.working
}

// ToWorkingLanguage translates the question into the working language. An
// empty declared language, or "auto", means detect from the script.
func (n *Normalizer) ToWorkingLanguage(ctx context.Context, text, declared string) Result {
	text = strings.TrimSpace(text)
	source := NormalizeCode(declared)
	if source == "" || source == "auto" {
		source = DetectLanguage(text)
	}
	if source == "" {
		source = n.working
	}
	return n.translate(ctx, text, source, n.working, nil)
}

// ToUserLanguage translates the answer back. entities are protected in
// addition to the configured terms.
func (n *Normalizer) ToUserLanguage(ctx context.Context, text, target string, entities map[string]string) Result {
	target = NormalizeCode(target)
	if target == "" || target == "auto" {
		target = n.working
	}
	var extra []string
	for _, v := range entities {
		extra = append(extra, strings.Split(v, ",")...)
	}
	sort.Strings(extra)
	return n.translate(ctx, text, n.working, target, extra)
}

func (n *Normalizer) translate(ctx context.Context, text, from, to string, extra []string) Result {
	if text == "" || from == to {
		return Result{Text: text, Source: from, Target: to}
	}

	key := fmt.Sprintf("%s:%s:%s:%s", domain.ToolTranslation, from, to,
		utils.HashString(text+"\x00"+strings.Join(extra, ",")))
	res, err := n.cache.Get(ctx, key, n.ttl, func(ctx context.Context) (Result, error) {
		return n.run(ctx, text, from, to, extra), nil
	})
	if err != nil {
		return n.passthrough(text, from, to, fmt.Sprintf("translation abandoned: %v", err))
	}
	return res
}

func (n *Normalizer) run(ctx context.Context, text, from, to string, extra []string) Result {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	masked, originals := n.masker.mask(text, extra)

	var errs []error
	for _, b := range n.backends {
		out, err := b.Translate(ctx, masked, from, to)
		if err == nil {
			metrics.TranslationRequests.WithLabelValues(b.Name(), "success").Inc()
			return Result{Text: unmask(out, originals), Source: from, Target: to, Provider: b.Name()}
		}
		metrics.TranslationRequests.WithLabelValues(b.Name(), "error").Inc()
		logger.Warn("Translation backend failed",
			zap.String("backend", b.Name()),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	detail := "no translation backend configured"
	if len(errs) > 0 {
		detail = errors.Join(errs...).Error()
	}
	return n.passthrough(text, from, to, detail)
}

func (n *Normalizer) passthrough(text, from, to, detail string) Result {
	return Result{Text: text, Source: from, Target: to, Degraded: true, Detail: detail}
}
