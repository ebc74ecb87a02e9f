package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmora/backend/internal/assembler"
	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/intent"
	"github.com/farmora/backend/internal/llm"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/internal/storage/models"
	"github.com/farmora/backend/internal/synthesis"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/internal/translate"
)

type stubAdapter struct {
	kind    domain.ToolKind
	label   string
	delay   time.Duration
	payload func(p tools.Params) domain.Payload

	fail  atomic.Bool
	calls atomic.Int32
}

func (s *stubAdapter) Kind() domain.ToolKind { return s.kind }

// Fetch ignores ctx on purpose so a delayed stub behaves like a hung upstream.
func (s *stubAdapter) Fetch(_ context.Context, p tools.Params) domain.ToolResult {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail.Load() {
		return tools.Failed(s.kind, s.label, "upstream down", time.Now())
	}
	return domain.ToolResult{
		Kind:        s.kind,
		Status:      domain.StatusOK,
		Payload:     s.payload(p),
		SourceLabel: s.label,
		FetchedAt:   time.Now(),
	}
}

func weatherStub() *stubAdapter {
	return &stubAdapter{kind: domain.ToolWeather, label: "weather-api", payload: func(p tools.Params) domain.Payload {
		return domain.Payload{Weather: &domain.WeatherReport{
			Place:       "Chennai",
			Granularity: "coordinates",
			Days: []domain.WeatherDay{{
				Date: "2026-10-17", TempMinC: 24, TempMaxC: 31,
				PrecipitationMm: 6.5, PrecipitationProbability: 70, Summary: "light rain",
			}},
		}}
	}}
}

func marketStub() *stubAdapter {
	return &stubAdapter{kind: domain.ToolMarketPrice, label: "market-prices", payload: func(p tools.Params) domain.Payload {
		return domain.Payload{Prices: &domain.PriceReport{
			Commodity: p.Commodity,
			Market:    "Koyambedu",
			District:  "Chennai",
			State:     "Tamil Nadu",
			Quotes:    []domain.PriceQuote{{Date: "2026-10-15", Market: "Koyambedu", MinPrice: 2050, MaxPrice: 2350, ModalPrice: 2200}},
		}}
	}}
}

func geoStub() *stubAdapter {
	return &stubAdapter{kind: domain.ToolGeolocation, label: "geocoder", payload: func(p tools.Params) domain.Payload {
		return domain.Payload{Place: &domain.Place{District: "Chennai", State: "Tamil Nadu", Granularity: "district"}}
	}}
}

// scriptedLLM answers every completion with reply(n), n counting from 1.
type scriptedLLM struct {
	mu    sync.Mutex
	n     int
	reply func(n int, req llm.CompletionRequest) (string, error)
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()
	out, err := s.reply(n, req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: out}, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func fixedReply(text string) *scriptedLLM {
	return &scriptedLLM{reply: func(int, llm.CompletionRequest) (string, error) { return text, nil }}
}

type pairBackend struct {
	out map[string]string
}

func (b *pairBackend) Name() string { return "scripted" }

func (b *pairBackend) Translate(_ context.Context, text, from, to string) (string, error) {
	if out, ok := b.out[from+">"+to]; ok {
		return out, nil
	}
	return "", errors.New("unsupported pair")
}

// slowBackend delays every translation, standing in for a sluggish provider.
type slowBackend struct {
	pairBackend
	delay time.Duration
}

func (b *slowBackend) Translate(ctx context.Context, text, from, to string) (string, error) {
	time.Sleep(b.delay)
	return b.pairBackend.Translate(ctx, text, from, to)
}

type memoryExporter struct {
	mu      sync.Mutex
	records []models.TraceRecord
}

func (e *memoryExporter) ExportTrace(_ context.Context, t models.TraceRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, t)
	return nil
}

func (e *memoryExporter) last() models.TraceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records[len(e.records)-1]
}

type pipeline struct {
	orch     *Orchestrator
	weather  *stubAdapter
	market   *stubAdapter
	geo      *stubAdapter
	exporter *memoryExporter
}

func newPipeline(t *testing.T, completer llm.Completer, cfg Config, backends ...translate.Backend) *pipeline {
	t.Helper()
	p := &pipeline{
		weather:  weatherStub(),
		market:   marketStub(),
		geo:      geoStub(),
		exporter: &memoryExporter{},
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = 5 * time.Second
		cfg.PerToolTimeout = 2 * time.Second
		cfg.SynthesisReserve = time.Second
	}

	normalizer := translate.NewNormalizer(translate.Config{ProtectedTerms: intent.CropTerms()}, backends...)
	classifier := intent.NewClassifier(intent.DefaultConfig(), nil)
	asm := assembler.New(tools.NewRegistry(p.weather, p.market, p.geo), assembler.Config{})
	mod := moderator.New(nil, 0.2)
	engine := synthesis.NewEngine(completer, nil, 800)

	p.orch = NewOrchestrator(normalizer, classifier, asm, mod, engine, p.exporter, cfg)
	return p
}

func chennai() *domain.Location {
	l := domain.NewCoordinates(13.08, 80.27)
	return &l
}

func TestAskQuery_WeatherInChennai(t *testing.T) {
	llmFake := fixedReply("Light rain is expected in Chennai tomorrow with 24-31°C.\nSOURCES: F1")
	p := newPipeline(t, llmFake, Config{})

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question:     "What's the weather in Chennai tomorrow?",
		Location:     chennai(),
		UserLanguage: "en",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.LabelWeather, ans.Intent.Label)
	assert.Equal(t, []string{"weather-api"}, ans.Sources)
	assert.Equal(t, int32(1), p.weather.calls.Load())
	assert.Zero(t, p.market.calls.Load())
	assert.Zero(t, p.geo.calls.Load())
	assert.Equal(t, 1, llmFake.calls())
	assert.False(t, ans.Degraded)
	assert.Empty(t, ans.Warnings)
	assert.Equal(t, "en", ans.LanguageUsed)
	assert.NotContains(t, ans.Text, "SOURCES")

	rec := p.exporter.last()
	assert.Equal(t, "Completed", rec.FinalState)
	assert.Equal(t, "completed", rec.Outcome)
	var path []string
	for _, tr := range rec.Transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []string{"Normalizing", "Classifying", "Assembling", "Synthesizing", "Finalizing", "Completed"}, path)
	require.Len(t, rec.ToolResults, 1)
	assert.Equal(t, "weather", rec.ToolResults[0].Kind)
}

func TestAskQuery_AllToolsFailed(t *testing.T) {
	llmFake := fixedReply("unused")
	p := newPipeline(t, llmFake, Config{})
	p.weather.fail.Store(true)
	p.market.fail.Store(true)

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "Will rain affect rice prices in Thanjavur?",
		Location: chennai(),
	})

	assert.Nil(t, ans)
	require.ErrorIs(t, err, domain.ErrAllToolsFailed)
	var perr *domain.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.ElementsMatch(t, []domain.ToolKind{domain.ToolWeather, domain.ToolMarketPrice}, perr.FailedTools)
	assert.NotEmpty(t, perr.QueryID)
	assert.Zero(t, llmFake.calls())

	// One relaxed retry and no more.
	assert.Equal(t, int32(2), p.weather.calls.Load())
	assert.Equal(t, "Aborted", p.exporter.last().FinalState)
	assert.Equal(t, "ALL_TOOLS_FAILED", p.exporter.last().ErrorKind)
}

func TestAskQuery_TamilRoundTripKeepsEntity(t *testing.T) {
	backend := &pairBackend{out: map[string]string{
		"ta>en": "What is the price of [[0]] in Chennai tomorrow?",
		"en>ta": "நாளை சென்னையில் [[0]] விலை குவிண்டாலுக்கு ₹2,200.",
	}}
	var prompt string
	llmFake := &scriptedLLM{reply: func(_ int, req llm.CompletionRequest) (string, error) {
		prompt = req.UserPrompt
		return "The modal price of Rice in Chennai is ₹2,200 per quintal.\nSOURCES: F1", nil
	}}
	p := newPipeline(t, llmFake, Config{}, backend)

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "நாளை சென்னையில் rice விலை என்ன?",
		Location: chennai(),
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "What is the price of rice in Chennai tomorrow?")
	assert.Equal(t, domain.LabelMarketPrices, ans.Intent.Label)
	assert.Equal(t, "ta", ans.LanguageUsed)
	assert.Contains(t, ans.Text, "Rice")
	assert.Contains(t, ans.Text, "சென்னையில்")
	assert.Equal(t, []string{"market-prices"}, ans.Sources)
	assert.False(t, ans.Degraded)
	assert.Equal(t, "ta", p.exporter.last().Language)
}

func TestAskQuery_DeadlineDoesNotWaitForSlowTool(t *testing.T) {
	llmFake := fixedReply("Rice prices held at ₹2,200 in Koyambedu; rain may delay arrivals.")
	p := newPipeline(t, llmFake, Config{
		Deadline:         1500 * time.Millisecond,
		PerToolTimeout:   8 * time.Second,
		SynthesisReserve: 1200 * time.Millisecond,
	})
	p.weather.delay = 5 * time.Second

	start := time.Now()
	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "Will rain affect rice prices in Thanjavur?",
		Location: chennai(),
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Equal(t, []string{"market-prices"}, ans.Sources)
	assert.True(t, ans.Degraded)
	require.NotEmpty(t, ans.Warnings)
	assert.Equal(t, domain.KindToolUnavailable, ans.Warnings[0].Kind)
	assert.Contains(t, ans.Warnings[0].Message, "weather")
}

func TestAskQuery_SlowTranslationStillLeavesToolsTime(t *testing.T) {
	backend := &slowBackend{delay: 400 * time.Millisecond, pairBackend: pairBackend{out: map[string]string{
		"hi>en": "What's the weather in Chennai tomorrow?",
		"en>hi": "कल चेन्नई में हल्की बारिश की संभावना है।",
	}}}
	llmFake := fixedReply("Light rain is expected in Chennai tomorrow with 24-31°C.\nSOURCES: F1")
	p := newPipeline(t, llmFake, Config{
		Deadline:         1500 * time.Millisecond,
		PerToolTimeout:   8 * time.Second,
		SynthesisReserve: 1200 * time.Millisecond,
	}, backend)

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question:     "कल चेन्नई में मौसम कैसा रहेगा?",
		Location:     chennai(),
		UserLanguage: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), p.weather.calls.Load())
	assert.Equal(t, 1, llmFake.calls())
	assert.Equal(t, []string{"weather-api"}, ans.Sources)
	assert.Equal(t, "hi", ans.LanguageUsed)
}

func TestAskQuery_TranslationPastDeadlineIsDeadlineExceeded(t *testing.T) {
	backend := &slowBackend{delay: 700 * time.Millisecond, pairBackend: pairBackend{out: map[string]string{
		"hi>en": "What's the weather in Chennai tomorrow?",
	}}}
	llmFake := fixedReply("unused")
	p := newPipeline(t, llmFake, Config{
		Deadline:         500 * time.Millisecond,
		PerToolTimeout:   8 * time.Second,
		SynthesisReserve: 300 * time.Millisecond,
	}, backend)

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question:     "कल चेन्नई में मौसम कैसा रहेगा?",
		Location:     chennai(),
		UserLanguage: "hi",
	})

	assert.Nil(t, ans)
	assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrAllToolsFailed)
	assert.Zero(t, llmFake.calls())
}

func TestAskQuery_DegradedCitesOnlyWorkingTool(t *testing.T) {
	llmFake := fixedReply("Rice prices are near ₹2,200 per quintal; expect some rain this week.")
	p := newPipeline(t, llmFake, Config{})
	p.weather.fail.Store(true)

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "Will rain affect rice prices in Thanjavur?",
		Location: chennai(),
	})
	require.NoError(t, err)

	assert.True(t, ans.Degraded)
	assert.Equal(t, []string{"market-prices"}, ans.Sources)
	require.Len(t, ans.Warnings, 1)
	assert.Equal(t, domain.KindToolUnavailable, ans.Warnings[0].Kind)
	assert.Equal(t, "degraded", p.exporter.last().Outcome)
}

func TestAskQuery_UsesPriorContextWhenToolsFail(t *testing.T) {
	llmFake := fixedReply("Rice modal price in Chennai was ₹2,200 per quintal.")
	p := newPipeline(t, llmFake, Config{})
	req := Request{Question: "What is the price of rice in Chennai?", Location: chennai()}

	first, err := p.orch.AskQuery(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Degraded)

	p.market.fail.Store(true)
	second, err := p.orch.AskQuery(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Degraded)
	assert.Equal(t, []string{"market-prices"}, second.Sources)

	assert.Equal(t, 1, p.orch.InvalidatePriorContext("market_prices"))
	_, err = p.orch.AskQuery(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrAllToolsFailed)
}

func TestAskQuery_SynthesisRetriedOnce(t *testing.T) {
	var strict []bool
	llmFake := &scriptedLLM{reply: func(_ int, req llm.CompletionRequest) (string, error) {
		strict = append(strict, req.Temperature < 0.2)
		return "Bananas are yellow.", nil
	}}
	p := newPipeline(t, llmFake, Config{})

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "What is the price of rice in Chennai?",
		Location: chennai(),
	})

	assert.Nil(t, ans)
	assert.ErrorIs(t, err, domain.ErrSynthesisQuality)
	assert.Equal(t, 2, llmFake.calls())
	assert.Equal(t, []bool{false, true}, strict)

	var retries int
	for _, tr := range p.exporter.last().Transitions {
		if tr.Verdict == string(moderator.RetryWithFallback) {
			retries++
			assert.Equal(t, tr.From, tr.To)
		}
	}
	assert.Equal(t, 1, retries)
}

func TestAskQuery_SecondSynthesisAttemptSucceeds(t *testing.T) {
	llmFake := &scriptedLLM{reply: func(n int, _ llm.CompletionRequest) (string, error) {
		if n == 1 {
			return "", errors.New("status 503")
		}
		return "Rice sells near ₹2,200 per quintal at Koyambedu market in Chennai.\nSOURCES: F1", nil
	}}
	p := newPipeline(t, llmFake, Config{})

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question: "What is the price of rice in Chennai?",
		Location: chennai(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, llmFake.calls())
	assert.Equal(t, []string{"market-prices"}, ans.Sources)
}

func TestAskQuery_ExactlyOneOutcome(t *testing.T) {
	questions := []string{
		"",
		"   ",
		"What's the weather in Chennai tomorrow?",
		"Will rain affect rice prices in Thanjavur?",
		"How do I improve my soil?",
		strings.Repeat("rain ", 400),
	}
	for _, q := range questions {
		llmFake := fixedReply("Light rain and steady rice prices near Chennai; improve soil with compost.")
		p := newPipeline(t, llmFake, Config{})
		ans, err := p.orch.AskQuery(context.Background(), Request{Question: q, Location: chennai()})
		assert.True(t, (ans == nil) != (err == nil), "question %q", q)
		if err != nil {
			var perr *domain.PipelineError
			assert.True(t, errors.As(err, &perr))
		}
	}
}

func TestAskQuery_EmptyQuestionIsInputError(t *testing.T) {
	llmFake := fixedReply("unused")
	p := newPipeline(t, llmFake, Config{})

	_, err := p.orch.AskQuery(context.Background(), Request{Question: "  "})
	assert.ErrorIs(t, err, domain.ErrInput)
	assert.Zero(t, llmFake.calls())
}

func TestAskQuery_TranslationFailureDeliversWorkingText(t *testing.T) {
	llmFake := fixedReply("Light rain is expected in Chennai tomorrow.")
	p := newPipeline(t, llmFake, Config{}, &pairBackend{out: map[string]string{}})

	ans, err := p.orch.AskQuery(context.Background(), Request{
		Question:     "What's the weather in Chennai tomorrow?",
		Location:     chennai(),
		UserLanguage: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "en", ans.LanguageUsed)
	assert.Equal(t, "Light rain is expected in Chennai tomorrow.", ans.Text)
	assert.True(t, ans.Degraded)

	var kinds []domain.ErrorKind
	for _, w := range ans.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, domain.KindTranslationDegraded)
}

func TestAssemblyWindow(t *testing.T) {
	o := &Orchestrator{cfg: Config{PerToolTimeout: 8 * time.Second, SynthesisReserve: 1200 * time.Millisecond}}

	assert.Equal(t, 8*time.Second, o.assemblyWindow(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w := o.assemblyWindow(ctx)
	assert.Greater(t, w, 3*time.Second)
	assert.LessOrEqual(t, w, 3800*time.Millisecond)

	// The reserve is already gone: tools still get what remains.
	short, cancelShort := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	defer cancelShort()
	w = o.assemblyWindow(short)
	assert.Greater(t, w, time.Second)
	assert.LessOrEqual(t, w, 1100*time.Millisecond)

	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	assert.LessOrEqual(t, o.assemblyWindow(expired), time.Duration(0))
}
