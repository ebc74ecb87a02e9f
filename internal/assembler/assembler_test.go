package assembler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
)

type stubAdapter struct {
	kind  domain.ToolKind
	fetch func(ctx context.Context, p tools.Params) domain.ToolResult

	mu     sync.Mutex
	params []tools.Params
}

func (s *stubAdapter) Kind() domain.ToolKind { return s.kind }

func (s *stubAdapter) Fetch(ctx context.Context, p tools.Params) domain.ToolResult {
	s.mu.Lock()
	s.params = append(s.params, p)
	s.mu.Unlock()
	return s.fetch(ctx, p)
}

func (s *stubAdapter) seen() []tools.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tools.Params(nil), s.params...)
}

var fetchedAt = time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC)

func weatherOK(days int, delay time.Duration) *stubAdapter {
	return &stubAdapter{kind: domain.ToolWeather, fetch: func(ctx context.Context, p tools.Params) domain.ToolResult {
		if delay > 0 {
			time.Sleep(delay)
		}
		report := &domain.WeatherReport{Place: "Chennai", Granularity: "coordinates"}
		for i := 0; i < days; i++ {
			report.Days = append(report.Days, domain.WeatherDay{
				Date: time.Date(2026, 10, 17+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), TempMinC: 24, TempMaxC: 31,
				PrecipitationMm: 6.2, PrecipitationProbability: 70, Summary: "light rain",
			})
		}
		return domain.ToolResult{Kind: domain.ToolWeather, Status: domain.StatusOK, SourceLabel: "weather-api",
			FetchedAt: fetchedAt, Payload: domain.Payload{Weather: report}}
	}}
}

func marketOK() *stubAdapter {
	return &stubAdapter{kind: domain.ToolMarketPrice, fetch: func(_ context.Context, p tools.Params) domain.ToolResult {
		return domain.ToolResult{Kind: domain.ToolMarketPrice, Status: domain.StatusOK, SourceLabel: "market-prices",
			FetchedAt: fetchedAt, Payload: domain.Payload{Prices: &domain.PriceReport{
				Commodity: p.Commodity, Market: "Koyambedu", District: "Chennai", State: "Tamil Nadu",
				Quotes: []domain.PriceQuote{
					{Date: "2026-10-15", Market: "Koyambedu", MinPrice: 2150, MaxPrice: 2210, ModalPrice: 2190},
					{Date: "2026-10-01", Market: "Koyambedu", MinPrice: 2000, MaxPrice: 2100, ModalPrice: 2050},
				},
			}}}
	}}
}

func failing(kind domain.ToolKind) *stubAdapter {
	return &stubAdapter{kind: kind, fetch: func(context.Context, tools.Params) domain.ToolResult {
		return tools.Failed(kind, "x", "all tiers failed", fetchedAt)
	}}
}

func newAssembler(budget int, adapters ...tools.Adapter) *Assembler {
	return New(tools.NewRegistry(adapters...), Config{TokenBudget: budget})
}

func intentFor(label domain.IntentLabel, kinds ...domain.ToolKind) domain.Intent {
	return domain.Intent{Label: label, RequiredTools: kinds, Entities: map[string]string{}}
}

func TestAssemble_RunsToolsConcurrently(t *testing.T) {
	w := weatherOK(1, 150*time.Millisecond)
	m := &stubAdapter{kind: domain.ToolMarketPrice, fetch: func(ctx context.Context, p tools.Params) domain.ToolResult {
		time.Sleep(150 * time.Millisecond)
		return marketOK().fetch(ctx, p)
	}}
	a := newAssembler(600, w, m)
	in := intentFor(domain.LabelCropChoice, domain.ToolWeather, domain.ToolMarketPrice)
	in.Entities[domain.EntityCommodity] = "Rice"

	start := time.Now()
	ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

	assert.Less(t, time.Since(start), 280*time.Millisecond)
	assert.False(t, ac.Empty)
	assert.Equal(t, 2, ac.ToolResultsConsidered)
}

func TestAssemble_OneToolFails(t *testing.T) {
	a := newAssembler(600, weatherOK(2, 0), failing(domain.ToolMarketPrice))
	in := intentFor(domain.LabelWeather, domain.ToolWeather, domain.ToolMarketPrice)
	in.Entities[domain.EntityCommodity] = "Rice"

	ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

	require.False(t, ac.Empty)
	assert.Equal(t, []domain.ToolKind{domain.ToolMarketPrice}, ac.FailedTools)
	assert.Equal(t, []domain.ToolKind{domain.ToolWeather, domain.ToolMarketPrice}, ac.AttemptedTools)
	assert.Equal(t, []string{"weather-api"}, ac.Sources())
	assert.False(t, ac.AllToolsFailed())
}

func TestAssemble_AllToolsFail(t *testing.T) {
	a := newAssembler(600, failing(domain.ToolWeather), failing(domain.ToolMarketPrice))
	in := intentFor(domain.LabelCropChoice, domain.ToolWeather, domain.ToolMarketPrice)

	ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

	assert.True(t, ac.Empty)
	assert.True(t, ac.AllToolsFailed())
	assert.Equal(t, 0, ac.TokenBudgetUsed)
	assert.Equal(t, 3, ac.ToolResultsConsidered, "one weather call and one market call per default commodity")
}

func TestAssemble_NoToolsRequired(t *testing.T) {
	ac := newAssembler(600).Assemble(context.Background(), intentFor(domain.LabelGeneral), domain.Query{}, Options{})

	assert.True(t, ac.Empty)
	assert.False(t, ac.AllToolsFailed())
}

func TestAssemble_MissingAdapterCountsAsFailed(t *testing.T) {
	a := newAssembler(600, weatherOK(1, 0))
	in := intentFor(domain.LabelSoilHealth, domain.ToolWeather, domain.ToolGeolocation)

	ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

	assert.Equal(t, []domain.ToolKind{domain.ToolGeolocation}, ac.FailedTools)
	assert.False(t, ac.Empty)
}

func TestAssemble_ParamsFromQueryAndEntities(t *testing.T) {
	m := marketOK()
	a := newAssembler(600, m)
	in := intentFor(domain.LabelMarketPrices, domain.ToolMarketPrice)
	in.Entities[domain.EntityDistrict] = "Ludhiana"
	in.Entities[domain.EntityDayOffset] = "1"
	q := domain.Query{Location: domain.Location{Lat: 30.9, Lon: 75.85, HasCoords: true, State: "Punjab"}}

	a.Assemble(context.Background(), in, q, Options{Relaxed: true})

	params := m.seen()
	require.Len(t, params, 2)
	var commodities []string
	for _, p := range params {
		commodities = append(commodities, p.Commodity)
		assert.Equal(t, "Ludhiana", p.Location.District)
		assert.Equal(t, "Punjab", p.Location.State)
		assert.True(t, p.Location.HasCoords)
		assert.True(t, p.Relaxed)
		assert.Equal(t, 1, p.DayOffset)
	}
	assert.ElementsMatch(t, []string{"Rice", "Wheat"}, commodities)
}

func TestAssemble_StopsAtContextDeadline(t *testing.T) {
	slow := &stubAdapter{kind: domain.ToolMarketPrice, fetch: func(context.Context, tools.Params) domain.ToolResult {
		time.Sleep(2 * time.Second)
		return domain.ToolResult{Kind: domain.ToolMarketPrice, Status: domain.StatusOK}
	}}
	a := newAssembler(600, weatherOK(1, 0), slow)
	in := intentFor(domain.LabelCropChoice, domain.ToolWeather, domain.ToolMarketPrice)
	in.Entities[domain.EntityCommodity] = "Rice"

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var observed []domain.ToolResult
	start := time.Now()
	ac := a.Assemble(ctx, in, domain.Query{}, Options{Observe: func(r domain.ToolResult) { observed = append(observed, r) }})

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, ac.Empty)
	assert.Equal(t, []domain.ToolKind{domain.ToolMarketPrice}, ac.FailedTools)
	require.Len(t, observed, 2)
	assert.Equal(t, "timed out", observed[1].Error)
}

func TestAssemble_RanksByIntent(t *testing.T) {
	a := newAssembler(600, weatherOK(2, 0), marketOK())
	in := intentFor(domain.LabelMarketPrices, domain.ToolWeather, domain.ToolMarketPrice)
	in.Entities[domain.EntityCommodity] = "Rice"

	ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

	require.NotEmpty(t, ac.Facts)
	assert.Equal(t, domain.ToolMarketPrice, ac.Facts[0].Kind)
	assert.Contains(t, ac.Facts[0].Text, "₹2,190/quintal")
	assert.Equal(t, []string{"market-prices", "weather-api"}, ac.Sources())
}

// Budget holds for any payload size, including single facts bigger than the
// whole budget.
func TestAssemble_BudgetBound(t *testing.T) {
	huge := &stubAdapter{kind: domain.ToolMarketPrice, fetch: func(_ context.Context, p tools.Params) domain.ToolResult {
		return domain.ToolResult{Kind: domain.ToolMarketPrice, Status: domain.StatusOK, SourceLabel: "market-prices",
			FetchedAt: fetchedAt, Payload: domain.Payload{Prices: &domain.PriceReport{
				Commodity: p.Commodity, Market: strings.Repeat("M", 20000),
				Quotes: []domain.PriceQuote{{Date: "2026-10-15", ModalPrice: 2190}},
			}}}
	}}
	in := intentFor(domain.LabelCropChoice, domain.ToolWeather, domain.ToolMarketPrice)

	for _, budget := range []int{1, 8, 20, 64, 600, 5000} {
		a := newAssembler(budget, weatherOK(400, 0), huge)

		ac := a.Assemble(context.Background(), in, domain.Query{}, Options{})

		assert.LessOrEqual(t, ac.TokenBudgetUsed, budget, "budget %d", budget)
		sum := 0
		for _, f := range ac.Facts {
			sum += f.Tokens
			assert.Equal(t, FactTokens(f), f.Tokens)
		}
		assert.Equal(t, sum, ac.TokenBudgetUsed)
		if budget >= 20 {
			assert.False(t, ac.Empty, "budget %d", budget)
		}
	}
}

func TestDedupe_KeepsMostSpecific(t *testing.T) {
	facts := []domain.Fact{
		{Kind: domain.ToolWeather, Subject: "chennai", Topic: "forecast:2026-10-17", Specificity: 1, Text: "state level"},
		{Kind: domain.ToolWeather, Subject: "chennai", Topic: "forecast:2026-10-17", Specificity: 3, Text: "point"},
		{Kind: domain.ToolWeather, Subject: "chennai", Topic: "forecast:2026-10-18", Specificity: 1, Text: "other day"},
		{Kind: domain.ToolMarketPrice, Subject: "chennai", Topic: "forecast:2026-10-17", Text: "different kind"},
	}

	out := dedupe(facts)

	require.Len(t, out, 3)
	assert.Equal(t, "point", out[0].Text)
}

func TestRupees(t *testing.T) {
	assert.Equal(t, "950", rupees(950))
	assert.Equal(t, "2,190", rupees(2190))
	assert.Equal(t, "1,23,456", rupees(123456))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("₹₹₹"))
}
