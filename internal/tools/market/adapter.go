package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/internal/tools/geo"
	"github.com/farmora/backend/pkg/logger"
)

const (
	SourceLabel = "market-prices"

	relaxedLookbackDays = 30
	historyWindow       = 90 * 24 * time.Hour
	relaxedHistory      = 365 * 24 * time.Hour
	maxMarketsPerTier   = 4
)

// HistoryStore keeps scraped quotes so later queries can fall back on them.
type HistoryStore interface {
	RecordPrices(ctx context.Context, state, district, commodity string, quotes []domain.PriceQuote) error
	LatestPrices(ctx context.Context, commodity, state string, since time.Time, limit int) ([]domain.PriceQuote, error)
}

type Options struct {
	LookbackDays int
	Clock        clockwork.Clock
}

type Adapter struct {
	*tools.Ladder
	source    PriceSource
	history   HistoryStore
	gazetteer *geo.Gazetteer
	lookback  int
	clock     clockwork.Clock
}

// NewAdapter builds the market-price ladder. history may be nil, in which case
// the price-history tier always fails over to the seasonal calendar.
func NewAdapter(source PriceSource, history HistoryStore, gazetteer *geo.Gazetteer, timeout time.Duration, opts Options) *Adapter {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 14
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	a := &Adapter{
		source:    source,
		history:   history,
		gazetteer: gazetteer,
		lookback:  opts.LookbackDays,
		clock:     opts.Clock,
	}
	// Remote tiers together leave a quarter of the budget for the local ones.
	remote, local := timeout/4, timeout/8
	a.Ladder = tools.NewLadder(domain.ToolMarketPrice, SourceLabel, timeout, []tools.Tier{
		{Name: "nearest-market", Timeout: remote, Run: a.nearestMarket},
		{Name: "district-alternate-market", Timeout: remote, Run: a.alternateMarket},
		{Name: "neighboring-state-market", Timeout: remote, Run: a.neighboringState},
		{Name: "price-history", Timeout: local, Run: a.priceHistory},
		{Name: "seasonal-calendar", Timeout: local, Run: a.seasonalCalendar},
	}, tools.WithClock(opts.Clock))
	return a
}

// locate resolves the query location to a canonical district and state.
func (a *Adapter) locate(p tools.Params) (district, state string) {
	loc, granularity := a.gazetteer.Resolve(p.Location)
	if granularity == "" && p.Location.HasCoords {
		if d, km := a.gazetteer.Nearest(p.Location.Lat, p.Location.Lon); d.Name != "" && km < 150 {
			return d.Name, d.State
		}
	}
	return loc.District, loc.State
}

func (a *Adapter) window(p tools.Params) (time.Time, time.Time) {
	days := a.lookback
	if p.Relaxed && days < relaxedLookbackDays {
		days = relaxedLookbackDays
	}
	to := a.clock.Now()
	return to.AddDate(0, 0, -days), to
}

func commodityOf(p tools.Params) (string, error) {
	c := strings.TrimSpace(p.Commodity)
	if c == "" {
		return "", fmt.Errorf("commodity: %w", tools.ErrMissingParam)
	}
	return c, nil
}

func (a *Adapter) nearestMarket(ctx context.Context, p tools.Params) (domain.Payload, error) {
	commodity, err := commodityOf(p)
	if err != nil {
		return domain.Payload{}, err
	}
	district, state := a.locate(p)
	markets := a.gazetteer.MarketsIn(district)
	if len(markets) == 0 {
		return domain.Payload{}, fmt.Errorf("district %q: %w", p.Location.District, tools.ErrUnresolvedLocation)
	}
	return a.tryMarkets(ctx, p, commodity, state, []geo.MarketRef{{District: district, Market: markets[0]}})
}

func (a *Adapter) alternateMarket(ctx context.Context, p tools.Params) (domain.Payload, error) {
	commodity, err := commodityOf(p)
	if err != nil {
		return domain.Payload{}, err
	}
	district, state := a.locate(p)
	markets := a.gazetteer.MarketsIn(district)
	if len(markets) < 2 {
		return domain.Payload{}, fmt.Errorf("no alternate market in %q: %w", district, tools.ErrNoData)
	}
	refs := make([]geo.MarketRef, 0, len(markets)-1)
	for _, m := range markets[1:] {
		refs = append(refs, geo.MarketRef{District: district, Market: m})
	}
	return a.tryMarkets(ctx, p, commodity, state, refs)
}

// neighboringState tries the major markets of the home state, then those of
// neighbouring states. Relaxed mode adds the second ring of states.
func (a *Adapter) neighboringState(ctx context.Context, p tools.Params) (domain.Payload, error) {
	commodity, err := commodityOf(p)
	if err != nil {
		return domain.Payload{}, err
	}
	district, state := a.locate(p)
	if state == "" {
		return domain.Payload{}, tools.ErrUnresolvedLocation
	}

	states := append([]string{state}, a.gazetteer.Neighbors(state)...)
	if p.Relaxed {
		states = append(states, a.gazetteer.SecondRing(state)...)
	}

	var lastErr error = tools.ErrNoData
	for _, st := range states {
		var refs []geo.MarketRef
		for _, m := range a.gazetteer.MajorMarkets(st) {
			if m.District == district {
				continue
			}
			refs = append(refs, m)
			if len(refs) == maxMarketsPerTier {
				break
			}
		}
		if len(refs) == 0 {
			continue
		}
		payload, err := a.tryMarkets(ctx, p, commodity, st, refs)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return domain.Payload{}, ctx.Err()
		}
	}
	return domain.Payload{}, lastErr
}

func (a *Adapter) tryMarkets(ctx context.Context, p tools.Params, commodity, state string, refs []geo.MarketRef) (domain.Payload, error) {
	from, to := a.window(p)
	var errs []error
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return domain.Payload{}, err
		}
		quotes, err := a.source.Prices(ctx, PriceQuery{
			State:     state,
			District:  ref.District,
			Market:    ref.Market,
			Commodity: commodity,
			From:      from,
			To:        to,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(quotes) == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", ref.Market, tools.ErrNoData))
			continue
		}

		a.record(ctx, state, ref.District, commodity, quotes)
		return domain.Payload{Prices: &domain.PriceReport{
			Commodity: commodity,
			Market:    ref.Market,
			District:  ref.District,
			State:     state,
			Quotes:    quotes,
		}}, nil
	}
	if len(errs) == 0 {
		return domain.Payload{}, tools.ErrNoData
	}
	return domain.Payload{}, errors.Join(errs...)
}

func (a *Adapter) record(ctx context.Context, state, district, commodity string, quotes []domain.PriceQuote) {
	if a.history == nil {
		return
	}
	if err := a.history.RecordPrices(ctx, state, district, commodity, quotes); err != nil {
		logger.Warn("Failed to record price history",
			zap.String("commodity", commodity),
			zap.String("district", district),
			zap.Error(err),
		)
	}
}

func (a *Adapter) priceHistory(ctx context.Context, p tools.Params) (domain.Payload, error) {
	if a.history == nil {
		return domain.Payload{}, fmt.Errorf("price history not configured")
	}
	commodity, err := commodityOf(p)
	if err != nil {
		return domain.Payload{}, err
	}
	_, state := a.locate(p)

	window := historyWindow
	if p.Relaxed {
		window = relaxedHistory
	}
	quotes, err := a.history.LatestPrices(ctx, commodity, state, a.clock.Now().Add(-window), 5)
	if err != nil {
		return domain.Payload{}, err
	}
	if len(quotes) == 0 && state != "" && p.Relaxed {
		quotes, err = a.history.LatestPrices(ctx, commodity, "", a.clock.Now().Add(-window), 5)
		if err != nil {
			return domain.Payload{}, err
		}
	}
	if len(quotes) == 0 {
		return domain.Payload{}, fmt.Errorf("no stored prices for %s: %w", commodity, tools.ErrNoData)
	}
	return domain.Payload{Prices: &domain.PriceReport{
		Commodity: commodity,
		Market:    quotes[0].Market,
		State:     state,
		Quotes:    quotes,
		Historic:  true,
	}}, nil
}

func (a *Adapter) seasonalCalendar(_ context.Context, p tools.Params) (domain.Payload, error) {
	commodity, err := commodityOf(p)
	if err != nil {
		return domain.Payload{}, err
	}
	season, ok := SeasonFor(commodity)
	if !ok {
		return domain.Payload{}, fmt.Errorf("no seasonal calendar for %s: %w", commodity, tools.ErrNoData)
	}
	_, state := a.locate(p)
	return domain.Payload{Prices: &domain.PriceReport{
		Commodity: season.Crop,
		State:     state,
		Season:    &season,
	}}, nil
}
