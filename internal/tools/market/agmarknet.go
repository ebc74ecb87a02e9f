package market

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/pkg/logger"
)

// PriceQuery selects quotes for one commodity at one market over a date window.
type PriceQuery struct {
	State     string
	District  string
	Market    string
	Commodity string
	From      time.Time
	To        time.Time
}

// PriceSource is the market-price collaborator. How quotes are obtained
// (scraping, an API, a file drop) is up to the implementation.
type PriceSource interface {
	Prices(ctx context.Context, q PriceQuery) ([]domain.PriceQuote, error)
}

const agmarknetDateLayout = "02-Jan-2006"

// AgmarknetSource scrapes the Agmarknet commodity search results table.
type AgmarknetSource struct {
	baseURL  string
	upstream *tools.Upstream
}

func NewAgmarknetSource(baseURL string, timeout time.Duration) *AgmarknetSource {
	up := tools.NewUpstream("agmarknet", timeout)
	up.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	return &AgmarknetSource{baseURL: baseURL, upstream: up}
}

func (s *AgmarknetSource) Prices(ctx context.Context, q PriceQuery) ([]domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("Tx_Commodity", q.Commodity)
	params.Set("Tx_State", q.State)
	params.Set("Tx_District", q.District)
	params.Set("Tx_Market", q.Market)
	params.Set("DateFrom", q.From.Format(agmarknetDateLayout))
	params.Set("DateTo", q.To.Format(agmarknetDateLayout))
	params.Set("Fr_Date", q.From.Format(agmarknetDateLayout))
	params.Set("To_Date", q.To.Format(agmarknetDateLayout))
	params.Set("Tx_Trend", "0")
	params.Set("Tx_CommodityHead", q.Commodity)
	params.Set("Tx_StateHead", q.State)
	params.Set("Tx_DistrictHead", q.District)
	params.Set("Tx_MarketHead", q.Market)

	var quotes []domain.PriceQuote
	err := s.upstream.Get(ctx, s.baseURL+"?"+params.Encode(), func(r io.Reader) error {
		var err error
		quotes, err = ParsePriceTable(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("agmarknet %s/%s: %w", q.Market, q.Commodity, err)
	}
	if len(quotes) == 0 {
		return nil, tools.ErrNoData
	}

	logger.Debug("Agmarknet quotes scraped",
		zap.String("market", q.Market),
		zap.String("commodity", q.Commodity),
		zap.Int("rows", len(quotes)),
	)
	return quotes, nil
}

// ParsePriceTable reads the price grid out of an Agmarknet results page.
// Columns are located by header text so reordering does not break parsing.
// Quotes come back newest first.
func ParsePriceTable(r io.Reader) ([]domain.PriceQuote, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := doc.Find("table#cphBody_GridPriceData")
	if table.Length() == 0 {
		doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(t.Find("th").Text()), "modal price") {
				table = t
				return false
			}
			return true
		})
	}
	if table.Length() == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	table.Find("th").Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case strings.Contains(h, "market"):
			cols["market"] = i
		case strings.Contains(h, "variety"):
			cols["variety"] = i
		case strings.Contains(h, "min price"):
			cols["min"] = i
		case strings.Contains(h, "max price"):
			cols["max"] = i
		case strings.Contains(h, "modal price"):
			cols["modal"] = i
		case strings.Contains(h, "date"):
			cols["date"] = i
		}
	})
	if _, ok := cols["modal"]; !ok {
		return nil, fmt.Errorf("price table has no modal price column")
	}

	var quotes []domain.PriceQuote
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		modal, ok := parsePrice(cell("modal"))
		if !ok {
			return
		}
		minPrice, _ := parsePrice(cell("min"))
		maxPrice, _ := parsePrice(cell("max"))
		quotes = append(quotes, domain.PriceQuote{
			Date:       normalizeDate(cell("date")),
			Market:     cell("market"),
			Variety:    cell("variety"),
			MinPrice:   minPrice,
			MaxPrice:   maxPrice,
			ModalPrice: modal,
		})
	})

	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Date > quotes[j].Date })
	return quotes, nil
}

func parsePrice(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

var dateLayouts = []string{"02 Jan 2006", "02-Jan-2006", "02/01/2006", "2006-01-02"}

// normalizeDate converts the site's date formats to YYYY-MM-DD.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
