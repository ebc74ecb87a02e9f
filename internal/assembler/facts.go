package assembler

import (
	"fmt"
	"strings"

	"github.com/farmora/backend/internal/domain"
)

// relevanceByLabel weighs how much a tool's facts matter to each intent.
var relevanceByLabel = map[domain.IntentLabel]map[domain.ToolKind]float64{
	domain.LabelWeather:      {domain.ToolWeather: 1.0, domain.ToolGeolocation: 0.3, domain.ToolMarketPrice: 0.3},
	domain.LabelSoilHealth:   {domain.ToolGeolocation: 0.9, domain.ToolWeather: 0.7, domain.ToolMarketPrice: 0.3},
	domain.LabelCropChoice:   {domain.ToolWeather: 0.8, domain.ToolMarketPrice: 0.8, domain.ToolGeolocation: 0.6},
	domain.LabelPestControl:  {domain.ToolWeather: 1.0, domain.ToolGeolocation: 0.4, domain.ToolMarketPrice: 0.2},
	domain.LabelMarketPrices: {domain.ToolMarketPrice: 1.0, domain.ToolWeather: 0.3, domain.ToolGeolocation: 0.3},
	domain.LabelGeneral:      {domain.ToolWeather: 0.5, domain.ToolMarketPrice: 0.5, domain.ToolGeolocation: 0.5},
}

const secondaryLabelFactor = 0.8

// relevance is the best weight of kind over the primary and secondary labels.
func relevance(in domain.Intent, kind domain.ToolKind) float64 {
	best := relevanceByLabel[in.Label][kind]
	for _, l := range in.Secondary {
		if w := relevanceByLabel[l][kind] * secondaryLabelFactor; w > best {
			best = w
		}
	}
	return best
}

// factsFrom turns one usable ToolResult into facts. Failed results yield none.
func factsFrom(res domain.ToolResult, in domain.Intent) []domain.Fact {
	if !res.Usable() {
		return nil
	}
	base := relevance(in, res.Kind)

	var facts []domain.Fact
	switch {
	case res.Payload.Weather != nil:
		facts = weatherFacts(res.Payload.Weather)
	case res.Payload.Prices != nil:
		facts = priceFacts(res.Payload.Prices)
	case res.Payload.Place != nil:
		facts = placeFacts(res.Payload.Place)
	}

	// Later forecast days and secondary facts rank slightly lower.
	for i := range facts {
		facts[i].Kind = res.Kind
		facts[i].SourceLabel = res.SourceLabel
		facts[i].ObservedAt = res.FetchedAt
		facts[i].Relevance = base - 0.05*float64(i)
		if res.Status == domain.StatusPartial {
			facts[i].Specificity--
		}
	}
	return facts
}

func granularitySpecificity(g string) int {
	switch g {
	case "coordinates":
		return 3
	case "district":
		return 2
	case "state":
		return 1
	}
	return 0
}

func weatherFacts(w *domain.WeatherReport) []domain.Fact {
	spec := granularitySpecificity(w.Granularity)
	facts := make([]domain.Fact, 0, len(w.Days))
	for _, d := range w.Days {
		var b strings.Builder
		fmt.Fprintf(&b, "%s on %s: %s, %.0f-%.0f°C", w.Place, d.Date, summaryOr(d.Summary), d.TempMinC, d.TempMaxC)
		if d.PrecipitationMm > 0 || d.PrecipitationProbability > 0 {
			fmt.Fprintf(&b, ", %.1f mm rain (%d%% chance)", d.PrecipitationMm, d.PrecipitationProbability)
		}
		if d.WindSpeedKmh > 0 {
			fmt.Fprintf(&b, ", wind up to %.0f km/h", d.WindSpeedKmh)
		}
		b.WriteString(".")
		facts = append(facts, domain.Fact{
			Text:        b.String(),
			Subject:     strings.ToLower(w.Place),
			Topic:       "forecast:" + d.Date,
			Specificity: spec,
		})
	}
	return facts
}

func summaryOr(s string) string {
	if s == "" {
		return "forecast"
	}
	return s
}

func priceFacts(p *domain.PriceReport) []domain.Fact {
	subject := strings.ToLower(p.Commodity)
	var facts []domain.Fact

	if len(p.Quotes) > 0 {
		latest := p.Quotes[0]
		market := latest.Market
		if market == "" {
			market = p.Market
		}
		where := placeLabel(market, p.District, p.State)
		prefix := p.Commodity + " modal price"
		spec := 3
		if p.Historic {
			prefix = "Last recorded " + p.Commodity + " modal price"
			spec = 1
		}
		facts = append(facts, domain.Fact{
			Text: fmt.Sprintf("%s at %s on %s: ₹%s/quintal (range ₹%s-₹%s).",
				prefix, where, latest.Date, rupees(latest.ModalPrice), rupees(latest.MinPrice), rupees(latest.MaxPrice)),
			Subject:     subject,
			Topic:       "price",
			Specificity: spec,
		})

		if len(p.Quotes) > 1 {
			oldest := p.Quotes[len(p.Quotes)-1]
			facts = append(facts, domain.Fact{
				Text: fmt.Sprintf("%s modal price at %s moved from ₹%s on %s to ₹%s on %s.",
					p.Commodity, market, rupees(oldest.ModalPrice), oldest.Date, rupees(latest.ModalPrice), latest.Date),
				Subject:     subject,
				Topic:       "price-trend",
				Specificity: spec,
			})
		}
	}

	if s := p.Season; s != nil {
		text := fmt.Sprintf("%s is a %s crop: sown %s, harvested %s", s.Crop, s.Season, s.Sowing, s.Harvest)
		if s.Note != "" {
			text += "; " + s.Note
		}
		facts = append(facts, domain.Fact{
			Text:        text + ". No recent market price was available.",
			Subject:     subject,
			Topic:       "season",
			Specificity: 0,
		})
	}
	return facts
}

func placeFacts(p *domain.Place) []domain.Fact {
	text := "Location resolved to " + p.State
	if p.District != "" {
		text = fmt.Sprintf("Location resolved to %s district, %s", p.District, p.State)
	}
	return []domain.Fact{{
		Text:        text + ".",
		Subject:     "location",
		Topic:       "place",
		Specificity: granularitySpecificity(p.Granularity),
	}}
}

func placeLabel(market, district, state string) string {
	var parts []string
	for _, s := range []string{district, state} {
		if s != "" && !strings.EqualFold(s, market) {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return market
	}
	return fmt.Sprintf("%s (%s)", market, strings.Join(parts, ", "))
}

// rupees formats a price with Indian digit grouping for thousands.
func rupees(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	if len(s) <= 3 {
		return s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}

// better reports whether a should replace b among duplicates: more specific
// first, then more recent.
func better(a, b domain.Fact) bool {
	if a.Specificity != b.Specificity {
		return a.Specificity > b.Specificity
	}
	return a.ObservedAt.After(b.ObservedAt)
}

func dedupe(facts []domain.Fact) []domain.Fact {
	type key struct {
		kind           domain.ToolKind
		subject, topic string
	}
	index := map[key]int{}
	out := make([]domain.Fact, 0, len(facts))
	for _, f := range facts {
		k := key{f.Kind, f.Subject, f.Topic}
		if i, ok := index[k]; ok {
			if better(f, out[i]) {
				out[i] = f
			}
			continue
		}
		index[k] = len(out)
		out = append(out, f)
	}
	return out
}

// less orders by relevance, then recency, then specificity.
func less(a, b domain.Fact) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	if a.Specificity != b.Specificity {
		return a.Specificity > b.Specificity
	}
	return a.Text < b.Text
}
