package intent

import (
	"sort"
	"strings"

	"github.com/farmora/backend/internal/domain"
)

type MultiIntentMode string

const (
	// ModeMerged unions the tools of every label above the secondary threshold.
	ModeMerged MultiIntentMode = "merged"
	// ModePrimary uses the primary label's tools only.
	ModePrimary MultiIntentMode = "primary"
)

// toolTable is the only place that decides which tools a label needs.
var toolTable = map[domain.IntentLabel][]domain.ToolKind{
	domain.LabelWeather:      {domain.ToolWeather},
	domain.LabelSoilHealth:   {domain.ToolGeolocation, domain.ToolWeather},
	domain.LabelCropChoice:   {domain.ToolWeather, domain.ToolGeolocation},
	domain.LabelPestControl:  {domain.ToolWeather},
	domain.LabelMarketPrices: {domain.ToolMarketPrice},
	domain.LabelGeneral:      {},
}

type entityRule struct {
	label  domain.IntentLabel
	entity string
	tool   domain.ToolKind
}

// entityRules add a tool when a label fires together with an entity.
var entityRules = []entityRule{
	{label: domain.LabelCropChoice, entity: domain.EntityCommodity, tool: domain.ToolMarketPrice},
}

// RequiredTools is a pure function of the labels and entities: the same input
// always yields the same tool set in the same order.
func RequiredTools(labels []domain.IntentLabel, entities map[string]string) []domain.ToolKind {
	set := map[domain.ToolKind]bool{}
	for _, l := range labels {
		for _, k := range toolTable[l] {
			set[k] = true
		}
		for _, r := range entityRules {
			if r.label == l && strings.TrimSpace(entities[r.entity]) != "" {
				set[r.tool] = true
			}
		}
	}

	out := make([]domain.ToolKind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

// Commodities splits the commodity entity into its names.
func Commodities(entities map[string]string) []string {
	raw := entities[domain.EntityCommodity]
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
