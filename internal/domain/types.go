package domain

import (
	"strings"
	"time"
)

type ToolKind string

const (
	ToolWeather     ToolKind = "weather"
	ToolMarketPrice ToolKind = "market_price"
	ToolGeolocation ToolKind = "geolocation"
	ToolTranslation ToolKind = "translation"
)

// ToolKinds lists every kind in a fixed order. Tool sets are sorted by it.
var ToolKinds = []ToolKind{ToolWeather, ToolMarketPrice, ToolGeolocation, ToolTranslation}

func (k ToolKind) Rank() int {
	for i, kind := range ToolKinds {
		if kind == k {
			return i
		}
	}
	return len(ToolKinds)
}

type IntentLabel string

const (
	LabelWeather      IntentLabel = "weather"
	LabelSoilHealth   IntentLabel = "soil_health"
	LabelCropChoice   IntentLabel = "crop_choice"
	LabelPestControl  IntentLabel = "pest_control"
	LabelMarketPrices IntentLabel = "market_prices"
	LabelGeneral      IntentLabel = "general"
)

// IntentLabels is the closed label set in declaration order. Classifier ties
// are broken by this order.
var IntentLabels = []IntentLabel{
	LabelWeather,
	LabelSoilHealth,
	LabelCropChoice,
	LabelPestControl,
	LabelMarketPrices,
	LabelGeneral,
}

func ParseIntentLabel(s string) (IntentLabel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range IntentLabels {
		if string(l) == s {
			return l, true
		}
	}
	return LabelGeneral, false
}

// Entity names produced by the classifier.
const (
	EntityCrop      = "crop"
	EntityCommodity = "commodity"
	EntityDistrict  = "district"
	EntityState     = "state"
	EntityDayOffset = "day_offset"
)

// Location is where the farmer is asking from. District and State may be empty.
type Location struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	HasCoords bool    `json:"has_coords"`
	District  string  `json:"district,omitempty"`
	State     string  `json:"state,omitempty"`
}

func NewCoordinates(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon, HasCoords: true}
}

func (l Location) IsZero() bool {
	return !l.HasCoords && l.District == "" && l.State == ""
}

// Query is built once at pipeline entry and passed by value afterwards.
type Query struct {
	ID           string    `json:"id"`
	RawText      string    `json:"raw_text"`
	UserLanguage string    `json:"user_language"`
	Location     Location  `json:"location"`
	UserID       string    `json:"user_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Intent struct {
	Label         IntentLabel       `json:"label"`
	Confidence    float64           `json:"confidence"`
	Secondary     []IntentLabel     `json:"secondary,omitempty"`
	RequiredTools []ToolKind        `json:"required_tools"`
	Entities      map[string]string `json:"entities,omitempty"`
	Truncated     bool              `json:"truncated,omitempty"`
}

// Labels returns the primary label followed by the secondary ones.
func (i Intent) Labels() []IntentLabel {
	out := make([]IntentLabel, 0, 1+len(i.Secondary))
	out = append(out, i.Label)
	return append(out, i.Secondary...)
}

func (i Intent) Entity(name string) string {
	return i.Entities[name]
}

func (i Intent) Requires(kind ToolKind) bool {
	for _, k := range i.RequiredTools {
		if k == kind {
			return true
		}
	}
	return false
}

type ToolStatus string

const (
	StatusOK      ToolStatus = "ok"
	StatusPartial ToolStatus = "partial"
	StatusFailed  ToolStatus = "failed"
)

// TierAttempt records one rung of an adapter's fallback ladder.
type TierAttempt struct {
	Tier     string        `json:"tier"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type ToolResult struct {
	Kind        ToolKind          `json:"kind"`
	Status      ToolStatus        `json:"status"`
	Payload     Payload           `json:"payload"`
	SourceLabel string            `json:"source_label"`
	FetchedAt   time.Time         `json:"fetched_at"`
	Tier        string            `json:"tier,omitempty"`
	Error       string            `json:"error,omitempty"`
	Attempts    []TierAttempt     `json:"attempts,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
}

func (r ToolResult) Usable() bool {
	return r.Status == StatusOK || r.Status == StatusPartial
}

// Payload holds the tool-specific data. Exactly one field is set for a usable result.
type Payload struct {
	Weather *WeatherReport `json:"weather,omitempty"`
	Prices  *PriceReport   `json:"prices,omitempty"`
	Place   *Place         `json:"place,omitempty"`
}

type WeatherReport struct {
	Place       string       `json:"place"`
	Granularity string       `json:"granularity"`
	Lat         float64      `json:"lat"`
	Lon         float64      `json:"lon"`
	Days        []WeatherDay `json:"days"`
}

type WeatherDay struct {
	Date                     string  `json:"date"`
	TempMaxC                 float64 `json:"temp_max_c"`
	TempMinC                 float64 `json:"temp_min_c"`
	PrecipitationMm          float64 `json:"precipitation_mm"`
	PrecipitationProbability int     `json:"precipitation_probability"`
	WindSpeedKmh             float64 `json:"wind_speed_kmh"`
	Summary                  string  `json:"summary"`
}

type PriceReport struct {
	Commodity string       `json:"commodity"`
	Market    string       `json:"market,omitempty"`
	District  string       `json:"district,omitempty"`
	State     string       `json:"state,omitempty"`
	Quotes    []PriceQuote `json:"quotes,omitempty"`
	Season    *SeasonInfo  `json:"season,omitempty"`
	Historic  bool         `json:"historic,omitempty"`
}

// PriceQuote prices are in rupees per quintal.
type PriceQuote struct {
	Date       string  `json:"date"`
	Market     string  `json:"market"`
	Variety    string  `json:"variety,omitempty"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	ModalPrice float64 `json:"modal_price"`
}

type SeasonInfo struct {
	Crop    string `json:"crop"`
	Season  string `json:"season"`
	Sowing  string `json:"sowing"`
	Harvest string `json:"harvest"`
	Note    string `json:"note,omitempty"`
}

type Place struct {
	District    string  `json:"district,omitempty"`
	State       string  `json:"state"`
	Country     string  `json:"country,omitempty"`
	Granularity string  `json:"granularity"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Fact is one short, sourced statement handed to the LLM.
type Fact struct {
	Text        string    `json:"text"`
	SourceLabel string    `json:"source_label"`
	Kind        ToolKind  `json:"kind"`
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic"`
	Specificity int       `json:"specificity"`
	ObservedAt  time.Time `json:"observed_at"`
	Relevance   float64   `json:"relevance"`
	Tokens      int       `json:"tokens"`
}

type AssembledContext struct {
	Facts                 []Fact     `json:"facts"`
	TokenBudgetUsed       int        `json:"token_budget_used"`
	ToolResultsConsidered int        `json:"tool_results_considered"`
	Empty                 bool       `json:"empty"`
	FailedTools           []ToolKind `json:"failed_tools,omitempty"`
	AttemptedTools        []ToolKind `json:"attempted_tools,omitempty"`
	// Stale marks a context reused from an earlier query after live tools failed.
	Stale bool `json:"stale,omitempty"`
	// NoExternalData is set when tools answered but nothing usable came back.
	NoExternalData bool `json:"no_external_data,omitempty"`
}

// Sources returns the distinct source labels of the facts in rank order.
func (c AssembledContext) Sources() []string {
	seen := make(map[string]bool, len(c.Facts))
	var out []string
	for _, f := range c.Facts {
		if f.SourceLabel == "" || seen[f.SourceLabel] {
			continue
		}
		seen[f.SourceLabel] = true
		out = append(out, f.SourceLabel)
	}
	return out
}

// AllToolsFailed reports whether every attempted tool failed.
func (c AssembledContext) AllToolsFailed() bool {
	return len(c.AttemptedTools) > 0 && len(c.FailedTools) == len(c.AttemptedTools)
}

type Warning struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Answer is the terminal artifact of a query. Nothing modifies it after it is returned.
type Answer struct {
	QueryID      string    `json:"query_id"`
	Text         string    `json:"text"`
	Sources      []string  `json:"sources"`
	Confidence   float64   `json:"confidence"`
	Intent       Intent    `json:"intent"`
	LanguageUsed string    `json:"language_used"`
	Degraded     bool      `json:"degraded"`
	Warnings     []Warning `json:"warnings,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
