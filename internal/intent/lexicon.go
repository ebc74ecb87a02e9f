package intent

import (
	"sort"
	"strings"

	"github.com/farmora/backend/internal/domain"
)

type term struct {
	text   string
	weight float64
}

// keywordLexicon scores each label. Multi-word terms are matched as phrases.
var keywordLexicon = map[domain.IntentLabel][]term{
	domain.LabelWeather: {
		{"weather", 1.5}, {"forecast", 1.5}, {"rain", 1.2}, {"rainfall", 1.2}, {"raining", 1.2},
		{"temperature", 1.2}, {"humidity", 1.0}, {"wind", 0.8}, {"storm", 1.0}, {"monsoon", 1.0},
		{"frost", 1.0}, {"sunny", 1.0}, {"cloudy", 1.0}, {"drizzle", 1.0}, {"heatwave", 1.2},
		{"hot", 0.5}, {"cold", 0.5}, {"mausam", 1.5}, {"barish", 1.2},
	},
	domain.LabelSoilHealth: {
		{"soil", 1.5}, {"fertilizer", 1.0}, {"fertiliser", 1.0}, {"npk", 1.2}, {"ph", 1.0},
		{"nitrogen", 1.0}, {"phosphorus", 1.0}, {"potassium", 1.0}, {"urea", 1.0}, {"dap", 1.0},
		{"manure", 1.0}, {"compost", 0.8}, {"soil test", 1.0}, {"nutrient", 1.0}, {"nutrients", 1.0},
		{"salinity", 1.0}, {"mitti", 1.5},
	},
	domain.LabelCropChoice: {
		{"which crop", 1.5}, {"best crop", 1.5}, {"what to grow", 1.5}, {"what to sow", 1.5},
		{"sow", 1.2}, {"sowing", 1.2}, {"cultivate", 1.0}, {"grow", 0.8}, {"plant", 0.8},
		{"variety", 0.8}, {"varieties", 0.8}, {"seed", 0.8}, {"seeds", 0.8}, {"kharif", 1.0},
		{"rabi", 1.0}, {"season", 0.6}, {"crop", 0.6}, {"harvest", 0.6},
	},
	domain.LabelPestControl: {
		{"pest", 1.5}, {"pests", 1.5}, {"pesticide", 1.5}, {"insecticide", 1.5}, {"fungicide", 1.5},
		{"insect", 1.2}, {"insects", 1.2}, {"disease", 1.2}, {"fungus", 1.2}, {"blight", 1.2},
		{"aphid", 1.2}, {"aphids", 1.2}, {"borer", 1.2}, {"locust", 1.2}, {"larvae", 1.0},
		{"worm", 1.0}, {"worms", 1.0}, {"weed", 1.0}, {"weeds", 1.0}, {"spray", 1.0}, {"keeda", 1.5},
	},
	domain.LabelMarketPrices: {
		{"price", 1.5}, {"prices", 1.5}, {"mandi", 1.5}, {"msp", 1.5}, {"market", 1.2},
		{"rate", 1.0}, {"rates", 1.0}, {"sell", 1.0}, {"selling", 1.0}, {"quintal", 1.0},
		{"per quintal", 1.0}, {"buyer", 0.8}, {"cost", 0.6}, {"bhav", 1.5}, {"daam", 1.5},
	},
}

// cropLexicon maps surface forms (English and common transliterations) to
// the canonical commodity name used by the market tools.
var cropLexicon = map[string]string{
	"rice": "Rice", "paddy": "Rice", "dhan": "Rice", "chawal": "Rice",
	"wheat": "Wheat", "gehu": "Wheat", "gehun": "Wheat",
	"maize": "Maize", "corn": "Maize", "makka": "Maize",
	"potato": "Potato", "potatoes": "Potato", "aloo": "Potato",
	"onion": "Onion", "onions": "Onion", "pyaz": "Onion",
	"tomato": "Tomato", "tomatoes": "Tomato", "tamatar": "Tomato",
	"apple": "Apple", "apples": "Apple",
	"strawberry": "Strawberry", "strawberries": "Strawberry",
	"cotton": "Cotton", "kapas": "Cotton",
	"sugarcane": "Sugarcane", "ganna": "Sugarcane",
	"mustard": "Mustard", "sarson": "Mustard",
	"soybean": "Soyabean", "soyabean": "Soyabean",
	"barley": "Barley", "jau": "Barley",
	"bajra": "Bajra", "millet": "Bajra",
	"jowar": "Jowar", "sorghum": "Jowar",
	"chickpea": "Gram", "gram": "Gram", "chana": "Gram",
}

var dayPhrases = []struct {
	phrase string
	offset string
}{
	{"day after tomorrow", "2"},
	{"next week", "7"},
	{"tomorrow", "1"},
	{"tonight", "0"},
	{"today", "0"},
	{"kal", "1"},
	{"aaj", "0"},
}

// CropTerms returns every crop surface form, longest first. The translator
// masks these so they survive translation unchanged.
func CropTerms() []string {
	out := make([]string, 0, len(cropLexicon))
	for k := range cropLexicon {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// CanonicalCrop maps a crop surface form to its commodity name.
func CanonicalCrop(word string) (string, bool) {
	c, ok := cropLexicon[strings.ToLower(strings.TrimSpace(word))]
	return c, ok
}

// Vocabulary returns the single-word keywords of a label.
func Vocabulary(label domain.IntentLabel) []string {
	var out []string
	for _, t := range keywordLexicon[label] {
		if !strings.Contains(t.text, " ") {
			out = append(out, t.text)
		}
	}
	return out
}
