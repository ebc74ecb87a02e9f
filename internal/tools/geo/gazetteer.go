package geo

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/farmora/backend/internal/domain"
)

type State struct {
	Name         string
	Aliases      []string
	Lat, Lon     float64
	Neighbors    []string
	MajorMarkets []MarketRef
}

type District struct {
	Name     string
	State    string
	Lat, Lon float64
	Aliases  []string
	Markets  []string
}

type MarketRef struct {
	District string
	Market   string
}

// Gazetteer is the canonical table of districts and states used to normalize
// free-text locations before any upstream is queried.
type Gazetteer struct {
	states    []State
	districts []District
	stateIdx  map[string]int
	distIdx   map[string]int
	names     []string
}

// ambiguousWords are place names that are also everyday words in questions
// ("mandi" is the usual word for a wholesale market).
var ambiguousWords = map[string]bool{"mandi": true}

var suffixPattern = regexp.MustCompile(`(?i)\s+(tahsil|tehsil|district|taluka|taluk|division|mandal|subdivision)\b`)

func NewGazetteer(states []State, districts []District) *Gazetteer {
	g := &Gazetteer{
		states:    states,
		districts: districts,
		stateIdx:  make(map[string]int),
		distIdx:   make(map[string]int),
	}
	for i, s := range states {
		g.stateIdx[normalizeName(s.Name)] = i
		for _, a := range s.Aliases {
			g.stateIdx[normalizeName(a)] = i
		}
		g.names = append(g.names, s.Name)
	}
	for i, d := range districts {
		g.distIdx[normalizeName(d.Name)] = i
		for _, a := range d.Aliases {
			g.distIdx[normalizeName(a)] = i
		}
		g.names = append(g.names, d.Name)
	}
	return g
}

var defaultGazetteer = NewGazetteer(defaultStates, defaultDistricts)

// Default returns the built-in gazetteer.
func Default() *Gazetteer {
	return defaultGazetteer
}

// NormalizeDistrictName strips administrative suffixes such as "District" or "Tehsil".
func NormalizeDistrictName(name string) string {
	return strings.TrimSpace(suffixPattern.ReplaceAllString(strings.TrimSpace(name), ""))
}

func normalizeName(name string) string {
	return strings.ToLower(NormalizeDistrictName(name))
}

func (g *Gazetteer) District(name string) (District, bool) {
	i, ok := g.distIdx[normalizeName(name)]
	if !ok {
		return District{}, false
	}
	return g.districts[i], true
}

func (g *Gazetteer) State(name string) (State, bool) {
	i, ok := g.stateIdx[normalizeName(name)]
	if !ok {
		return State{}, false
	}
	return g.states[i], true
}

// Resolve canonicalizes a location. It returns the granularity reached:
// "district", "state" or "" when nothing could be resolved. A district that
// cannot be matched is dropped and the location degrades to its state.
func (g *Gazetteer) Resolve(loc domain.Location) (domain.Location, string) {
	out := loc
	if loc.District != "" {
		if d, ok := g.District(loc.District); ok {
			out.District = d.Name
			out.State = d.State
			return out, "district"
		}
		out.District = ""
	}
	if loc.State != "" {
		if s, ok := g.State(loc.State); ok {
			out.State = s.Name
			return out, "state"
		}
		out.State = ""
	}
	return out, ""
}

// Nearest returns the district closest to the point and its distance in km.
func (g *Gazetteer) Nearest(lat, lon float64) (District, float64) {
	best := -1
	bestDist := math.MaxFloat64
	for i, d := range g.districts {
		dist := Haversine(lat, lon, d.Lat, d.Lon)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return District{}, 0
	}
	return g.districts[best], bestDist
}

func (g *Gazetteer) Neighbors(state string) []string {
	s, ok := g.State(state)
	if !ok {
		return nil
	}
	return s.Neighbors
}

// SecondRing returns neighbours of neighbours, excluding state and its direct neighbours.
func (g *Gazetteer) SecondRing(state string) []string {
	s, ok := g.State(state)
	if !ok {
		return nil
	}
	skip := map[string]bool{s.Name: true}
	for _, n := range s.Neighbors {
		skip[n] = true
	}
	var out []string
	for _, n := range s.Neighbors {
		for _, nn := range g.Neighbors(n) {
			if !skip[nn] {
				skip[nn] = true
				out = append(out, nn)
			}
		}
	}
	return out
}

func (g *Gazetteer) MajorMarkets(state string) []MarketRef {
	s, ok := g.State(state)
	if !ok {
		return nil
	}
	return s.MajorMarkets
}

func (g *Gazetteer) MarketsIn(district string) []string {
	d, ok := g.District(district)
	if !ok {
		return nil
	}
	if len(d.Markets) == 0 {
		return []string{d.Name}
	}
	return d.Markets
}

// Names returns every canonical district and state name, longest first.
func (g *Gazetteer) Names() []string {
	out := append([]string(nil), g.names...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// FindIn scans free text for a district or state name or alias. Multi-word
// names are matched before single words, and a district's own state wins over
// any state named separately.
func (g *Gazetteer) FindIn(text string) (district, state string) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for n := 3; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			if n == 1 && ambiguousWords[phrase] {
				continue
			}
			if district == "" {
				if idx, ok := g.distIdx[phrase]; ok {
					district = g.districts[idx].Name
					state = g.districts[idx].State
				}
			}
			if state == "" {
				if idx, ok := g.stateIdx[phrase]; ok && len(phrase) > 2 {
					state = g.states[idx].Name
				}
			}
		}
	}
	return district, state
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
