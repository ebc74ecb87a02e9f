package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/internal/tools/geo"
	"github.com/farmora/backend/pkg/logger"
)

type Config struct {
	ConfidenceThreshold float64
	SecondaryThreshold  float64
	MaxLength           int
	MultiIntent         MultiIntentMode
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.3,
		SecondaryThreshold:  0.5,
		MaxLength:           500,
		MultiIntent:         ModeMerged,
	}
}

// Classifier maps working-language text to an Intent. It is stateless apart
// from its lexicons and safe for concurrent use.
type Classifier struct {
	cfg       Config
	gazetteer *geo.Gazetteer
	unigrams  map[string][]labelWeight
	phrases   []phraseTerm
}

type labelWeight struct {
	label  domain.IntentLabel
	weight float64
}

type phraseTerm struct {
	text string
	labelWeight
}

func NewClassifier(cfg Config, gazetteer *geo.Gazetteer) *Classifier {
	def := DefaultConfig()
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if cfg.MultiIntent == "" {
		cfg.MultiIntent = def.MultiIntent
	}
	if gazetteer == nil {
		gazetteer = geo.Default()
	}

	c := &Classifier{cfg: cfg, gazetteer: gazetteer, unigrams: map[string][]labelWeight{}}
	for _, label := range domain.IntentLabels {
		for _, t := range keywordLexicon[label] {
			lw := labelWeight{label: label, weight: t.weight}
			if strings.Contains(t.text, " ") {
				c.phrases = append(c.phrases, phraseTerm{text: t.text, labelWeight: lw})
				continue
			}
			c.unigrams[t.text] = append(c.unigrams[t.text], lw)
		}
	}
	return c
}

// Classify never fails: empty or unscorable text yields the general label
// with no tools.
func (c *Classifier) Classify(text string, hint domain.Location) (out domain.Intent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Intent classification panicked", zap.Any("panic", r))
			out = generalIntent(0, nil, false)
		}
		metrics.IntentTotal.WithLabelValues(string(out.Label)).Inc()
	}()

	text, truncated := truncateRunes(strings.TrimSpace(text), c.cfg.MaxLength)
	if text == "" {
		return generalIntent(0, nil, truncated)
	}

	words := tokenize(text)
	entities := c.extractEntities(text, words, hint)
	scores := c.score(words)

	primary, best := domain.LabelGeneral, 0.0
	for _, label := range domain.IntentLabels {
		if conf := confidence(scores[label]); conf > best {
			primary, best = label, conf
		}
	}
	if best < c.cfg.ConfidenceThreshold {
		return generalIntent(best, entities, truncated)
	}

	var secondary []domain.IntentLabel
	for _, label := range domain.IntentLabels {
		if label == primary || label == domain.LabelGeneral {
			continue
		}
		if confidence(scores[label]) >= c.cfg.SecondaryThreshold {
			secondary = append(secondary, label)
		}
	}

	toolLabels := []domain.IntentLabel{primary}
	if c.cfg.MultiIntent == ModeMerged {
		toolLabels = append(toolLabels, secondary...)
	}

	in := domain.Intent{
		Label:         primary,
		Confidence:    best,
		Secondary:     secondary,
		RequiredTools: RequiredTools(toolLabels, entities),
		Entities:      entities,
		Truncated:     truncated,
	}

	logger.Debug("Intent classified",
		zap.String("label", string(in.Label)),
		zap.Float64("confidence", in.Confidence),
		zap.Int("tools", len(in.RequiredTools)),
	)
	return in
}

func generalIntent(conf float64, entities map[string]string, truncated bool) domain.Intent {
	if entities == nil {
		entities = map[string]string{}
	}
	return domain.Intent{
		Label:         domain.LabelGeneral,
		Confidence:    conf,
		RequiredTools: []domain.ToolKind{},
		Entities:      entities,
		Truncated:     truncated,
	}
}

func confidence(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

// score counts each lexicon term at most once per question.
func (c *Classifier) score(words []string) map[domain.IntentLabel]float64 {
	scores := map[domain.IntentLabel]float64{}
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		for _, lw := range c.unigrams[w] {
			scores[lw.label] += lw.weight
		}
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, p := range c.phrases {
		if strings.Contains(joined, " "+p.text+" ") {
			scores[p.label] += p.weight
		}
	}
	return scores
}

func (c *Classifier) extractEntities(text string, words []string, hint domain.Location) map[string]string {
	entities := map[string]string{}

	var crops []string
	seen := map[string]bool{}
	for _, w := range words {
		if crop, ok := cropLexicon[w]; ok && !seen[crop] {
			seen[crop] = true
			crops = append(crops, crop)
		}
	}
	if len(crops) > 0 {
		entities[domain.EntityCrop] = crops[0]
		entities[domain.EntityCommodity] = strings.Join(crops, ",")
	}

	district, state := c.gazetteer.FindIn(text)
	if district == "" {
		district = hint.District
	}
	if state == "" {
		state = hint.State
	}
	if district != "" {
		entities[domain.EntityDistrict] = district
	}
	if state != "" {
		entities[domain.EntityState] = state
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, d := range dayPhrases {
		if strings.Contains(joined, " "+d.phrase+" ") {
			entities[domain.EntityDayOffset] = d.offset
			break
		}
	}
	return entities
}

// tokenize lower-cases prose tokens and keeps only word-like ones.
func tokenize(text string) []string {
	var raw []string
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		for _, tok := range doc.Tokens() {
			raw = append(raw, tok.Text)
		}
	} else {
		raw = strings.Fields(text)
	}

	words := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimFunc(t, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if t != "" {
			words = append(words, t)
		}
	}
	return words
}

func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	r := []rune(s)
	return string(r[:max]), true
}
