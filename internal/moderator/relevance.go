package moderator

import (
	"strings"
	"unicode"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/intent"
)

// RelevanceStrategy scores in [0,1] how well an answer addresses a question.
type RelevanceStrategy interface {
	Score(question string, in domain.Intent, answer string) float64
}

const (
	entityWeight     = 2.0
	vocabularyWeight = 2.0
	wordWeight       = 1.0
)

var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "will": true, "would": true,
	"should": true, "could": true, "there": true, "this": true, "that": true, "with": true,
	"from": true, "have": true, "does": true, "about": true, "your": true, "tell": true,
	"please": true, "much": true, "many": true, "how": true, "the": true, "and": true,
	"for": true, "are": true, "can": true, "any": true, "into": true, "some": true,
}

// KeywordOverlap weighs entity mentions, the intent's vocabulary and the
// question's content words found in the answer.
type KeywordOverlap struct{}

func (KeywordOverlap) Score(question string, in domain.Intent, answer string) float64 {
	answerLower := strings.ToLower(answer)
	answerWords := wordSet(answerLower)
	if len(answerWords) == 0 {
		return 0
	}

	var total, matched float64

	entities := map[string]bool{}
	for _, name := range []string{domain.EntityCrop, domain.EntityCommodity, domain.EntityDistrict, domain.EntityState} {
		for _, v := range strings.Split(in.Entities[name], ",") {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				entities[v] = true
			}
		}
	}
	for e := range entities {
		total += entityWeight
		if strings.Contains(answerLower, e) {
			matched += entityWeight
		}
	}

	if vocab := intent.Vocabulary(in.Label); len(vocab) > 0 {
		total += vocabularyWeight
		for _, w := range vocab {
			if answerWords[w] {
				matched += vocabularyWeight
				break
			}
		}
	}

	for w := range wordSet(strings.ToLower(question)) {
		if len(w) < 4 || stopwords[w] || entities[w] {
			continue
		}
		total += wordWeight
		if answerWords[w] {
			matched += wordWeight
		}
	}

	if total == 0 {
		return 1
	}
	return matched / total
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = true
	}
	return set
}
