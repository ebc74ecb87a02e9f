package translate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\[\[\s*(\d+)\s*\]\]`)

// masker swaps protected terms for numbered placeholders so a translation
// backend cannot alter them.
type masker struct {
	static []string
}

func newMasker(terms []string) *masker {
	return &masker{static: terms}
}

func (m *masker) pattern(extra []string) *regexp.Regexp {
	seen := map[string]bool{}
	var terms []string
	for _, t := range append(append([]string(nil), m.static...), extra...) {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if len(t) < 3 || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, regexp.QuoteMeta(t))
	}
	if len(terms) == 0 {
		return nil
	}
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(terms, "|") + `)\b`)
}

// mask returns the masked text and the originals indexed by placeholder number.
func (m *masker) mask(text string, extra []string) (string, []string) {
	re := m.pattern(extra)
	if re == nil {
		return text, nil
	}
	var originals []string
	index := map[string]int{}
	masked := re.ReplaceAllStringFunc(text, func(match string) string {
		i, ok := index[match]
		if !ok {
			i = len(originals)
			index[match] = i
			originals = append(originals, match)
		}
		return fmt.Sprintf("[[%d]]", i)
	})
	return masked, originals
}

func unmask(text string, originals []string) string {
	if len(originals) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(ph string) string {
		sub := placeholderRe.FindStringSubmatch(ph)
		i, err := strconv.Atoi(sub[1])
		if err != nil || i >= len(originals) {
			return ph
		}
		return originals[i]
	})
}
