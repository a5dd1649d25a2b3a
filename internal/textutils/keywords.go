package textutils

import (
	"regexp"
	"strings"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "about": {}, "that": {}, "this": {}, "these": {}, "those": {},
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "how": {},
	"why": {}, "there": {}, "here": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "is": {}, "was": {}, "are": {}, "were": {}, "be": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "should": {},
	"could": {}, "may": {}, "might": {}, "must": {}, "can": {}, "it": {},
	"its": {}, "as": {}, "we": {}, "you": {}, "they": {}, "i": {},
}

var wordRe = regexp.MustCompile(`[a-z0-9']+`)

func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Words lowercases text and returns its alphanumeric tokens in order.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Terms returns the meaningful tokens of text: lowercased, stopwords removed,
// tokens shorter than four characters dropped.
func Terms(text string) []string {
	words := Words(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 3 || IsStopword(w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// TermSet is Terms deduplicated into a set.
func TermSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Terms(text) {
		set[t] = struct{}{}
	}
	return set
}

// Themes extracts candidate bigram and trigram themes from text. A theme is a
// run of non-stopword tokens each longer than three characters; frequency in
// the source text breaks ties.
func Themes(text string, limit int) []string {
	words := Words(text)

	counts := make(map[string]int)
	order := make([]string, 0)
	add := func(theme string) {
		if _, seen := counts[theme]; !seen {
			order = append(order, theme)
		}
		counts[theme]++
	}

	usable := func(w string) bool {
		return len(w) > 3 && !IsStopword(w)
	}

	for i := 0; i+1 < len(words); i++ {
		if usable(words[i]) && usable(words[i+1]) {
			add(words[i] + " " + words[i+1])
		}
		if i+2 < len(words) && usable(words[i]) && usable(words[i+1]) && usable(words[i+2]) {
			add(words[i] + " " + words[i+1] + " " + words[i+2])
		}
	}

	// Stable: insertion order, then prefer more frequent themes.
	themes := make([]string, len(order))
	copy(themes, order)
	for i := 1; i < len(themes); i++ {
		for j := i; j > 0 && counts[themes[j]] > counts[themes[j-1]]; j-- {
			themes[j], themes[j-1] = themes[j-1], themes[j]
		}
	}

	if limit > 0 && len(themes) > limit {
		themes = themes[:limit]
	}
	return themes
}

// Overlap scores how much the term vocabulary of a covers b, in [0,1].
// Returns 0.5 (neutral) when either side has no usable terms.
func Overlap(a, b string) float64 {
	as, bs := TermSet(a), TermSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0.5
	}
	common := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(as), len(bs)))
}

// Jaccard is intersection over union of the two term sets; 0 when both empty.
func Jaccard(a, b string) float64 {
	as, bs := TermSet(a), TermSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}
	common := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			common++
		}
	}
	union := len(as) + len(bs) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// ContainsQuestion reports whether text reads as asking something.
func ContainsQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, q := range []string{"what ", "why ", "how ", "when ", "where ", "who "} {
		if strings.HasPrefix(lower, q) {
			return true
		}
	}
	return false
}

// LastQuestion returns the final question sentence in text, or "".
func LastQuestion(text string) string {
	idx := strings.LastIndexByte(text, '?')
	if idx < 0 {
		return ""
	}
	start := strings.LastIndexAny(text[:idx], ".!?\n")
	return strings.TrimSpace(text[start+1 : idx+1])
}

// Truncate cuts text to at most n runes, appending an ellipsis when cut.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
