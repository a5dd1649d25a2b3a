package arc

import (
	"strings"

	"github.com/duetlabs/duet/internal/textutils"
)

// Classifier extracts the theme a piece of speech is actually about.
// The default is keyword-rule based; callers may plug a semantic one in.
type Classifier interface {
	Classify(text string) string
}

// KeywordClassifier picks the dominant bigram/trigram theme by token
// frequency, falling back to the first substantive term.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(text string) string {
	if themes := textutils.Themes(text, 1); len(themes) > 0 {
		return themes[0]
	}
	if terms := textutils.Terms(text); len(terms) > 0 {
		return terms[0]
	}
	return ""
}

var _ Classifier = KeywordClassifier{}

// agreementMarkers are the empty-calorie phrases that signal a host is
// coasting rather than contributing.
var agreementMarkers = []string{
	"absolutely",
	"exactly right",
	"i agree",
	"totally",
	"you're so right",
	"that's true",
	"good point",
	"for sure",
	"definitely",
}

// concreteMarkers signal specificity: named mechanisms, comparisons,
// evidence framing.
var concreteMarkers = []string{
	"for example",
	"for instance",
	"specifically",
	"in practice",
	"compared to",
	"the data",
	"according to",
	"percent",
	"because",
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(lower, m)
	}
	return n
}

func countDigitRuns(text string) int {
	n := 0
	inRun := false
	for _, r := range text {
		if r >= '0' && r <= '9' {
			if !inRun {
				n++
				inRun = true
			}
		} else {
			inRun = false
		}
	}
	return n
}
