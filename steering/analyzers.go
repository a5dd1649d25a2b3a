package steering

import (
	"context"
	"fmt"
	"strings"

	"github.com/duetlabs/duet/internal/textutils"
)

type ReportKind string

const (
	ReportFactFlag        ReportKind = "fact-flag"
	ReportTopicSaturation ReportKind = "topic-saturation"
	ReportLowEnergy       ReportKind = "low-energy"
	ReportMissingAngle    ReportKind = "missing-angle"
)

type (
	// Report is one analyzer finding. All variants flow through the same
	// tactical resolution path.
	Report struct {
		Kind   ReportKind
		Detail string
	}

	// Analyzer inspects the turn context and emits zero or more reports.
	Analyzer interface {
		Analyze(ctx context.Context, tc *TurnContext) []Report
	}

	AnalyzerFunc func(ctx context.Context, tc *TurnContext) []Report
)

func (f AnalyzerFunc) Analyze(ctx context.Context, tc *TurnContext) []Report {
	return f(ctx, tc)
}

func DefaultAnalyzers() []Analyzer {
	return []Analyzer{
		AnalyzerFunc(factFlags),
		AnalyzerFunc(saturationReading),
		AnalyzerFunc(pacing),
		AnalyzerFunc(missingAngle),
	}
}

// confidentMarkers wrap a claim in certainty. A sentence with one of these
// plus a number and no sourcing gets flagged for a challenge.
var confidentMarkers = []string{
	"always", "never", "everyone knows", "obviously", "definitely",
	"proven", "the only", "every single", "no one",
}

var sourcingMarkers = []string{
	"according to", "reportedly", "the study", "i think", "i believe",
	"maybe", "probably", "i read",
}

func factFlags(_ context.Context, tc *TurnContext) []Report {
	lower := strings.ToLower(tc.LastText)
	for _, s := range sourcingMarkers {
		if strings.Contains(lower, s) {
			return nil
		}
	}
	for _, m := range confidentMarkers {
		idx := strings.Index(lower, m)
		if idx < 0 {
			continue
		}
		claim := sentenceAround(tc.LastText, idx)
		return []Report{{
			Kind:   ReportFactFlag,
			Detail: textutils.Truncate(claim, 140),
		}}
	}
	return nil
}

func saturationReading(_ context.Context, tc *TurnContext) []Report {
	if tc.Point.Saturation <= 0.6 {
		return nil
	}
	return []Report{{
		Kind:   ReportTopicSaturation,
		Detail: fmt.Sprintf("saturation %.2f, ground already covered", tc.Point.Saturation),
	}}
}

func pacing(_ context.Context, tc *TurnContext) []Report {
	if tc.Arc.Energy >= 0.35 {
		return nil
	}
	return []Report{{
		Kind:   ReportLowEnergy,
		Detail: fmt.Sprintf("energy %.2f, exchange going flat", tc.Arc.Energy),
	}}
}

// missingAngle fires when the conversation is tunneling on a single corner
// of the point: the last exchange touches at most one facet while others sit
// unexplored. The oldest untouched facet is suggested.
func missingAngle(_ context.Context, tc *TurnContext) []Report {
	if tc.LastText == "" || len(tc.Point.Facets) < 3 {
		return nil
	}
	spoken := textutils.TermSet(tc.LastText)
	touched := 0
	var untouched string
	for _, facet := range tc.Point.Facets {
		hit := false
		for term := range textutils.TermSet(facet) {
			if _, ok := spoken[term]; ok {
				hit = true
				break
			}
		}
		if hit {
			touched++
		} else if untouched == "" {
			untouched = facet
		}
	}
	if touched > 1 || untouched == "" {
		return nil
	}
	return []Report{{Kind: ReportMissingAngle, Detail: untouched}}
}

func sentenceAround(text string, idx int) string {
	start := strings.LastIndexAny(text[:idx], ".!?\n") + 1
	end := strings.IndexAny(text[idx:], ".!?\n")
	if end < 0 {
		end = len(text)
	} else {
		end += idx + 1
	}
	return strings.TrimSpace(text[start:end])
}
