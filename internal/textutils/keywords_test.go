package textutils_test

import (
	"testing"

	"github.com/duetlabs/duet/internal/textutils"
	"github.com/stretchr/testify/require"
)

func TestTermsDropsStopwordsAndShortTokens(t *testing.T) {
	terms := textutils.Terms("What is the cost of municipal fiber in a city?")
	require.Equal(t, []string{"cost", "municipal", "fiber", "city"}, terms)
}

func TestThemesPrefersRepeatedRuns(t *testing.T) {
	themes := textutils.Themes(
		"Grid storage is the bottleneck. Grid storage capacity decides whether renewables scale.", 3)
	require.NotEmpty(t, themes)
	require.Equal(t, "grid storage", themes[0])
}

func TestThemesRespectsLimit(t *testing.T) {
	themes := textutils.Themes("zoning reform unlocks missing middle housing downtown", 2)
	require.Len(t, themes, 2)
}

func TestThemesEmptyForStopwordText(t *testing.T) {
	require.Empty(t, textutils.Themes("it is what it is", 4))
}

func TestOverlapNeutralWhenNoTerms(t *testing.T) {
	require.Equal(t, 0.5, textutils.Overlap("it is", "municipal fiber"))
	require.Equal(t, 0.5, textutils.Overlap("municipal fiber", ""))
}

func TestOverlapBounds(t *testing.T) {
	require.Equal(t, 1.0, textutils.Overlap("municipal fiber", "municipal fiber"))
	require.Equal(t, 0.0, textutils.Overlap("municipal fiber", "sourdough starter"))
}

func TestJaccard(t *testing.T) {
	require.Equal(t, 1.0, textutils.Jaccard("fiber network", "network fiber"))
	require.Equal(t, 0.0, textutils.Jaccard("", ""))
	got := textutils.Jaccard("municipal fiber network", "municipal fiber outage")
	require.InDelta(t, 0.5, got, 0.001)
}

func TestContainsQuestion(t *testing.T) {
	require.True(t, textutils.ContainsQuestion("But who pays for it?"))
	require.True(t, textutils.ContainsQuestion("Why would that ever work"))
	require.False(t, textutils.ContainsQuestion("It simply works."))
}

func TestLastQuestion(t *testing.T) {
	text := "Costs are falling. But who pays for the upgrades? Nobody knows."
	require.Equal(t, "But who pays for the upgrades?", textutils.LastQuestion(text))
	require.Empty(t, textutils.LastQuestion("No questions here."))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", textutils.Truncate("short", 10))
	require.Equal(t, "ab…", textutils.Truncate("abcdef", 2))
}
