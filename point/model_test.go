package point_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/point"
	"github.com/stretchr/testify/require"
)

func newModel(t *testing.T, essence string) *point.Model {
	t.Helper()
	cfg := config.NewSessionConfig()
	return point.NewModel(slog.New(slog.DiscardHandler), cfg, nil, essence)
}

func exchange(seq uint64, text string) *entity.Exchange {
	return &entity.Exchange{Seq: seq, SpeakerID: "alex", Text: text}
}

func TestSaturationNeverDecreasesOutsideShift(t *testing.T) {
	m := newModel(t, "community broadband networks")

	texts := []string{
		"Community broadband networks keep growing because municipal fiber is cheap to run.",
		"Municipal fiber and community broadband networks again, the same community broadband story.",
		"Still community broadband networks, still municipal fiber, nothing new to add here.",
		"Honestly community broadband networks and municipal fiber one more time.",
		"Community broadband networks, municipal fiber, covered ground entirely.",
	}

	prev := m.State().Saturation
	for i, text := range texts {
		m.UpdateFromExchange(exchange(uint64(i+1), text))
		cur := m.State().Saturation
		require.GreaterOrEqual(t, cur, prev, "turn %d lowered saturation", i+1)
		require.LessOrEqual(t, cur, 1.0)
		prev = cur
	}
}

func TestThreeCoveredExchangesCrossSaturationThreshold(t *testing.T) {
	m := newModel(t, "electric grid storage")

	// First exchange establishes the facets.
	m.UpdateFromExchange(exchange(1, "Electric grid storage is the bottleneck, grid storage capacity decides everything."))

	repeat := "Grid storage again, electric grid storage capacity, the grid storage question."
	for seq := uint64(2); seq <= 4; seq++ {
		m.UpdateFromExchange(exchange(seq, repeat))
	}

	require.Greater(t, m.State().Saturation, 0.8)
	require.True(t, m.ShouldShift())
}

func TestNewFacetFreezesSaturation(t *testing.T) {
	m := newModel(t, "ocean shipping emissions")

	m.UpdateFromExchange(exchange(1, "Ocean shipping emissions are dominated by bunker fuel economics."))
	before := m.State().Saturation

	m.UpdateFromExchange(exchange(2, "Ammonia propulsion retrofits change the bunker fuel economics completely."))
	require.Equal(t, before, m.State().Saturation)
}

func TestShiftResetsState(t *testing.T) {
	m := newModel(t, "remote work culture")

	repeat := "Remote work culture and remote work culture, office attendance mandates again."
	for seq := uint64(1); seq <= 5; seq++ {
		m.UpdateFromExchange(exchange(seq, repeat))
	}
	require.True(t, m.ShouldShift())

	m.Shift("four day work weeks", "saturation exhausted", 6)

	state := m.State()
	require.Equal(t, "four day work weeks", state.Essence)
	require.Zero(t, state.Saturation)
	require.Equal(t, 1.0, state.Strength)
	require.EqualValues(t, 6, state.EmergedAt)
	require.NotEmpty(t, state.Facets)
	require.Len(t, state.History, 1)
	require.Equal(t, "remote work culture", state.History[0].FromEssence)
	require.False(t, m.ShouldShift())
}

func TestFacetCapEvictsOldest(t *testing.T) {
	m := newModel(t, "urban planning")

	texts := []string{
		"Zoning reform unlocks missing middle housing in most cities.",
		"Parking minimums quietly decide what gets built downtown.",
		"Transit corridors concentrate growth along predictable lines.",
		"Land value capture funds the infrastructure nobody budgets for.",
		"Street grids from the 1920s outperform cul-de-sac suburbs.",
	}
	for i, text := range texts {
		m.UpdateFromExchange(exchange(uint64(i+1), text))
	}

	require.LessOrEqual(t, len(m.State().Facets), 5)
}

func TestLowStrengthTriggersShift(t *testing.T) {
	m := newModel(t, "semiconductor supply chains")

	// A run of mutually unrelated tangents erodes strength toward the floor.
	tangents := []string{
		"My sourdough starter doubled overnight, crumb structure looking great.",
		"Caught three rainbow trout before sunrise using barbless hooks.",
		"Vintage synthesizer prices collapsed after the reissue announcement.",
		"Marathon taper weeks always wreck my sleep schedule completely.",
		"Restored a cast iron skillet somebody left rusting in the garden.",
		"Learned the accordion part from that old zydeco record finally.",
	}
	for i, text := range tangents {
		m.UpdateFromExchange(exchange(uint64(i+1), text))
	}

	require.Less(t, m.State().Strength, 0.3)
	require.True(t, m.ShouldShift())
}

func TestDistanceWithoutTermsIsNeutral(t *testing.T) {
	m := newModel(t, "")
	require.Equal(t, 0.5, m.CalculateDistance(context.Background(), "anything at all"))

	m2 := newModel(t, "deep sea mining")
	require.Equal(t, 0.5, m2.CalculateDistance(context.Background(), "a an it"))
}

func TestDistanceFallsBackToTermOverlap(t *testing.T) {
	m := newModel(t, "nuclear power economics")

	near := m.CalculateDistance(context.Background(), "nuclear power plant economics")
	far := m.CalculateDistance(context.Background(), "celebrity gossip roundup")

	require.Less(t, near, far)
	require.GreaterOrEqual(t, near, 0.0)
	require.LessOrEqual(t, far, 1.0)
}
