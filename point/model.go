package point

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/textutils"
	"github.com/samber/lo"
)

const (
	maxFacets    = 5
	minFacetLen  = 5
	themesPerMsg = 4
)

// Embedder is satisfied by engine.Engine.
type Embedder interface {
	Embed(ctx context.Context, texts ...string) ([][]float32, error)
}

// Model is the conversation's attractor. It tracks what the dialogue is
// actually about (as opposed to what it was told to be about) and exposes
// how far a candidate theme drifts from that center.
type Model struct {
	mu       sync.Mutex
	logger   *slog.Logger
	config   *config.SessionConfig
	embedder Embedder
	state    entity.PointState
}

func NewModel(logger *slog.Logger, cfg *config.SessionConfig, embedder Embedder, essence string) *Model {
	return &Model{
		logger:   logger,
		config:   cfg,
		embedder: embedder,
		state: entity.PointState{
			Essence:  essence,
			Facets:   seedFacets(essence),
			Strength: 1,
		},
	}
}

// Restore replaces the model's state with a persisted one.
func (m *Model) Restore(state entity.PointState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(state.Facets) == 0 {
		state.Facets = seedFacets(state.Essence)
	}
	m.state = state
}

func (m *Model) State() entity.PointState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Facets = append([]string(nil), m.state.Facets...)
	s.History = append([]entity.PointShift(nil), m.state.History...)
	return s
}

// UpdateFromExchange folds one exchange into the point. New facets are
// merged (oldest evicted past the cap), strength tracks how coherent the
// message is with the existing facets, and saturation grows only on turns
// that bring nothing new.
func (m *Model) UpdateFromExchange(ex *entity.Exchange) {
	themes := textutils.Themes(ex.Text, themesPerMsg)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Coherence is judged against the point as it stood before this
	// exchange, otherwise every message would cohere with itself.
	coherence := m.coherence(themes)

	var newFacet bool
	covered := 0
	for _, theme := range themes {
		if len(theme) <= minFacetLen {
			continue
		}
		if m.hasFacet(theme) {
			covered++
			continue
		}
		m.state.Facets = append(m.state.Facets, theme)
		newFacet = true
	}
	if n := len(m.state.Facets); n > maxFacets {
		m.state.Facets = m.state.Facets[n-maxFacets:]
	}

	m.state.Strength = 0.7*m.state.Strength + 0.3*coherence

	if !newFacet {
		coverage := 0.0
		if len(themes) > 0 {
			coverage = float64(covered) / float64(len(themes))
		}
		m.state.Saturation = math.Min(1, m.state.Saturation+0.1+0.25*coverage)
	}

	m.logger.Debug("point updated",
		"seq", ex.Seq,
		"strength", m.state.Strength,
		"saturation", m.state.Saturation,
		"facets", len(m.state.Facets))
}

// CalculateDistance reports how far a theme sits from the point, in [0,1].
// Embedding cosine when the embedder answers, term overlap otherwise, 0.5
// when the point has nothing usable to compare against.
func (m *Model) CalculateDistance(ctx context.Context, theme string) float64 {
	m.mu.Lock()
	center := strings.TrimSpace(m.state.Essence + " " + strings.Join(m.state.Facets, " "))
	m.mu.Unlock()

	if len(textutils.Terms(center)) == 0 || len(textutils.Terms(theme)) == 0 {
		return 0.5
	}

	if m.embedder != nil {
		if vecs, err := m.embedder.Embed(ctx, theme, center); err == nil && len(vecs) == 2 {
			if d, ok := cosineDistance(vecs[0], vecs[1]); ok {
				return d
			}
		} else if err != nil {
			m.logger.Debug("distance falling back to term overlap", "error", err)
		}
	}

	return 1 - textutils.Overlap(theme, center)
}

// ShouldShift reports whether the point has exhausted itself: either the
// hosts keep circling covered ground, or the conversation stopped cohering
// around it at all.
func (m *Model) ShouldShift() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Saturation > m.config.SaturationThreshold ||
		m.state.Strength < m.config.StrengthFloor
}

// Shift replaces the essence and starts the new point clean. This is the
// only path that lowers saturation.
func (m *Model) Shift(newEssence, reason string, atSeq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.History = append(m.state.History, entity.PointShift{
		FromEssence: m.state.Essence,
		ToEssence:   newEssence,
		Reason:      reason,
		AtSeq:       atSeq,
	})
	m.logger.Info("point shifted",
		"from", m.state.Essence, "to", newEssence, "reason", reason, "seq", atSeq)

	m.state.Essence = newEssence
	m.state.Facets = seedFacets(newEssence)
	m.state.Strength = 1
	m.state.Saturation = 0
	m.state.EmergedAt = atSeq
}

// DominantFacet returns the longest-lived facet, used as a shift essence
// when no better candidate is available.
func (m *Model) DominantFacet() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.state.Facets) == 0 {
		return m.state.Essence
	}
	return m.state.Facets[0]
}

func (m *Model) hasFacet(theme string) bool {
	terms := textutils.TermSet(theme)
	for _, f := range m.state.Facets {
		if strings.EqualFold(f, theme) {
			return true
		}
		for t := range textutils.TermSet(f) {
			if _, ok := terms[t]; ok {
				return true
			}
		}
	}
	return false
}

// coherence is the fraction of message themes that connect to any facet.
func (m *Model) coherence(themes []string) float64 {
	if len(themes) == 0 {
		return 0.5
	}
	connected := lo.CountBy(themes, m.hasFacet)
	return float64(connected) / float64(len(themes))
}

func seedFacets(essence string) []string {
	themes := textutils.Themes(essence, maxFacets)
	facets := lo.Filter(themes, func(t string, _ int) bool {
		return len(t) > minFacetLen
	})
	if len(facets) == 0 && strings.TrimSpace(essence) != "" {
		facets = []string{strings.TrimSpace(essence)}
	}
	return facets
}

func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	d := (1 - sim) / 2
	return math.Max(0, math.Min(1, d)), true
}
