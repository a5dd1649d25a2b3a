package duet_test

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/duetlabs/duet"
	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/engine"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/speech"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	n atomic.Int64
}

func (p *scriptedProvider) Generate(_ context.Context, req *engine.GenerateRequest) (string, error) {
	n := p.n.Add(1)
	if req.JSONOutput {
		return `{"shouldShift": false, "newEssence": "", "reason": "steady"}`, nil
	}
	return fmt.Sprintf(
		"Take %d: municipal broadband costs keep falling, and detail %d changes the picture. What do you make of point %d?",
		n, n, n), nil
}

// hashEmbedder maps text to a one-hot vector keyed by an FNV hash, so
// identical text always embeds identically and no network is involved.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		vec := make([]float32, testEmbeddingDim)
		vec[h.Sum32()%testEmbeddingDim] = 1
		out[i] = vec
	}
	return out, nil
}

const testEmbeddingDim = 16

func testHosts() (*entity.Host, *entity.Host) {
	return &entity.Host{ID: "alex", Name: "Alex", Persona: "A pragmatic infrastructure reporter.", Provider: "openai", Model: "gpt-4o"},
		&entity.Host{ID: "sam", Name: "Sam", Persona: "A skeptical economist.", Provider: "openai", Model: "gpt-4o"}
}

func newTestSession(t *testing.T, dataDir string, extra ...duet.Option) (*duet.Session, *scriptedProvider) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	modelConf := &config.ModelConfig{
		OpenAIAPIKey:       "sk-test",
		EmbeddingDimension: testEmbeddingDim,
		GenerationTimeout:  config.NewModelConfig().GenerationTimeout,
	}
	eng, err := engine.NewEngine(logger, modelConf)
	require.NoError(t, err)
	provider := &scriptedProvider{}
	eng.RegisterProvider("openai", provider)
	eng.RegisterEmbedder(hashEmbedder{})

	alex, sam := testHosts()
	opts := append([]duet.Option{
		duet.WithLogger(logger),
		duet.WithHosts(alex, sam),
		duet.WithEngine(eng),
		duet.WithModelConfig(modelConf),
		duet.WithDataDir(dataDir),
		duet.WithMemoryConfig(&config.MemoryConfig{
			SqliteEnabled:       false,
			SqlitePath:          dataDir + "/duet.db",
			RepetitionThreshold: 0.85,
			RepetitionWindow:    6,
		}),
		duet.WithSynthesizer(speech.NoopSynthesizer{}),
	}, extra...)

	s, err := duet.NewSession(context.Background(), "municipal broadband buildouts", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, provider
}

func TestNewSessionRequiresTopicAndHosts(t *testing.T) {
	_, err := duet.NewSession(context.Background(), "  ")
	require.Error(t, err)

	_, err = duet.NewSession(context.Background(), "something")
	require.Error(t, err)
}

func TestTurnsAlternateHosts(t *testing.T) {
	var speakers []string
	s, _ := newTestSession(t, t.TempDir(), duet.WithOutput(func(h *entity.Host, _ string) {
		speakers = append(speakers, h.ID)
	}))

	require.NoError(t, s.Run(context.Background(), 4))
	require.Equal(t, []string{"alex", "sam", "alex", "sam"}, speakers)
	require.Equal(t, 4, s.ExchangeCount())
}

func TestTurnUpdatesPointAndArcs(t *testing.T) {
	s, _ := newTestSession(t, t.TempDir())

	require.NoError(t, s.Run(context.Background(), 3))

	point := s.PointState()
	require.Equal(t, "municipal broadband buildouts", point.Essence)
	require.NotEmpty(t, point.Facets)

	arcs := s.ArcStates()
	require.Len(t, arcs, 2)
	require.NotEmpty(t, arcs[0].Theme)
	require.NotEmpty(t, arcs[0].History)
}

func TestPipelineMetricsAccountForEveryTurn(t *testing.T) {
	s, _ := newTestSession(t, t.TempDir())

	require.NoError(t, s.Run(context.Background(), 4))

	m := s.PipelineMetrics()
	require.EqualValues(t, 4, m.Hits+m.Misses)
}

func TestTranscriptHoldsRecentFlow(t *testing.T) {
	s, _ := newTestSession(t, t.TempDir())

	require.NoError(t, s.Run(context.Background(), 2))
	transcript := s.Transcript()
	require.Contains(t, transcript, "Alex: ")
	require.Contains(t, transcript, "Sam: ")
}

func TestSessionResumesFromDurableStore(t *testing.T) {
	dataDir := t.TempDir()
	durable := duet.WithMemoryConfig(&config.MemoryConfig{
		SqliteEnabled:       true,
		SqlitePath:          dataDir + "/duet.db",
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	})

	first, _ := newTestSession(t, dataDir, durable)
	require.NoError(t, first.Run(context.Background(), 2))
	require.NoError(t, first.Close())

	var speakers []string
	second, _ := newTestSession(t, dataDir, durable, duet.WithOutput(func(h *entity.Host, _ string) {
		speakers = append(speakers, h.ID)
	}))
	require.Equal(t, 2, second.ExchangeCount())

	transcript := second.Transcript()
	require.Contains(t, transcript, "Alex: ")
	require.Contains(t, transcript, "Sam: ")

	require.NoError(t, second.Run(context.Background(), 2))
	require.Equal(t, []string{"alex", "sam"}, speakers)
	require.Equal(t, 4, second.ExchangeCount())
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	s, _ := newTestSession(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Run(ctx, 10))
	require.Zero(t, s.ExchangeCount())
}
