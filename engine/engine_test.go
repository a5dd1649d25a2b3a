package engine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/engine"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	text  string
	err   error
	delay time.Duration
	last  *engine.GenerateRequest
}

func (p *stubProvider) Generate(ctx context.Context, req *engine.GenerateRequest) (string, error) {
	p.last = req
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.text, p.err
}

func newEngine(t *testing.T, timeout time.Duration) (*engine.Engine, *stubProvider) {
	t.Helper()
	e, err := engine.NewEngine(slog.New(slog.DiscardHandler), &config.ModelConfig{
		OpenAIAPIKey:      "sk-test",
		JudgeModel:        "gpt-4o-mini",
		GenerationTimeout: timeout,
	})
	require.NoError(t, err)
	p := &stubProvider{text: "a generated line"}
	e.RegisterProvider("openai", p)
	return e, p
}

func TestNewEngineRequiresABackend(t *testing.T) {
	_, err := engine.NewEngine(slog.New(slog.DiscardHandler), &config.ModelConfig{})
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestGenerateDispatchesToProvider(t *testing.T) {
	e, p := newEngine(t, time.Second)

	text, err := e.Generate(context.Background(), &engine.GenerateRequest{
		Provider: "openai",
		Model:    "gpt-4o",
		Prompt:   "say something",
	})
	require.NoError(t, err)
	require.Equal(t, "a generated line", text)
	require.Equal(t, "gpt-4o", p.last.Model)
}

func TestGenerateUnknownProvider(t *testing.T) {
	e, _ := newEngine(t, time.Second)

	_, err := e.Generate(context.Background(), &engine.GenerateRequest{
		Provider: "nonexistent",
		Prompt:   "hello",
	})
	require.Error(t, err)
}

func TestGenerateDeadlineMapsToTimeout(t *testing.T) {
	e, p := newEngine(t, 10*time.Millisecond)
	p.delay = time.Second

	_, err := e.Generate(context.Background(), &engine.GenerateRequest{
		Provider: "openai",
		Prompt:   "slow",
	})
	require.ErrorIs(t, err, errors.ErrGenerationTimeout)
}

func TestGenerateEmptyCompletionIsAnError(t *testing.T) {
	e, p := newEngine(t, time.Second)
	p.text = "   "

	_, err := e.Generate(context.Background(), &engine.GenerateRequest{
		Provider: "openai",
		Prompt:   "hello",
	})
	require.ErrorIs(t, err, errors.ErrBackendUnavailable)
}

func TestJudgeShiftParsesStructuredAnswer(t *testing.T) {
	e, p := newEngine(t, time.Second)
	p.text = `{"shouldShift": true, "newEssence": "rural wireless", "reason": "covered ground"}`

	judgment, err := e.JudgeShift(context.Background(), entity.PointState{
		Essence: "municipal fiber",
		Facets:  []string{"municipal fiber", "buildout costs"},
	}, []string{"Alex: the costs keep falling"})
	require.NoError(t, err)
	require.True(t, judgment.ShouldShift)
	require.Equal(t, "rural wireless", judgment.NewEssence)
	require.True(t, p.last.JSONOutput)
}

type stubEmbedder struct {
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestRegisteredEmbedderHandlesEmbedCalls(t *testing.T) {
	e, _ := newEngine(t, time.Second)
	emb := &stubEmbedder{}
	e.RegisterEmbedder(emb)

	vecs, err := e.Embed(context.Background(), "one", "two")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{1, 0, 0}, vecs[0])
	require.Equal(t, 1, emb.calls)
}

func TestEmbedWithoutBackend(t *testing.T) {
	e, _ := newEngine(t, time.Second)
	e.RegisterEmbedder(nil)

	_, err := e.Embed(context.Background(), "text")
	require.ErrorIs(t, err, errors.ErrBackendUnavailable)
}

func TestJudgeShiftMalformedJSON(t *testing.T) {
	e, p := newEngine(t, time.Second)
	p.text = "definitely shift it"

	_, err := e.JudgeShift(context.Background(), entity.PointState{Essence: "x"}, nil)
	require.Error(t, err)
}
