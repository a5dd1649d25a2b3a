package engine

import (
	"context"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/errors"
	goopenai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type (
	// Provider generates one completion for a prompt. Implementations wrap a
	// single external text-generation backend.
	Provider interface {
		Generate(ctx context.Context, req *GenerateRequest) (string, error)
	}

	// Embedder produces one fixed-length vector per input text.
	Embedder interface {
		Embed(ctx context.Context, texts ...string) ([][]float32, error)
	}

	// Engine fronts all external model backends: generation by provider,
	// embeddings, and the advisory shift judge.
	Engine struct {
		logger    *slog.Logger
		config    *config.ModelConfig
		providers map[string]Provider
		embedder  Embedder
		openai    *goopenai.Client
	}

	GenerateRequest struct {
		Provider    string
		Model       string
		System      string
		Prompt      string
		Temperature float64
		MaxTokens   int
		JSONOutput  bool
	}
)

func NewEngine(logger *slog.Logger, conf *config.ModelConfig) (*Engine, error) {
	if conf == nil {
		return nil, errors.ErrInvalidConfig
	}

	e := &Engine{
		logger:    logger,
		config:    conf,
		providers: make(map[string]Provider),
	}

	if conf.OpenAIAPIKey != "" {
		e.openai = goopenai.NewClient(option.WithAPIKey(conf.OpenAIAPIKey))
		e.providers["openai"] = &openaiProvider{client: e.openai}
		e.embedder = &openaiEmbedder{client: e.openai, model: conf.EmbeddingModel}
	}
	if conf.AnthropicAPIKey != "" {
		client := anthropic.NewClient(anthropicoption.WithAPIKey(conf.AnthropicAPIKey))
		e.providers["anthropic"] = &anthropicProvider{client: &client}
	}

	if len(e.providers) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "no generation backend configured")
	}

	return e, nil
}

// OpenAIClient exposes the underlying openai client for collaborators that
// need non-chat endpoints (speech synthesis). Nil without an OpenAI key.
func (e *Engine) OpenAIClient() *goopenai.Client {
	return e.openai
}

// RegisterProvider installs or replaces a named provider. Tests use it to
// plug deterministic backends.
func (e *Engine) RegisterProvider(name string, p Provider) {
	e.providers[name] = p
}

// RegisterEmbedder replaces the embedding backend. Tests use it to plug
// deterministic vectors.
func (e *Engine) RegisterEmbedder(emb Embedder) {
	e.embedder = emb
}

func (e *Engine) provider(name string) (Provider, error) {
	p, ok := e.providers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "unknown provider %q", name)
	}
	return p, nil
}
