package config

import (
	"time"
)

// ModelConfig holds credentials and defaults for the text-generation and
// embedding backends.
type ModelConfig struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	EmbeddingModel     string `env:"DUET_EMBEDDING_MODEL"`
	EmbeddingDimension int    `env:"DUET_EMBEDDING_DIMENSION"`
	JudgeModel         string `env:"DUET_JUDGE_MODEL"`

	// GenerationTimeout bounds every call to a generation backend. A timed-out
	// prefetch degrades to a buffer miss, never a session failure.
	GenerationTimeout time.Duration `env:"DUET_GENERATION_TIMEOUT"`
}

func NewModelConfig() *ModelConfig {
	config := &ModelConfig{
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 1536,
		JudgeModel:         "gpt-4o-mini",
		GenerationTimeout:  90 * time.Second,
	}
	if err := resolveConfig(config); err != nil {
		return config
	}
	return config
}
