package engine

import (
	"context"

	"github.com/duetlabs/duet/errors"
	goopenai "github.com/openai/openai-go"
)

// Embed returns one fixed-length vector per input text. Failures map to
// ErrBackendUnavailable; callers degrade to keyword retrieval instead of
// treating this as fatal.
func (e *Engine) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	if e.embedder == nil {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "embedding backend not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embedder.Embed(ctx, texts...)
}

type openaiEmbedder struct {
	client *goopenai.Client
	model  string
}

var _ Embedder = (*openaiEmbedder)(nil)

func (o *openaiEmbedder) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	params := goopenai.EmbeddingNewParams{
		Input:          goopenai.F[goopenai.EmbeddingNewParamsInputUnion](goopenai.EmbeddingNewParamsInputArrayOfStrings(texts)),
		Model:          goopenai.F(o.model),
		EncodingFormat: goopenai.F(goopenai.EmbeddingNewParamsEncodingFormatFloat),
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "embed: %v", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, emb := range resp.Data {
		vec := make([]float32, len(emb.Embedding))
		for j, v := range emb.Embedding {
			vec[j] = float32(v)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}
