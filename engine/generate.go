package engine

import (
	"context"
	"strings"

	"github.com/duetlabs/duet/errors"
)

// Generate runs one completion against the request's provider under the
// configured timeout. A deadline maps to ErrGenerationTimeout so the pipeline
// can degrade to a buffer miss; transport failures map to
// ErrBackendUnavailable.
func (e *Engine) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("empty generate request")
	}

	p, err := e.provider(req.Provider)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.GenerationTimeout)
	defer cancel()

	text, err := p.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.Wrapf(errors.ErrGenerationTimeout, "provider %s: %v", req.Provider, err)
		}
		return "", errors.Wrapf(errors.ErrBackendUnavailable, "provider %s: %v", req.Provider, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Wrapf(errors.ErrBackendUnavailable, "provider %s returned empty completion", req.Provider)
	}
	return text, nil
}
