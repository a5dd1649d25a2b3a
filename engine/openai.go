package engine

import (
	"context"

	"github.com/pkg/errors"

	goopenai "github.com/openai/openai-go"
)

type openaiProvider struct {
	client *goopenai.Client
}

var _ Provider = (*openaiProvider)(nil)

func (p *openaiProvider) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	params := goopenai.ChatCompletionNewParams{
		Model: goopenai.F(req.Model),
		Messages: goopenai.F([]goopenai.ChatCompletionMessageParamUnion{
			goopenai.SystemMessage(req.System),
			goopenai.UserMessage(req.Prompt),
		}),
	}
	if req.Temperature > 0 {
		params.Temperature = goopenai.F(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = goopenai.F(int64(req.MaxTokens))
	}
	if req.JSONOutput {
		params.ResponseFormat = goopenai.F[goopenai.ChatCompletionNewParamsResponseFormatUnion](
			goopenai.ChatCompletionNewParamsResponseFormat{
				Type: goopenai.F(goopenai.ChatCompletionNewParamsResponseFormatTypeJSONObject),
			},
		)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
