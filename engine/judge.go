package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/invopop/jsonschema"
)

type (
	// ShiftJudgment is the advisory answer to "should the point shift now".
	// It is a hint only: it can accelerate an algorithmically-justified shift
	// but never suppress one.
	ShiftJudgment struct {
		ShouldShift bool   `json:"shouldShift" jsonschema_description:"Whether the conversation's central point is exhausted and should be replaced"`
		NewEssence  string `json:"newEssence" jsonschema_description:"A short phrase naming the next central point, empty if shouldShift is false"`
		Reason      string `json:"reason" jsonschema_description:"One sentence explaining the judgment"`
	}
)

var shiftJudgmentSchema = func() string {
	reflector := jsonschema.Reflector{DoNotReference: true}
	raw, err := json.Marshal(reflector.Reflect(&ShiftJudgment{}))
	if err != nil {
		panic(err)
	}
	return string(raw)
}()

const judgeSystem = `You are the story editor of a long two-host dialogue. You judge whether the conversation's central point is exhausted. Respond with JSON only.`

// JudgeShift asks the generation backend whether the point should shift.
// Any failure degrades to (nil, error); callers treat that as "no shift".
func (e *Engine) JudgeShift(ctx context.Context, point entity.PointState, recent []string) (*ShiftJudgment, error) {
	var sb strings.Builder
	sb.WriteString("CURRENT POINT: ")
	sb.WriteString(point.Essence)
	sb.WriteString("\nFACETS: ")
	sb.WriteString(strings.Join(point.Facets, "; "))
	sb.WriteString("\nRECENT EXCHANGES:\n")
	for _, r := range recent {
		sb.WriteString("- ")
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	sb.WriteString("\nAnswer with JSON matching this schema:\n")
	sb.WriteString(shiftJudgmentSchema)

	text, err := e.Generate(ctx, &GenerateRequest{
		Provider:   "openai",
		Model:      e.config.JudgeModel,
		System:     judgeSystem,
		Prompt:     sb.String(),
		MaxTokens:  300,
		JSONOutput: true,
	})
	if err != nil {
		return nil, err
	}

	var judgment ShiftJudgment
	if err := json.Unmarshal([]byte(text), &judgment); err != nil {
		return nil, errors.Wrapf(err, "judge returned malformed JSON")
	}
	return &judgment, nil
}
