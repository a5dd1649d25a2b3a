package engine

import (
	"strings"
	"text/template"

	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/duetlabs/duet/internal/sliceutils"
	"github.com/samber/lo"
)

type (
	// RetrievedMemory is one semantically relevant prior exchange offered to
	// the prompt, with its similarity score.
	RetrievedMemory struct {
		Speaker string
		Text    string
		Score   float64
	}

	// PromptValues carries everything a host turn prompt needs.
	PromptValues struct {
		Host          entity.Host
		OtherHostName string
		Essence       string
		Directive     entity.Directive
		LastMessage   string
		RecentFlow    []string
		Memories      []RetrievedMemory
		Research      string
	}
)

const turnPromptTmpl = `You are {{.Host.Name}}, co-host of a long-form conversation.
{{.Host.Persona}}
{{- if .Host.Style}}
Speaking style: {{.Host.Style}}
{{- end}}

The conversation is about: {{.Essence}}
{{- if .Directive.Instruction}}

PRODUCER NOTE ({{.Directive.Command}}): {{.Directive.Instruction}}
{{- end}}
{{- if .Memories}}

Earlier in the conversation you touched on:
{{- range .Memories}}
- {{.Speaker}}: {{trunc .Text 160}}
{{- end}}
{{- end}}
{{- if .Research}}

Fresh research brief:
{{.Research}}
{{- end}}
{{- if .RecentFlow}}

Most recent exchanges:
{{- range .RecentFlow}}
{{.}}
{{- end}}
{{- end}}
{{- if .LastMessage}}

{{.OtherHostName}} just said: {{.LastMessage}}
{{- end}}

Respond in your own voice, two to four sentences, conversational, no stage directions.`

var turnPromptTemplate = template.Must(template.New("turn_prompt").Funcs(promptFuncs()).Parse(turnPromptTmpl))

func promptFuncs() template.FuncMap {
	return template.FuncMap{
		"trunc": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			return s[:n] + "..."
		},
		"join": strings.Join,
	}
}

// BuildTurnPrompt renders the prompt for one host turn. Recent flow and
// retrieved memories are both capped to keep the prompt bounded.
func BuildTurnPrompt(values PromptValues) (string, error) {
	values.RecentFlow = sliceutils.Cut(values.RecentFlow, -8, len(values.RecentFlow))
	if len(values.Memories) > 3 {
		values.Memories = values.Memories[:3]
	}
	// Drop memory lines that merely repeat the most recent flow.
	values.Memories = lo.Filter(values.Memories, func(m RetrievedMemory, _ int) bool {
		return !lo.Contains(values.RecentFlow, m.Speaker+": "+m.Text)
	})

	var sb strings.Builder
	if err := turnPromptTemplate.Execute(&sb, values); err != nil {
		return "", errors.Wrapf(err, "failed to execute turn prompt template")
	}
	return sb.String(), nil
}

// SystemPrompt is the stable per-host system message.
func SystemPrompt(host entity.Host) string {
	var sb strings.Builder
	sb.WriteString("You are ")
	sb.WriteString(host.Name)
	sb.WriteString(". Stay in character. Keep responses spoken-word natural: no lists, no markdown, no meta commentary.")
	return sb.String()
}
