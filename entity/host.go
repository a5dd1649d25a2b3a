package entity

// Host describes one of the two dialogue participants. Hosts are loaded from
// YAML persona files by the CLI.
type Host struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Persona string `yaml:"persona" json:"persona"`
	Style   string `yaml:"style,omitempty" json:"style,omitempty"`

	// Provider selects the text-generation backend: "openai" or "anthropic".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// Voice names the synthesis voice used when narration is enabled.
	Voice string `yaml:"voice,omitempty" json:"voice,omitempty"`
}
