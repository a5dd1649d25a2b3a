package config

type SpeechConfig struct {
	Enabled bool   `env:"DUET_SPEECH_ENABLED"`
	Model   string `env:"DUET_SPEECH_MODEL"`
	OutDir  string `env:"DUET_SPEECH_OUT_DIR"`

	// PlayerCommand is invoked with the synthesized audio file as its last
	// argument; the turn loop waits for it to exit.
	PlayerCommand string `env:"DUET_SPEECH_PLAYER"`
}

func NewSpeechConfig() *SpeechConfig {
	config := &SpeechConfig{
		Enabled:       false,
		Model:         "tts-1",
		OutDir:        "data/audio",
		PlayerCommand: "ffplay -nodisp -autoexit -loglevel error",
	}
	if err := resolveConfig(config); err != nil {
		return config
	}
	return config
}
