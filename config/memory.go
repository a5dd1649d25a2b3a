package config

type MemoryConfig struct {
	SqliteEnabled bool   `env:"DUET_MEMORY_SQLITE_ENABLED"`
	SqlitePath    string `env:"DUET_MEMORY_SQLITE_PATH"`

	// RepetitionThreshold vetoes a candidate response whose similarity to any
	// of the last RepetitionWindow exchanges exceeds it.
	RepetitionThreshold float64 `env:"DUET_MEMORY_REPETITION_THRESHOLD"`
	RepetitionWindow    int     `env:"DUET_MEMORY_REPETITION_WINDOW"`
}

func NewMemoryConfig() *MemoryConfig {
	config := &MemoryConfig{
		SqliteEnabled:       true,
		SqlitePath:          "data/duet.db",
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	}
	if err := resolveConfig(config); err != nil {
		return config
	}
	return config
}
