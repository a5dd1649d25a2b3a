package config

// SessionConfig carries the tunables of the steering core. The defaults come
// from long-running dialogue sessions; tests override them freely.
type SessionConfig struct {
	// Gravitational pull thresholds over point distance.
	StrongPullDistance float64 `env:"DUET_STRONG_PULL_DISTANCE"`
	GentlePullDistance float64 `env:"DUET_GENTLE_PULL_DISTANCE"`

	SaturationThreshold float64 `env:"DUET_SATURATION_THRESHOLD"`
	StrengthFloor       float64 `env:"DUET_STRENGTH_FLOOR"`

	// ShiftAssessEvery re-assesses a point shift every N exchanges,
	// decoupled from per-turn directive resolution.
	ShiftAssessEvery int `env:"DUET_SHIFT_ASSESS_EVERY"`

	// RetrieveK bounds semantic memory retrieval per turn.
	RetrieveK int `env:"DUET_RETRIEVE_K"`
}

func NewSessionConfig() *SessionConfig {
	config := &SessionConfig{
		StrongPullDistance:  0.85,
		GentlePullDistance:  0.7,
		SaturationThreshold: 0.8,
		StrengthFloor:       0.3,
		ShiftAssessEvery:    10,
		RetrieveK:           3,
	}
	if err := resolveConfig(config); err != nil {
		return config
	}
	return config
}
