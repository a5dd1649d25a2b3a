package entity

// PointState is the evolving sense of what the conversation is about.
// Mutated only by the attractor model; one record per session.
type PointState struct {
	Essence    string   `json:"essence"`
	Facets     []string `json:"facets"`
	Strength   float64  `json:"strength"`
	Saturation float64  `json:"saturation"`
	EmergedAt  uint64   `json:"emergedAt"`

	History []PointShift `json:"history,omitempty"`
}

// PointShift is one audit record of an executed essence replacement.
type PointShift struct {
	FromEssence string `json:"fromEssence"`
	ToEssence   string `json:"toEssence"`
	Reason      string `json:"reason"`
	AtSeq       uint64 `json:"atSeq"`
}
