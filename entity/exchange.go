package entity

import (
	"time"
)

// Exchange is one recorded conversational turn. It is immutable once created
// and owned by the speaking host's memory service.
type Exchange struct {
	ID        string    `json:"id"`
	SpeakerID string    `json:"speakerId"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Research  string    `json:"research,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	Embedding []float32 `json:"-"`
}

// ResearchMeta is the typed view of the research metadata attached to a
// persisted exchange record.
type ResearchMeta struct {
	Query    string   `mapstructure:"query" json:"query"`
	Sources  []string `mapstructure:"sources" json:"sources"`
	Findings int      `mapstructure:"findings" json:"findings"`
}
