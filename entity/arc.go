package entity

// ArcState is one host's independent narrative thread across turns.
type ArcState struct {
	HostID       string        `json:"hostId"`
	Theme        string        `json:"theme"`
	Energy       float64       `json:"energy"`
	LastQuestion string        `json:"lastQuestion,omitempty"`
	DriftScore   float64       `json:"driftScore"`
	History      []ArcSnapshot `json:"history,omitempty"`
}

// ArcSnapshot records theme and energy at one observed exchange.
type ArcSnapshot struct {
	Seq       uint64  `json:"seq"`
	Theme     string  `json:"theme"`
	Energy    float64 `json:"energy"`
	Alignment float64 `json:"alignment"`
}
