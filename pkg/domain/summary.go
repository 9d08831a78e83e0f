package domain

import "time"

// Stats is an aggregate view over all stored sessions.
type Stats struct {
	TotalSessions int           `json:"totalSessions"`
	ByState       map[State]int `json:"byState"`
	UniqueUsers   int           `json:"uniqueUsers"`
}

// Summary is a human-readable digest of a single session, derived purely
// from its stored context and metadata.
type Summary struct {
	SessionID    string        `json:"sessionId"`
	State        State         `json:"state"`
	Operations   []string      `json:"operations"`
	Models       []string      `json:"models"`
	AssetCount   int           `json:"assetCount"`
	Interactions int           `json:"interactions"`
	Elapsed      time.Duration `json:"elapsed"`
}
