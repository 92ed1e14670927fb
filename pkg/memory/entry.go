package memory

import (
	"time"
)

// EntryType classifies a working-memory entry.
type EntryType string

const (
	EntryFailedStrategy EntryType = "failed_strategy"
	EntrySuccessPattern EntryType = "success_pattern"
	EntryInsight        EntryType = "insight"
	EntryContext        EntryType = "context"
)

// Entry is one persisted unit of knowledge. HitCount and LastAccessed are
// updated on every successful recall; both only move forward.
type Entry struct {
	ID           string                 `json:"id"`
	Type         EntryType              `json:"type"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	TaskPattern  string                 `json:"task_pattern"`
	Confidence   float64                `json:"confidence"`
	HitCount     int                    `json:"hit_count"`
	LastAccessed time.Time              `json:"last_accessed"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Match pairs an entry with its similarity to a recall query.
type Match struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// Recalled is the combined result of a four-way recall fan-out.
type Recalled struct {
	FailedStrategies []Match `json:"failed_strategies"`
	SuccessPatterns  []Match `json:"success_patterns"`
	Insights         []Match `json:"insights"`
	Context          []Match `json:"context"`
}
