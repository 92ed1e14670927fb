package core

import (
	"time"
)

// Solution is a candidate artifact produced by one exploration step. It is
// owned by the trial that produced it and must not be mutated once scored.
type Solution struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Code      string                 `json:"code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Iteration int                    `json:"iteration"`
	ParentID  string                 `json:"parent_id,omitempty"`
}

// Recognized Solution metadata keys. Strategies write these so that every
// accept/reject decision can be reconstructed from the trial record alone.
const (
	MetaStrategy       = "explorationStrategy"
	MetaTemperature    = "temperature"
	MetaAccepted       = "accepted"
	MetaAcceptanceProb = "acceptanceProbability"
	MetaHybridPhase    = "hybridPhase"
	MetaBeamPosition   = "beamPosition"
	MetaGeneration     = "generation"
	MetaParentID       = "parentID"
	MetaReconstruction = "reconstruction"
)

// ScoreBreakdown is the four-way component decomposition of a score.
type ScoreBreakdown struct {
	Correctness     float64 `json:"correctness"`
	Efficiency      float64 `json:"efficiency"`
	Maintainability float64 `json:"maintainability"`
	Potential       float64 `json:"potential"`
}

// SolutionScore evaluates exactly one Solution, identified by SolutionID.
// Total is the blend (1-w)*Immediate + w*VirtualPower where w is the
// session's configured virtual-power weight.
type SolutionScore struct {
	SolutionID   string         `json:"solution_id,omitempty"`
	Immediate    float64        `json:"immediate"`
	VirtualPower float64        `json:"virtual_power"`
	Total        float64        `json:"total"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

// Trial is one evaluated attempt within a session. Immutable once recorded.
type Trial struct {
	ID        string        `json:"id"`
	Iteration int           `json:"iteration"`
	Solution  Solution      `json:"solution"`
	Score     SolutionScore `json:"score"`
	Duration  time.Duration `json:"duration"`
	ToolsUsed []string      `json:"tools_used,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}

// InsightType tags the kind of reflection an Insight captures.
type InsightType string

const (
	InsightSuccess     InsightType = "success"
	InsightFailure     InsightType = "failure"
	InsightPattern     InsightType = "pattern"
	InsightObservation InsightType = "observation"
)

// Insight is a reflection extracted from one or more trials. Never mutated
// after creation.
type Insight struct {
	ID            string      `json:"id"`
	TrialID       string      `json:"trial_id"`
	Type          InsightType `json:"type"`
	Content       string      `json:"content"`
	Confidence    float64     `json:"confidence"`
	Applicability []string    `json:"applicability,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// FailedStrategy records an approach known not to work for a task pattern.
// HitCount is monotonically non-decreasing.
type FailedStrategy struct {
	Strategy    string    `json:"strategy"`
	Reason      string    `json:"reason"`
	TaskPattern string    `json:"task_pattern"`
	Avoidance   string    `json:"avoidance"`
	CreatedAt   time.Time `json:"created_at"`
	HitCount    int       `json:"hit_count"`
}

// Strategy selects the exploration algorithm driving candidate generation.
type Strategy string

const (
	StrategyGreedy       Strategy = "greedy"
	StrategyAnnealing    Strategy = "annealing"
	StrategyHybrid       Strategy = "hybrid"
	StrategyBeam         Strategy = "beam"
	StrategyEvolutionary Strategy = "evolutionary"
)

// SessionStatus enumerates the session state machine.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusStopped   SessionStatus = "stopped"
)

// StopReason explains why a completed session's loop exited. A collaborator
// failure sets status=failed with Error instead of one of these.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopMaxTrials     StopReason = "max_trials"
	StopTimeout       StopReason = "timeout"
	StopConverged     StopReason = "converged"
	StopRequested     StopReason = "stopped"
)

// Progress summarizes a session mid-flight for callbacks and inspection.
type Progress struct {
	SessionID       string        `json:"session_id"`
	Iteration       int           `json:"iteration"`
	TrialsRun       int           `json:"trials_run"`
	BestScore       float64       `json:"best_score"`
	Elapsed         time.Duration `json:"elapsed"`
	StuckCount      int           `json:"stuck_count"`
	InsightCount    int           `json:"insight_count"`
	CurrentStrategy string        `json:"current_strategy"`
}
