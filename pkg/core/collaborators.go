package core

import "context"

// GeneratorContext carries everything a solution generator may consult when
// producing the next candidate. Generators must treat it as read-only.
type GeneratorContext struct {
	Task             string
	Objective        string
	Constraints      []string
	PriorSolutions   []Solution
	CurrentBest      *Solution
	Insights         []Insight
	FailedStrategies []FailedStrategy
	Temperature      float64
	Iteration        int
}

// ScorerContext mirrors GeneratorContext plus the full prior-trial history.
type ScorerContext struct {
	Task             string
	Objective        string
	Constraints      []string
	PriorTrials      []Trial
	Insights         []Insight
	FailedStrategies []FailedStrategy
}

// GenerateFunc produces a candidate solution. Supplied by the caller,
// typically backed by a language model. Must be safe to call repeatedly.
type GenerateFunc func(ctx context.Context, gc GeneratorContext) (Solution, error)

// ScoreFunc evaluates a candidate solution. Supplied by the caller. Given
// identical inputs it should score deterministically (or accept a seed) so
// that runs are reproducible.
type ScoreFunc func(ctx context.Context, solution Solution, sc ScorerContext) (SolutionScore, error)

// Callbacks are optional fire-and-forget notifications. The engine invokes
// them on a separate goroutine and never waits on them; implementations that
// block only delay their own delivery.
type Callbacks struct {
	OnTrialComplete    func(Trial)
	OnInsightGenerated func(Insight)
	OnProgressUpdate   func(Progress)
}
