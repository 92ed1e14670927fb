// Package ale is a Go implementation of an agentic learning engine: a
// multi-trial solution-optimization controller that repeatedly generates
// candidate solutions to a task, scores them with both immediate and
// projected-future value, reflects on each attempt to extract reusable
// learnings, and avoids previously failed approaches across iterations.
//
// The engine never calls a model itself; solution generation and scoring
// are injected functions, typically backed by a language model. It owns
// only trial orchestration, exploration-strategy state, scoring
// aggregation, insight extraction, and memory indexing.
//
// Key Components:
//
//   - Engine (pkg/engine): owns sessions; for each session runs the trial
//     loop (generate, score, record, reflect, check termination) and
//     supports pause/resume/stop, concurrent sessions and cleanup.
//
//   - Explorer (pkg/explorer): pluggable local-search strategies driving
//     one candidate per call:
//     - Greedy: zero-temperature hill climbing
//     - Annealing: Boltzmann acceptance with geometric cooling and reheating
//     - Hybrid: greedy warmup, annealing, reconstruction and refinement
//     - Beam: bounded-width parallel beam expansion
//     - Evolutionary: tournament selection over a bounded population
//
//   - Virtual Power Scorer (pkg/scoring): six-factor future-value estimate
//     with conservative online weight adaptation.
//
//   - Insights Generator (pkg/insights): outcome classification, delta
//     analysis, strategy commentary and cross-trial pattern detection
//     (oscillation, plateau, breakthrough).
//
//   - Working Memory (pkg/memory): similarity-indexed store of failed
//     strategies, success patterns and insights with retention/eviction
//     policy, optional SQLite persistence and an optional external HTTP
//     recall service.
//
// Optional adapters under pkg/generators wire the Anthropic API in as the
// generate/score collaborators; pkg/export writes trial history to Parquet
// for offline analysis.
package ale
