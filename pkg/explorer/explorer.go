package explorer

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/errors"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
)

// Config contains tunables for the solution space explorer.
type Config struct {
	InitialTemperature float64 `json:"initial_temperature"` // Default: 1.0
	CoolingRate        float64 `json:"cooling_rate"`        // Default: 0.95
	MinTemperature     float64 `json:"min_temperature"`     // Default: 0.01
	ReheatingThreshold int     `json:"reheating_threshold"` // Default: 5
	ReheatingFactor    float64 `json:"reheating_factor"`    // Default: 1.5

	// Hybrid strategy
	GreedyWarmup       int     `json:"greedy_warmup"`       // Default: 3
	ReconstructionProb float64 `json:"reconstruction_prob"` // Default: 0.1
	RefinementProb     float64 `json:"refinement_prob"`     // Default: 0.15

	// Beam search
	BeamWidth int `json:"beam_width"` // Default: 3

	// Evolutionary search
	PopulationSize int     `json:"population_size"` // Default: 8
	TournamentSize int     `json:"tournament_size"` // Default: 3
	MutationRate   float64 `json:"mutation_rate"`   // Default: 0.3

	// Concurrency for beam successor evaluation
	MaxGoroutines int `json:"max_goroutines"` // Default: 4
}

// State tracks per-session exploration progress. Mutated once per Explore
// call; reset at session start or explicit Reset.
type State struct {
	Best              *core.Solution
	BestScore         *core.SolutionScore
	Temperature       float64
	AcceptedWorse     int
	RejectedWorse     int
	TotalExplorations int
	StuckCount        int
	LastImprovement   int
}

// Stats is a read-only snapshot reported by GetStats.
type Stats struct {
	TotalExplorations int     `json:"total_explorations"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	Temperature       float64 `json:"temperature"`
	StuckCount        int     `json:"stuck_count"`
	BestScore         float64 `json:"best_score"`
	BeamSize          int     `json:"beam_size"`
	PopulationSize    int     `json:"population_size"`
}

// candidate pairs a solution with its score inside beam and population sets.
type candidate struct {
	solution core.Solution
	score    core.SolutionScore
}

// Explorer drives one exploration step per call using injected generate and
// score functions. One Explorer per session; not safe for concurrent Explore
// calls, which matches the engine's strictly sequential iteration contract.
type Explorer struct {
	config Config
	state  State

	// current is the annealing walk position. It may sit below the running
	// best after an accepted-worse move.
	current *candidate

	beam       []candidate
	population []candidate

	rng    *rand.Rand
	logger *logging.Logger
	mu     sync.Mutex
}

// Option defines functional options for Explorer configuration.
type Option func(*Explorer)

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(e *Explorer) {
		e.config = cfg
	}
}

// WithTemperatureSchedule sets the annealing schedule parameters.
func WithTemperatureSchedule(initial, coolingRate, minimum float64) Option {
	return func(e *Explorer) {
		e.config.InitialTemperature = initial
		e.config.CoolingRate = coolingRate
		e.config.MinTemperature = minimum
	}
}

// WithBeamWidth sets the beam search width.
func WithBeamWidth(width int) Option {
	return func(e *Explorer) {
		e.config.BeamWidth = width
	}
}

// WithPopulationSize sets the evolutionary population bound.
func WithPopulationSize(size int) Option {
	return func(e *Explorer) {
		e.config.PopulationSize = size
	}
}

// WithSeed makes the explorer's stochastic decisions reproducible.
func WithSeed(seed int64) Option {
	return func(e *Explorer) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// DefaultConfig returns the explorer's baseline tunables.
func DefaultConfig() Config {
	return Config{
		InitialTemperature: 1.0,
		CoolingRate:        0.95,
		MinTemperature:     0.01,
		ReheatingThreshold: 5,
		ReheatingFactor:    1.5,
		GreedyWarmup:       3,
		ReconstructionProb: 0.1,
		RefinementProb:     0.15,
		BeamWidth:          3,
		PopulationSize:     8,
		TournamentSize:     3,
		MutationRate:       0.3,
		MaxGoroutines:      4,
	}
}

// New creates an Explorer with default configuration.
func New(opts ...Option) *Explorer {
	e := &Explorer{
		config: DefaultConfig(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Temperature = e.config.InitialTemperature
	return e
}

// Explore produces exactly one next solution using the given strategy. An
// unknown strategy tag falls back to greedy.
func (e *Explorer) Explore(ctx context.Context, strategy core.Strategy, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	if err := errors.CheckContext(ctx, "explore"); err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.TotalExplorations++

	switch strategy {
	case core.StrategyAnnealing:
		return e.annealingStep(ctx, gc, generate, score)
	case core.StrategyHybrid:
		return e.hybridStep(ctx, gc, generate, score)
	case core.StrategyBeam:
		return e.beamStep(ctx, gc, generate, score)
	case core.StrategyEvolutionary:
		return e.evolutionStep(ctx, gc, generate, score)
	case core.StrategyGreedy:
		return e.greedyStep(ctx, gc, generate, score)
	default:
		e.logger.Warn(ctx, "unknown exploration strategy %q, falling back to greedy", strategy)
		return e.greedyStep(ctx, gc, generate, score)
	}
}

// greedyStep generates at temperature zero against the current best and
// accepts only strict improvements.
func (e *Explorer) greedyStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	gc.Temperature = 0
	gc.CurrentBest = e.bestSolution()

	sol, sc, err := e.produce(ctx, gc, generate, score)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}

	accepted := e.state.Best == nil || sc.Total > e.state.BestScore.Total
	if accepted {
		e.adoptBest(sol, sc, gc.Iteration)
	} else {
		e.state.StuckCount++
	}

	annotate(&sol, map[string]interface{}{
		core.MetaStrategy:    string(core.StrategyGreedy),
		core.MetaTemperature: 0.0,
		core.MetaAccepted:    accepted,
	})
	return sol, sc, nil
}

// annealingStep performs one simulated annealing move with geometric cooling
// and reheating once the stuck streak reaches the configured threshold.
func (e *Explorer) annealingStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	gc.Temperature = e.state.Temperature
	gc.CurrentBest = e.walkSolution()

	sol, sc, err := e.produce(ctx, gc, generate, score)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}

	accepted := false
	acceptanceProb := 1.0

	if e.state.Best == nil || sc.Total > e.state.BestScore.Total {
		e.adoptBest(sol, sc, gc.Iteration)
		e.current = &candidate{solution: sol, score: sc}
		accepted = true
	} else {
		// Boltzmann acceptance against the running best; delta <= 0 here.
		delta := sc.Total - e.state.BestScore.Total
		acceptanceProb = math.Exp(delta / math.Max(e.state.Temperature, 1e-9))
		if e.rng.Float64() < acceptanceProb {
			e.state.AcceptedWorse++
			e.current = &candidate{solution: sol, score: sc}
			accepted = true
		} else {
			e.state.RejectedWorse++
		}
		e.state.StuckCount++
	}

	e.cool()
	e.maybeReheat(ctx)

	annotate(&sol, map[string]interface{}{
		core.MetaStrategy:       string(core.StrategyAnnealing),
		core.MetaTemperature:    gc.Temperature,
		core.MetaAccepted:       accepted,
		core.MetaAcceptanceProb: acceptanceProb,
	})
	return sol, sc, nil
}

// hybridStep blends greedy warmup, annealing, occasional reconstruction and
// opportunistic greedy refinement.
func (e *Explorer) hybridStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	if e.state.Best == nil || e.state.TotalExplorations <= e.config.GreedyWarmup {
		sol, sc, err := e.greedyStep(ctx, gc, generate, score)
		if err == nil {
			annotate(&sol, map[string]interface{}{
				core.MetaStrategy:    string(core.StrategyHybrid),
				core.MetaHybridPhase: "greedy_warmup",
			})
		}
		return sol, sc, err
	}

	escape := e.state.StuckCount >= 2*e.config.ReheatingThreshold
	if escape || e.rng.Float64() < e.config.ReconstructionProb {
		return e.reconstructionStep(ctx, gc, generate, score)
	}

	sol, sc, err := e.annealingStep(ctx, gc, generate, score)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}
	annotate(&sol, map[string]interface{}{
		core.MetaStrategy:    string(core.StrategyHybrid),
		core.MetaHybridPhase: "annealing",
	})

	// Occasionally polish the annealing result with one zero-temperature
	// refinement and adopt it only on strict improvement.
	if e.rng.Float64() < e.config.RefinementProb {
		refineCtx := gc
		refineCtx.Temperature = 0
		refineCtx.CurrentBest = &sol

		refined, refinedScore, err := e.produce(ctx, refineCtx, generate, score)
		if err != nil {
			// Refinement is best-effort; keep the annealing result.
			e.logger.Debug(ctx, "hybrid refinement failed: %v", err)
			return sol, sc, nil
		}
		if refinedScore.Total > e.state.BestScore.Total {
			e.adoptBest(refined, refinedScore, gc.Iteration)
			e.current = &candidate{solution: refined, score: refinedScore}
			annotate(&refined, map[string]interface{}{
				core.MetaStrategy:    string(core.StrategyHybrid),
				core.MetaHybridPhase: "refinement",
				core.MetaAccepted:    true,
				core.MetaTemperature: 0.0,
			})
			return refined, refinedScore, nil
		}
	}

	return sol, sc, nil
}

// reconstructionStep generates fresh at high temperature ignoring the
// current best, accepting results within 90% of it.
func (e *Explorer) reconstructionStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	gc.Temperature = e.config.InitialTemperature
	gc.CurrentBest = nil

	sol, sc, err := e.produce(ctx, gc, generate, score)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}

	accepted := false
	if sc.Total >= 0.9*e.state.BestScore.Total {
		accepted = true
		e.current = &candidate{solution: sol, score: sc}
		e.state.Temperature = e.config.InitialTemperature / 2
		if sc.Total > e.state.BestScore.Total {
			e.adoptBest(sol, sc, gc.Iteration)
		}
	} else {
		e.state.StuckCount++
	}

	annotate(&sol, map[string]interface{}{
		core.MetaStrategy:       string(core.StrategyHybrid),
		core.MetaHybridPhase:    "reconstruction",
		core.MetaReconstruction: true,
		core.MetaTemperature:    gc.Temperature,
		core.MetaAccepted:       accepted,
	})
	return sol, sc, nil
}

// beamStep expands every beam member into two successors at descending
// temperature, keeps the top BeamWidth candidates and returns the best.
func (e *Explorer) beamStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	width := e.config.BeamWidth

	if len(e.beam) == 0 {
		gc.Temperature = e.config.InitialTemperature
		gc.CurrentBest = e.bestSolution()
		sol, sc, err := e.produce(ctx, gc, generate, score)
		if err != nil {
			return core.Solution{}, core.SolutionScore{}, err
		}
		e.beam = []candidate{{solution: sol, score: sc}}
		e.trackBest(sol, sc, gc.Iteration)
		annotate(&sol, map[string]interface{}{
			core.MetaStrategy:     string(core.StrategyBeam),
			core.MetaBeamPosition: 0,
			core.MetaTemperature:  gc.Temperature,
			core.MetaAccepted:     true,
		})
		return sol, sc, nil
	}

	type expansion struct {
		cand candidate
		err  error
	}
	results := make([]expansion, len(e.beam)*2)

	p := pool.New().WithMaxGoroutines(e.config.MaxGoroutines)
	for i, member := range e.beam {
		for j := 0; j < 2; j++ {
			idx := i*2 + j
			// Temperature descends with beam rank so the front of the
			// beam is perturbed less than the tail.
			temp := e.config.InitialTemperature * (1.0 - float64(i)/float64(width+1))
			parent := member.solution
			p.Go(func() {
				sgc := gc
				sgc.Temperature = temp
				sgc.CurrentBest = &parent
				sol, sc, err := e.produce(ctx, sgc, generate, score)
				if err != nil {
					results[idx] = expansion{err: err}
					return
				}
				annotate(&sol, map[string]interface{}{
					core.MetaStrategy:    string(core.StrategyBeam),
					core.MetaTemperature: temp,
					core.MetaParentID:    parent.ID,
				})
				results[idx] = expansion{cand: candidate{solution: sol, score: sc}}
			})
		}
	}
	p.Wait()

	merged := append([]candidate{}, e.beam...)
	for _, r := range results {
		if r.err != nil {
			return core.Solution{}, core.SolutionScore{}, r.err
		}
		merged = append(merged, r.cand)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].score.Total > merged[j].score.Total
	})
	if len(merged) > width {
		merged = merged[:width]
	}
	e.beam = merged

	top := e.beam[0]
	e.trackBest(top.solution, top.score, gc.Iteration)

	sol := top.solution
	annotate(&sol, map[string]interface{}{
		core.MetaStrategy:     string(core.StrategyBeam),
		core.MetaBeamPosition: 0,
		core.MetaAccepted:     true,
	})
	return sol, top.score, nil
}

// evolutionStep seeds the population until full, then breeds one offspring
// per call via tournament selection and replaces the worst member when the
// offspring outscores it.
func (e *Explorer) evolutionStep(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	if len(e.population) < e.config.PopulationSize {
		gc.Temperature = e.config.InitialTemperature
		gc.CurrentBest = nil
		sol, sc, err := e.produce(ctx, gc, generate, score)
		if err != nil {
			return core.Solution{}, core.SolutionScore{}, err
		}
		e.population = append(e.population, candidate{solution: sol, score: sc})
		e.trackBest(sol, sc, gc.Iteration)
		annotate(&sol, map[string]interface{}{
			core.MetaStrategy:   string(core.StrategyEvolutionary),
			core.MetaGeneration: 0,
			core.MetaAccepted:   true,
		})
		return sol, sc, nil
	}

	parentA := e.tournament()
	parentB := e.tournament()
	chosen := parentA
	if e.rng.Float64() < 0.5 {
		chosen = parentB
	}

	gc.Temperature = e.config.MutationRate
	gc.CurrentBest = &chosen.solution

	offspring, sc, err := e.produce(ctx, gc, generate, score)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, err
	}

	worst := 0
	for i, member := range e.population {
		if member.score.Total < e.population[worst].score.Total {
			worst = i
		}
	}

	replaced := sc.Total > e.population[worst].score.Total
	if replaced {
		e.population[worst] = candidate{solution: offspring, score: sc}
	}
	e.trackBest(offspring, sc, gc.Iteration)

	annotate(&offspring, map[string]interface{}{
		core.MetaStrategy:    string(core.StrategyEvolutionary),
		core.MetaGeneration:  e.state.TotalExplorations,
		core.MetaParentID:    chosen.solution.ID,
		core.MetaTemperature: gc.Temperature,
		core.MetaAccepted:    replaced,
	})
	return offspring, sc, nil
}

// tournament samples TournamentSize members and returns the fittest.
func (e *Explorer) tournament() candidate {
	best := e.population[e.rng.Intn(len(e.population))]
	for i := 1; i < e.config.TournamentSize; i++ {
		challenger := e.population[e.rng.Intn(len(e.population))]
		if challenger.score.Total > best.score.Total {
			best = challenger
		}
	}
	return best
}

// produce invokes the injected generator and scorer, filling in identifier
// and bookkeeping fields the generator left empty.
func (e *Explorer) produce(ctx context.Context, gc core.GeneratorContext, generate core.GenerateFunc, score core.ScoreFunc) (core.Solution, core.SolutionScore, error) {
	sol, err := generate(ctx, gc)
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, errors.Wrap(err, errors.GeneratorFailed, "candidate generation failed")
	}
	if sol.ID == "" {
		sol.ID = uuid.New().String()
	}
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = time.Now()
	}
	sol.Iteration = gc.Iteration
	if sol.Metadata == nil {
		sol.Metadata = make(map[string]interface{})
	}

	sc, err := score(ctx, sol, core.ScorerContext{
		Task:             gc.Task,
		Objective:        gc.Objective,
		Constraints:      gc.Constraints,
		Insights:         gc.Insights,
		FailedStrategies: gc.FailedStrategies,
	})
	if err != nil {
		return core.Solution{}, core.SolutionScore{}, errors.Wrap(err, errors.ScorerFailed, "candidate scoring failed")
	}
	return sol, sc, nil
}

// adoptBest records a strict improvement.
func (e *Explorer) adoptBest(sol core.Solution, sc core.SolutionScore, iteration int) {
	solCopy := sol
	scCopy := sc
	e.state.Best = &solCopy
	e.state.BestScore = &scCopy
	e.state.StuckCount = 0
	e.state.LastImprovement = iteration
}

// trackBest updates the running best without touching annealing bookkeeping;
// used by beam and evolutionary steps where stuck-count still applies.
func (e *Explorer) trackBest(sol core.Solution, sc core.SolutionScore, iteration int) {
	if e.state.Best == nil || sc.Total > e.state.BestScore.Total {
		e.adoptBest(sol, sc, iteration)
	} else {
		e.state.StuckCount++
	}
}

func (e *Explorer) cool() {
	e.state.Temperature = math.Max(e.config.MinTemperature, e.state.Temperature*e.config.CoolingRate)
}

func (e *Explorer) maybeReheat(ctx context.Context) {
	if e.state.StuckCount >= e.config.ReheatingThreshold {
		reheated := math.Min(e.config.InitialTemperature, e.state.Temperature*e.config.ReheatingFactor)
		e.logger.Debug(ctx, "reheating: temperature %.4f -> %.4f after %d stuck iterations",
			e.state.Temperature, reheated, e.state.StuckCount)
		e.state.Temperature = reheated
		e.state.StuckCount = 0
	}
}

func (e *Explorer) bestSolution() *core.Solution {
	if e.state.Best == nil {
		return nil
	}
	solCopy := *e.state.Best
	return &solCopy
}

// walkSolution returns the annealing walk position, falling back to the
// running best before any worse move has been accepted.
func (e *Explorer) walkSolution() *core.Solution {
	if e.current != nil {
		solCopy := e.current.solution
		return &solCopy
	}
	return e.bestSolution()
}

// WarmStart injects an externally known-good solution as the current best
// and seeds the beam and population. Counters are left untouched.
func (e *Explorer) WarmStart(sol core.Solution, sc core.SolutionScore) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Best == nil || sc.Total > e.state.BestScore.Total {
		solCopy := sol
		scCopy := sc
		e.state.Best = &solCopy
		e.state.BestScore = &scCopy
	}
	seed := candidate{solution: sol, score: sc}
	if len(e.beam) < e.config.BeamWidth {
		e.beam = append(e.beam, seed)
	}
	if len(e.population) < e.config.PopulationSize {
		e.population = append(e.population, seed)
	}
}

// Reset clears all exploration state for a fresh optimization run.
func (e *Explorer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = State{Temperature: e.config.InitialTemperature}
	e.current = nil
	e.beam = nil
	e.population = nil
}

// GetState returns a snapshot of the exploration state.
func (e *Explorer) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GetStats reports exploration statistics. The acceptance rate covers only
// accept-worse decisions; it is 0 when none were attempted.
func (e *Explorer) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	attempted := e.state.AcceptedWorse + e.state.RejectedWorse
	rate := 0.0
	if attempted > 0 {
		rate = float64(e.state.AcceptedWorse) / float64(attempted)
	}

	best := 0.0
	if e.state.BestScore != nil {
		best = e.state.BestScore.Total
	}

	return Stats{
		TotalExplorations: e.state.TotalExplorations,
		AcceptanceRate:    rate,
		Temperature:       e.state.Temperature,
		StuckCount:        e.state.StuckCount,
		BestScore:         best,
		BeamSize:          len(e.beam),
		PopulationSize:    len(e.population),
	}
}

// annotate merges diagnostics into a solution's metadata map.
func annotate(sol *core.Solution, kv map[string]interface{}) {
	if sol.Metadata == nil {
		sol.Metadata = make(map[string]interface{}, len(kv))
	}
	for k, v := range kv {
		sol.Metadata[k] = v
	}
}
