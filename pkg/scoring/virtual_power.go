package scoring

import (
	"math"
	"strings"
	"sync"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

// Weights assigns the relative importance of each future-value factor.
// They are normalized to sum to 1 at construction and after every update.
type Weights struct {
	BuildingBlocks     float64 `json:"building_blocks"`
	Extensibility      float64 `json:"extensibility"`
	LearningTrajectory float64 `json:"learning_trajectory"`
	InsightDensity     float64 `json:"insight_density"`
	CompoundPotential  float64 `json:"compound_potential"`
	RiskMitigation     float64 `json:"risk_mitigation"`
}

// DefaultWeights returns the baseline factor weighting.
func DefaultWeights() Weights {
	return Weights{
		BuildingBlocks:     0.20,
		Extensibility:      0.15,
		LearningTrajectory: 0.20,
		InsightDensity:     0.10,
		CompoundPotential:  0.20,
		RiskMitigation:     0.15,
	}
}

// Context carries the historical signal the scorer projects forward from.
type Context struct {
	Task             string
	Objective        string
	Constraints      []string
	PriorTrials      []core.Trial
	Insights         []core.Insight
	FailedStrategies []core.FailedStrategy
	AvoidedCount     int // strategies explicitly steered around this run
	LookAheadDepth   int
}

// FactorScores is the per-factor breakdown of a virtual power estimate.
// Every factor is clamped to [0,1].
type FactorScores struct {
	BuildingBlocks     float64 `json:"building_blocks"`
	Extensibility      float64 `json:"extensibility"`
	LearningTrajectory float64 `json:"learning_trajectory"`
	InsightDensity     float64 `json:"insight_density"`
	CompoundPotential  float64 `json:"compound_potential"`
	RiskMitigation     float64 `json:"risk_mitigation"`
}

// VirtualPowerScorer estimates the future value of a solution from its
// structural signals and the session's trajectory. Pure with respect to its
// inputs; the only mutable state is the adaptive weight vector.
type VirtualPowerScorer struct {
	mu      sync.RWMutex
	weights Weights
}

// NewVirtualPowerScorer creates a scorer with default weights.
func NewVirtualPowerScorer() *VirtualPowerScorer {
	return &VirtualPowerScorer{weights: DefaultWeights()}
}

// NewVirtualPowerScorerWithWeights creates a scorer with caller-supplied
// weights, normalized to sum to 1.
func NewVirtualPowerScorerWithWeights(w Weights) *VirtualPowerScorer {
	return &VirtualPowerScorer{weights: normalize(w)}
}

// Score computes the weighted future-value estimate in [0,1].
func (v *VirtualPowerScorer) Score(sol core.Solution, sc Context) float64 {
	factors := v.Factors(sol, sc)

	v.mu.RLock()
	w := v.weights
	v.mu.RUnlock()

	return factors.BuildingBlocks*w.BuildingBlocks +
		factors.Extensibility*w.Extensibility +
		factors.LearningTrajectory*w.LearningTrajectory +
		factors.InsightDensity*w.InsightDensity +
		factors.CompoundPotential*w.CompoundPotential +
		factors.RiskMitigation*w.RiskMitigation
}

// Factors computes all six factor scores.
func (v *VirtualPowerScorer) Factors(sol core.Solution, sc Context) FactorScores {
	return FactorScores{
		BuildingBlocks:     scoreBuildingBlocks(sol),
		Extensibility:      scoreExtensibility(sol),
		LearningTrajectory: scoreLearningTrajectory(sc),
		InsightDensity:     scoreInsightDensity(sc),
		CompoundPotential:  scoreCompoundPotential(sol, sc),
		RiskMitigation:     scoreRiskMitigation(sol, sc),
	}
}

// Weights returns the current weight vector.
func (v *VirtualPowerScorer) Weights() Weights {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.weights
}

// structural reuse signals checked by the building-blocks factor.
var buildingBlockSignals = []struct {
	marker string
	weight float64
}{
	{"func ", 0.08},
	{"function", 0.08},
	{"class", 0.08},
	{"module", 0.06},
	{"interface", 0.08},
	{"export", 0.06},
	{"package", 0.06},
	{"component", 0.06},
}

func scoreBuildingBlocks(sol core.Solution) float64 {
	content := strings.ToLower(sol.Content + " " + sol.Code)
	score := 0.5
	for _, sig := range buildingBlockSignals {
		if strings.Contains(content, sig.marker) {
			score += sig.weight
		}
	}
	return clamp01(score)
}

func scoreExtensibility(sol core.Solution) float64 {
	content := strings.ToLower(sol.Content + " " + sol.Code)
	score := 0.5

	for _, marker := range []string{"config", "option", "parameter", "plugin", "extensib", "generic", "abstract"} {
		if strings.Contains(content, marker) {
			score += 0.07
		}
	}
	for _, marker := range []string{"hardcode", "hard-coded", "magic number", "fixme", "hack"} {
		if strings.Contains(content, marker) {
			score -= 0.1
		}
	}
	return clamp01(score)
}

// scoreLearningTrajectory fits a least-squares slope over the most recent
// trial window and maps ±0.05/iteration onto [0,1].
func scoreLearningTrajectory(sc Context) float64 {
	trials := sc.PriorTrials
	if len(trials) < 2 {
		return 0.5
	}
	if len(trials) > 10 {
		trials = trials[len(trials)-10:]
	}

	n := float64(len(trials))
	var sumX, sumY, sumXY, sumXX float64
	for i, t := range trials {
		x := float64(i)
		y := t.Score.Total
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0.5
	}
	slope := (n*sumXY - sumX*sumY) / denom

	// slope of +0.05 per iteration maps to 1.0, -0.05 to 0.0
	return clamp01(0.5 + slope/0.1)
}

// scoreInsightDensity rewards a moderate insight-per-trial ratio with an
// inverted-U response.
func scoreInsightDensity(sc Context) float64 {
	if len(sc.PriorTrials) == 0 {
		return 0.5
	}
	density := float64(len(sc.Insights)) / float64(len(sc.PriorTrials))

	switch {
	case density < 0.1:
		return clamp01(0.3 + density*2)
	case density <= 0.5:
		return 1.0
	case density <= 1.5:
		return clamp01(1.0 - (density-0.5)*0.5)
	default:
		return 0.3
	}
}

func scoreCompoundPotential(sol core.Solution, sc Context) float64 {
	score := 0.5

	// Building on a high-scoring parent compounds.
	if sol.ParentID != "" {
		for _, t := range sc.PriorTrials {
			if t.Solution.ID == sol.ParentID && t.Score.Total >= 0.7 {
				score += 0.15
				break
			}
		}
	}

	if n := len(sc.PriorTrials); n > 0 {
		successes := 0
		for _, in := range sc.Insights {
			if in.Type == core.InsightSuccess {
				successes++
			}
		}
		if ratio := float64(successes) / float64(n); ratio > 0.3 {
			score += 0.1
		}
	}

	// Look-ahead projection: recent improvement rate extended over the
	// look-ahead depth with diminishing returns.
	if rate := recentImprovementRate(sc.PriorTrials); rate > 0 {
		depth := sc.LookAheadDepth
		if depth <= 0 {
			depth = 3
		}
		projected := rate * float64(depth)
		score += math.Min(0.2, projected)
	}

	if sc.AvoidedCount > 0 {
		score += math.Min(0.1, float64(sc.AvoidedCount)*0.025)
	}

	return clamp01(score)
}

func scoreRiskMitigation(sol core.Solution, sc Context) float64 {
	content := strings.ToLower(sol.Content + " " + sol.Code)
	score := 0.5

	for _, marker := range []string{"error", "validate", "check", "guard", "recover", "fallback", "timeout"} {
		if strings.Contains(content, marker) {
			score += 0.05
		}
	}

	failures := 0
	for _, in := range sc.Insights {
		if in.Type == core.InsightFailure {
			failures++
		}
	}
	score += math.Min(0.1, float64(failures)*0.02)

	// Credit for steering around strategies that keep failing.
	repeated := 0
	for _, fs := range sc.FailedStrategies {
		if fs.HitCount > 1 {
			repeated++
		}
	}
	if repeated > 0 && sc.AvoidedCount > 0 {
		ratio := float64(sc.AvoidedCount) / float64(repeated)
		score += math.Min(0.15, ratio*0.05)
	}

	return clamp01(score)
}

func recentImprovementRate(trials []core.Trial) float64 {
	if len(trials) < 2 {
		return 0
	}
	window := trials
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	delta := window[len(window)-1].Score.Total - window[0].Score.Total
	return delta / float64(len(window)-1)
}

// UpdateWeights performs a conservative online adjustment from observed
// improvements: naive correlations against the correctness, maintainability
// and potential components are blended 80/20 into the matching factor
// weights, then the vector is renormalized. No-op below 10 trials.
func (v *VirtualPowerScorer) UpdateWeights(trials []core.Trial) {
	if len(trials) < 10 {
		return
	}

	var corrCorrectness, corrMaintainability, corrPotential float64
	improved := 0
	for i := 1; i < len(trials); i++ {
		gain := trials[i].Score.Total - trials[i-1].Score.Total
		if gain <= 0 {
			continue
		}
		improved++
		corrCorrectness += gain * trials[i].Score.Breakdown.Correctness
		corrMaintainability += gain * trials[i].Score.Breakdown.Maintainability
		corrPotential += gain * trials[i].Score.Breakdown.Potential
	}
	if improved == 0 {
		return
	}

	total := corrCorrectness + corrMaintainability + corrPotential
	if total <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	w := v.weights
	w.BuildingBlocks = 0.8*w.BuildingBlocks + 0.2*(corrCorrectness/total)
	w.Extensibility = 0.8*w.Extensibility + 0.2*(corrMaintainability/total)
	w.CompoundPotential = 0.8*w.CompoundPotential + 0.2*(corrPotential/total)

	v.weights = normalize(w)
}

func normalize(w Weights) Weights {
	sum := w.BuildingBlocks + w.Extensibility + w.LearningTrajectory +
		w.InsightDensity + w.CompoundPotential + w.RiskMitigation
	if sum <= 0 {
		return DefaultWeights()
	}
	w.BuildingBlocks /= sum
	w.Extensibility /= sum
	w.LearningTrajectory /= sum
	w.InsightDensity /= sum
	w.CompoundPotential /= sum
	w.RiskMitigation /= sum
	return w
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
