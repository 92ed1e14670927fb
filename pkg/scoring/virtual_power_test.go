package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

func trialsWithScores(totals ...float64) []core.Trial {
	trials := make([]core.Trial, len(totals))
	for i, total := range totals {
		trials[i] = core.Trial{
			ID:        fmt.Sprintf("t-%d", i+1),
			Iteration: i + 1,
			Solution:  core.Solution{ID: fmt.Sprintf("s-%d", i+1)},
			Score:     core.SolutionScore{Total: total, Immediate: total},
		}
	}
	return trials
}

func weightSum(w Weights) float64 {
	return w.BuildingBlocks + w.Extensibility + w.LearningTrajectory +
		w.InsightDensity + w.CompoundPotential + w.RiskMitigation
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, weightSum(DefaultWeights()), 1e-9)
}

func TestScoreBounds(t *testing.T) {
	v := NewVirtualPowerScorer()

	solutions := []core.Solution{
		{},
		{Content: "a function with error handling and a config option"},
		{Content: "hardcode everything, hack around the fixme"},
		{Code: "package parser\n\nfunc Parse() error { return nil }"},
	}
	contexts := []Context{
		{},
		{PriorTrials: trialsWithScores(0.1, 0.9)},
		{PriorTrials: trialsWithScores(0.9, 0.1), Insights: []core.Insight{{Type: core.InsightFailure}}},
		{PriorTrials: trialsWithScores(0.5, 0.5, 0.5, 0.5), AvoidedCount: 3, LookAheadDepth: 5},
	}

	for _, sol := range solutions {
		for _, sc := range contexts {
			score := v.Score(sol, sc)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)

			factors := v.Factors(sol, sc)
			for name, f := range map[string]float64{
				"buildingBlocks":     factors.BuildingBlocks,
				"extensibility":      factors.Extensibility,
				"learningTrajectory": factors.LearningTrajectory,
				"insightDensity":     factors.InsightDensity,
				"compoundPotential":  factors.CompoundPotential,
				"riskMitigation":     factors.RiskMitigation,
			} {
				assert.GreaterOrEqual(t, f, 0.0, name)
				assert.LessOrEqual(t, f, 1.0, name)
			}
		}
	}
}

func TestBuildingBlocksFactor(t *testing.T) {
	v := NewVirtualPowerScorer()

	bare := v.Factors(core.Solution{Content: "just some prose"}, Context{})
	structured := v.Factors(core.Solution{
		Code: "package widgets\n\ntype Store interface {}\n\nfunc New() *Store { return nil }",
	}, Context{})

	assert.Greater(t, structured.BuildingBlocks, bare.BuildingBlocks)
}

func TestExtensibilityFactor(t *testing.T) {
	v := NewVirtualPowerScorer()

	flexible := v.Factors(core.Solution{Content: "configurable parser with plugin options"}, Context{})
	rigid := v.Factors(core.Solution{Content: "hardcode the path, hack for now, see fixme"}, Context{})

	assert.Greater(t, flexible.Extensibility, 0.5)
	assert.Less(t, rigid.Extensibility, 0.5)
}

func TestLearningTrajectoryFactor(t *testing.T) {
	v := NewVirtualPowerScorer()

	t.Run("neutral with no history", func(t *testing.T) {
		assert.Equal(t, 0.5, v.Factors(core.Solution{}, Context{}).LearningTrajectory)
	})

	t.Run("rising scores push above neutral", func(t *testing.T) {
		sc := Context{PriorTrials: trialsWithScores(0.2, 0.4, 0.6, 0.8)}
		assert.Greater(t, v.Factors(core.Solution{}, sc).LearningTrajectory, 0.5)
	})

	t.Run("falling scores push below neutral", func(t *testing.T) {
		sc := Context{PriorTrials: trialsWithScores(0.8, 0.6, 0.4, 0.2)}
		assert.Less(t, v.Factors(core.Solution{}, sc).LearningTrajectory, 0.5)
	})

	t.Run("flat scores stay neutral", func(t *testing.T) {
		sc := Context{PriorTrials: trialsWithScores(0.5, 0.5, 0.5)}
		assert.InDelta(t, 0.5, v.Factors(core.Solution{}, sc).LearningTrajectory, 1e-9)
	})
}

func TestInsightDensityFactor(t *testing.T) {
	v := NewVirtualPowerScorer()
	trials := trialsWithScores(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0)

	insights := func(n int) []core.Insight {
		out := make([]core.Insight, n)
		for i := range out {
			out[i] = core.Insight{Type: core.InsightObservation}
		}
		return out
	}

	moderate := v.Factors(core.Solution{}, Context{PriorTrials: trials, Insights: insights(3)})
	sparse := v.Factors(core.Solution{}, Context{PriorTrials: trials})
	flooded := v.Factors(core.Solution{}, Context{PriorTrials: trials, Insights: insights(20)})

	assert.Equal(t, 1.0, moderate.InsightDensity)
	assert.Less(t, sparse.InsightDensity, moderate.InsightDensity)
	assert.Less(t, flooded.InsightDensity, moderate.InsightDensity)
}

func TestCompoundPotentialFactor(t *testing.T) {
	v := NewVirtualPowerScorer()
	trials := trialsWithScores(0.3, 0.75)

	t.Run("rewards building on a strong parent", func(t *testing.T) {
		onStrong := v.Factors(core.Solution{ParentID: "s-2"}, Context{PriorTrials: trials})
		orphan := v.Factors(core.Solution{}, Context{PriorTrials: trials})
		assert.Greater(t, onStrong.CompoundPotential, orphan.CompoundPotential)
	})

	t.Run("rewards avoided failure strategies", func(t *testing.T) {
		avoided := v.Factors(core.Solution{}, Context{PriorTrials: trials, AvoidedCount: 4})
		plain := v.Factors(core.Solution{}, Context{PriorTrials: trials})
		assert.Greater(t, avoided.CompoundPotential, plain.CompoundPotential)
	})
}

func TestRiskMitigationFactor(t *testing.T) {
	v := NewVirtualPowerScorer()

	careful := v.Factors(core.Solution{
		Content: "validate input, check bounds, guard against error with a fallback",
	}, Context{})
	careless := v.Factors(core.Solution{Content: "just do it"}, Context{})

	assert.Greater(t, careful.RiskMitigation, careless.RiskMitigation)
}

func TestUpdateWeights(t *testing.T) {
	withBreakdowns := func(totals []float64, b core.ScoreBreakdown) []core.Trial {
		trials := trialsWithScores(totals...)
		for i := range trials {
			trials[i].Score.Breakdown = b
		}
		return trials
	}

	t.Run("no-op below ten trials", func(t *testing.T) {
		v := NewVirtualPowerScorer()
		before := v.Weights()
		v.UpdateWeights(trialsWithScores(0.1, 0.5, 0.9))
		assert.Equal(t, before, v.Weights())
	})

	t.Run("remains normalized and non-negative after update", func(t *testing.T) {
		v := NewVirtualPowerScorer()
		trials := withBreakdowns(
			[]float64{0.1, 0.3, 0.2, 0.5, 0.4, 0.6, 0.7, 0.65, 0.8, 0.9},
			core.ScoreBreakdown{Correctness: 0.9, Maintainability: 0.2, Potential: 0.4},
		)
		v.UpdateWeights(trials)

		w := v.Weights()
		assert.InDelta(t, 1.0, weightSum(w), 1e-9)
		for name, f := range map[string]float64{
			"buildingBlocks":     w.BuildingBlocks,
			"extensibility":      w.Extensibility,
			"learningTrajectory": w.LearningTrajectory,
			"insightDensity":     w.InsightDensity,
			"compoundPotential":  w.CompoundPotential,
			"riskMitigation":     w.RiskMitigation,
		} {
			assert.GreaterOrEqual(t, f, 0.0, name)
		}
	})

	t.Run("shifts weight toward the correlated factor", func(t *testing.T) {
		v := NewVirtualPowerScorer()
		trials := withBreakdowns(
			[]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			core.ScoreBreakdown{Correctness: 1.0},
		)
		v.UpdateWeights(trials)

		// All observed gains correlate with correctness, so building
		// blocks gains share at the expense of the others.
		assert.Greater(t, v.Weights().BuildingBlocks, DefaultWeights().BuildingBlocks)
	})

	t.Run("no-op when no trial improved", func(t *testing.T) {
		v := NewVirtualPowerScorer()
		before := v.Weights()
		trials := withBreakdowns(
			[]float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1},
			core.ScoreBreakdown{Correctness: 1.0},
		)
		v.UpdateWeights(trials)
		assert.Equal(t, before, v.Weights())
	})
}

func TestNewVirtualPowerScorerWithWeights(t *testing.T) {
	v := NewVirtualPowerScorerWithWeights(Weights{BuildingBlocks: 2, Extensibility: 2})

	w := v.Weights()
	assert.InDelta(t, 1.0, weightSum(w), 1e-9)
	assert.InDelta(t, 0.5, w.BuildingBlocks, 1e-9)
	assert.Equal(t, 0.0, w.LearningTrajectory)
}
