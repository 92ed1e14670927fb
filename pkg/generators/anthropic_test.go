package generators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

func TestNewAnthropicAdapter(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := NewAnthropicAdapter(AnthropicConfig{})
		assert.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		a, err := NewAnthropicAdapter(AnthropicConfig{APIKey: "test-key"})
		require.NoError(t, err)
		assert.NotEmpty(t, a.model)
		assert.Equal(t, 2048, a.maxTokens)
	})
}

func TestBuildGenerationPrompt(t *testing.T) {
	t.Run("includes task and constraints", func(t *testing.T) {
		prompt := buildGenerationPrompt(core.GeneratorContext{
			Task:        "reverse a string",
			Objective:   "minimal allocations",
			Constraints: []string{"no external libraries"},
			Iteration:   2,
		})

		assert.Contains(t, prompt, "Task: reverse a string")
		assert.Contains(t, prompt, "Objective: minimal allocations")
		assert.Contains(t, prompt, "Constraint: no external libraries")
		assert.Contains(t, prompt, "iteration 2")
	})

	t.Run("high temperature asks for a different approach", func(t *testing.T) {
		best := &core.Solution{ID: "s-1", Content: "two pointers"}

		hot := buildGenerationPrompt(core.GeneratorContext{Task: "x", CurrentBest: best, Temperature: 0.9})
		cold := buildGenerationPrompt(core.GeneratorContext{Task: "x", CurrentBest: best, Temperature: 0.1})

		assert.Contains(t, hot, "substantially different approach")
		assert.Contains(t, cold, "Improve on the current best")
	})

	t.Run("lists insights and avoided strategies", func(t *testing.T) {
		prompt := buildGenerationPrompt(core.GeneratorContext{
			Task:     "x",
			Insights: []core.Insight{{Type: core.InsightSuccess, Content: "caching helped"}},
			FailedStrategies: []core.FailedStrategy{
				{Strategy: "brute force", Avoidance: "prune the search space"},
			},
		})

		assert.Contains(t, prompt, "caching helped")
		assert.Contains(t, prompt, "do not repeat")
		assert.Contains(t, prompt, "brute force")
	})
}

func TestBuildScoringPrompt(t *testing.T) {
	prompt := buildScoringPrompt(
		core.Solution{Content: "iterate backwards"},
		core.ScorerContext{Task: "reverse a string"},
	)

	assert.Contains(t, prompt, "Task: reverse a string")
	assert.Contains(t, prompt, "iterate backwards")
	assert.Contains(t, prompt, `"correctness"`)
}

func TestParseVerdict(t *testing.T) {
	t.Run("clean JSON", func(t *testing.T) {
		sc, ok := parseVerdict(`{"correctness": 0.8, "efficiency": 0.6, "maintainability": 0.7, "potential": 0.5, "reasoning": "solid"}`)
		require.True(t, ok)

		assert.InDelta(t, 0.65, sc.Immediate, 1e-9)
		assert.Equal(t, 0.8, sc.Breakdown.Correctness)
		assert.Equal(t, "solid", sc.Reasoning)
		assert.Equal(t, 0.7, sc.Confidence)
	})

	t.Run("JSON embedded in prose", func(t *testing.T) {
		content := "Here is my assessment:\n" +
			`{"correctness": 1.0, "efficiency": 1.0, "maintainability": 1.0, "potential": 1.0, "reasoning": "perfect"}` +
			"\nLet me know if you need more detail."

		sc, ok := parseVerdict(content)
		require.True(t, ok)
		assert.Equal(t, 1.0, sc.Immediate)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, ok := parseVerdict("I cannot score this.")
		assert.False(t, ok)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, ok := parseVerdict(`{"correctness": "very good"}`)
		assert.False(t, ok)
	})
}

func TestParentID(t *testing.T) {
	assert.Equal(t, "", parentID(core.GeneratorContext{}))
	assert.Equal(t, "s-1", parentID(core.GeneratorContext{CurrentBest: &core.Solution{ID: "s-1"}}))
}

func TestPromptStaysPlainText(t *testing.T) {
	// The generation prompt ends with an instruction line, not a JSON schema.
	prompt := buildGenerationPrompt(core.GeneratorContext{Task: "x", Iteration: 0})
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "Respond with the solution only."))
}
