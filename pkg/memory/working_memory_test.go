package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

func TestStoreAndRecall(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip by task pattern", func(t *testing.T) {
		m := New()
		require.NoError(t, m.Store(ctx, Entry{
			Type:        EntryFailedStrategy,
			Content:     "use two pointers",
			TaskPattern: core.TaskPattern("reverse a string"),
			Confidence:  0.8,
		}))

		matches := m.Recall(ctx, "reverse a string")
		require.Len(t, matches, 1)
		// The pattern words overlap fully, so similarity carries at least
		// the full pattern weight.
		assert.GreaterOrEqual(t, matches[0].Similarity, 0.7)
		assert.Equal(t, "use two pointers", matches[0].Entry.Content)
	})

	t.Run("unrelated task recalls nothing", func(t *testing.T) {
		m := New()
		require.NoError(t, m.Store(ctx, Entry{
			Type:        EntryInsight,
			Content:     "cache the lookup table",
			TaskPattern: core.TaskPattern("compress log archives"),
		}))

		assert.Empty(t, m.Recall(ctx, "render a chess board"))
	})

	t.Run("type filter applies", func(t *testing.T) {
		m := New()
		pattern := core.TaskPattern("sort the records")
		require.NoError(t, m.Store(ctx, Entry{Type: EntryFailedStrategy, Content: "bubble sort", TaskPattern: pattern}))
		require.NoError(t, m.Store(ctx, Entry{Type: EntrySuccessPattern, Content: "merge sort", TaskPattern: pattern}))

		matches := m.Recall(ctx, "sort the records", EntrySuccessPattern)
		require.Len(t, matches, 1)
		assert.Equal(t, EntrySuccessPattern, matches[0].Entry.Type)
	})

	t.Run("recall bumps hit count monotonically", func(t *testing.T) {
		m := New()
		require.NoError(t, m.Store(ctx, Entry{
			ID:          "e-1",
			Type:        EntryInsight,
			Content:     "memoize the recursion",
			TaskPattern: core.TaskPattern("compute fibonacci numbers"),
		}))

		first := m.Recall(ctx, "compute fibonacci numbers")
		require.Len(t, first, 1)
		assert.Equal(t, 1, first[0].Entry.HitCount)

		second := m.Recall(ctx, "compute fibonacci numbers")
		require.Len(t, second, 1)
		assert.Equal(t, 2, second[0].Entry.HitCount)
	})

	t.Run("results are truncated to the match bound", func(t *testing.T) {
		m := New()
		pattern := core.TaskPattern("deduplicate records")
		for i := 0; i < 8; i++ {
			require.NoError(t, m.Store(ctx, Entry{
				ID:          fmt.Sprintf("e-%d", i),
				Type:        EntryInsight,
				Content:     fmt.Sprintf("variation %d", i),
				TaskPattern: pattern,
			}))
		}

		matches := m.Recall(ctx, "deduplicate records")
		assert.Len(t, matches, DefaultConfig().MaxMatches)
	})

	t.Run("results are sorted by similarity descending", func(t *testing.T) {
		m := New()
		require.NoError(t, m.Store(ctx, Entry{
			Type: EntryInsight, Content: "x", TaskPattern: core.TaskPattern("merge sorted lists quickly"),
		}))
		require.NoError(t, m.Store(ctx, Entry{
			Type: EntryInsight, Content: "y", TaskPattern: core.TaskPattern("merge sorted lists"),
		}))

		matches := m.Recall(ctx, "merge sorted lists")
		require.Len(t, matches, 2)
		assert.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)
	})
}

func TestEviction(t *testing.T) {
	ctx := context.Background()

	t.Run("stale low-hit entries are evicted first", func(t *testing.T) {
		m := New(WithCapacity(5))
		old := time.Now().Add(-25 * time.Hour)
		for i := 0; i < 5; i++ {
			require.NoError(t, m.Store(ctx, Entry{
				ID:          fmt.Sprintf("stale-%d", i),
				Type:        EntryContext,
				Content:     "stale",
				TaskPattern: "some old task",
				CreatedAt:   old,
			}))
		}
		require.NoError(t, m.Store(ctx, Entry{
			ID:          "fresh",
			Type:        EntryContext,
			Content:     "fresh",
			TaskPattern: core.TaskPattern("brand new task"),
		}))

		assert.LessOrEqual(t, m.Len(), 5)
		matches := m.Recall(ctx, "brand new task")
		require.Len(t, matches, 1)
		assert.Equal(t, "fresh", matches[0].Entry.ID)
	})

	t.Run("least recently accessed goes next", func(t *testing.T) {
		m := New(WithCapacity(2))
		now := time.Now()
		pattern := core.TaskPattern("shared task")

		for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Hour} {
			require.NoError(t, m.Store(ctx, Entry{
				ID:           fmt.Sprintf("e-%d", i),
				Type:         EntryContext,
				Content:      "c",
				TaskPattern:  pattern,
				LastAccessed: now.Add(-age),
			}))
		}

		assert.Equal(t, 2, m.Len())
		for _, match := range m.Recall(ctx, "shared task") {
			assert.NotEqual(t, "e-0", match.Entry.ID)
		}
	})

	t.Run("capacity bound holds under sustained inserts", func(t *testing.T) {
		m := New(WithCapacity(10))
		for i := 0; i < 30; i++ {
			require.NoError(t, m.Store(ctx, Entry{
				ID:          fmt.Sprintf("e-%d", i),
				Type:        EntryContext,
				Content:     "c",
				TaskPattern: "t",
			}))
			assert.LessOrEqual(t, m.Len(), 10)
		}
	})
}

func TestFailedStrategyRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New()

	fs := core.FailedStrategy{
		Strategy:    "regex-only parsing",
		Reason:      "could not handle nesting",
		TaskPattern: core.TaskPattern("parse nested brackets"),
		Avoidance:   "use a recursive parser instead",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, m.StoreFailedStrategy(ctx, fs))

	recalled := m.RecallFailedStrategies(ctx, "parse nested brackets")
	require.Len(t, recalled, 1)
	assert.Equal(t, fs.Strategy, recalled[0].Strategy)
	assert.Equal(t, fs.Reason, recalled[0].Reason)
	assert.Equal(t, fs.Avoidance, recalled[0].Avoidance)
	assert.Equal(t, 1, recalled[0].HitCount)
}

func TestRecallAll(t *testing.T) {
	ctx := context.Background()
	m := New()
	task := "optimize a query planner"
	pattern := core.TaskPattern(task)

	require.NoError(t, m.Store(ctx, Entry{Type: EntryFailedStrategy, Content: "f", TaskPattern: pattern}))
	require.NoError(t, m.Store(ctx, Entry{Type: EntrySuccessPattern, Content: "s", TaskPattern: pattern}))
	require.NoError(t, m.Store(ctx, Entry{Type: EntryInsight, Content: "i", TaskPattern: pattern}))
	require.NoError(t, m.Store(ctx, Entry{Type: EntryContext, Content: "c", TaskPattern: pattern}))

	out := m.RecallAll(ctx, task)
	assert.Len(t, out.FailedStrategies, 1)
	assert.Len(t, out.SuccessPatterns, 1)
	assert.Len(t, out.Insights, 1)
	assert.Len(t, out.Context, 1)
}

func TestLearnFromTrials(t *testing.T) {
	ctx := context.Background()
	m := New()
	task := "summarize a document"

	trials := []core.Trial{
		{ID: "t-1", Solution: core.Solution{Content: "extract first paragraph"}, Score: core.SolutionScore{Total: 0.1}},
		{ID: "t-2", Solution: core.Solution{Content: "rank sentences by centrality"}, Score: core.SolutionScore{Total: 0.9}},
		{ID: "t-3", Solution: core.Solution{Content: "middling attempt"}, Score: core.SolutionScore{Total: 0.5}},
	}
	insights := []core.Insight{
		{Content: "length constraints matter", Confidence: 0.9},
		{Content: "weak hunch", Confidence: 0.3},
	}

	counts := m.LearnFromTrials(ctx, task, trials, insights)
	assert.Equal(t, 1, counts.FailedStrategies)
	assert.Equal(t, 1, counts.SuccessPatterns)
	assert.Equal(t, 1, counts.Insights)
	assert.Equal(t, 3, m.Len())
}
