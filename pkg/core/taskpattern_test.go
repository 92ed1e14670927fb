package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskPattern(t *testing.T) {
	t.Run("filters stop words", func(t *testing.T) {
		assert.Equal(t, "reverse string", TaskPattern("reverse a string"))
	})

	t.Run("case folds and strips punctuation", func(t *testing.T) {
		assert.Equal(t, "sort list numbers", TaskPattern("Sort the LIST of numbers!"))
	})

	t.Run("truncates to first meaningful words", func(t *testing.T) {
		pattern := TaskPattern("implement fast streaming parser over large compressed archive files")
		assert.Equal(t, "implement fast streaming parser over", pattern)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", TaskPattern(""))
		assert.Equal(t, "", TaskPattern("the of a"))
	})

	t.Run("idempotent", func(t *testing.T) {
		pattern := TaskPattern("reverse a string")
		assert.Equal(t, pattern, TaskPattern(pattern))
	})
}
