package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

func sampleTrials() []core.Trial {
	return []core.Trial{
		{
			ID:        "t-1",
			Iteration: 0,
			Solution:  core.Solution{Metadata: map[string]interface{}{core.MetaStrategy: "greedy"}},
			Score:     core.SolutionScore{Immediate: 0.3, VirtualPower: 0.5, Total: 0.36, Confidence: 0.9},
			Duration:  120 * time.Millisecond,
		},
		{
			ID:        "t-2",
			Iteration: 1,
			Solution:  core.Solution{Metadata: map[string]interface{}{core.MetaStrategy: "greedy"}},
			Score:     core.SolutionScore{Immediate: 0.7, VirtualPower: 0.6, Total: 0.67, Confidence: 0.9},
			Duration:  80 * time.Millisecond,
		},
	}
}

func TestWriteTrialsParquet(t *testing.T) {
	t.Run("writes a readable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trials.parquet")
		require.NoError(t, WriteTrialsParquet(path, sampleTrials()))

		rdr, err := file.OpenParquetFile(path, false)
		require.NoError(t, err)
		defer rdr.Close()

		arrowRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
		require.NoError(t, err)

		schema, err := arrowRdr.Schema()
		require.NoError(t, err)
		assert.Equal(t, int64(2), rdr.NumRows())

		names := make([]string, 0, schema.NumFields())
		for _, f := range schema.Fields() {
			names = append(names, f.Name)
		}
		assert.Contains(t, names, "trial_id")
		assert.Contains(t, names, "virtual_power")
		assert.Contains(t, names, "duration_ms")
	})

	t.Run("rejects an empty history", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.parquet")
		err := WriteTrialsParquet(path, nil)
		require.Error(t, err)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("fails cleanly on an unwritable path", func(t *testing.T) {
		err := WriteTrialsParquet(filepath.Join(t.TempDir(), "absent", "trials.parquet"), sampleTrials())
		assert.Error(t, err)
	})
}
