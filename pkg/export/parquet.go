// Package export writes optimization run history in columnar form for
// offline analysis.
package export

import (
	"os"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/errors"
)

var trialSchema = arrow.NewSchema([]arrow.Field{
	{Name: "trial_id", Type: arrow.BinaryTypes.String},
	{Name: "iteration", Type: arrow.PrimitiveTypes.Int64},
	{Name: "strategy", Type: arrow.BinaryTypes.String},
	{Name: "immediate", Type: arrow.PrimitiveTypes.Float64},
	{Name: "virtual_power", Type: arrow.PrimitiveTypes.Float64},
	{Name: "total", Type: arrow.PrimitiveTypes.Float64},
	{Name: "confidence", Type: arrow.PrimitiveTypes.Float64},
	{Name: "duration_ms", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// WriteTrialsParquet writes the trial history of a session to a Parquet
// file at path.
func WriteTrialsParquet(path string, trials []core.Trial) error {
	if len(trials) == 0 {
		return errors.New(errors.InvalidInput, "no trials to export")
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, trialSchema)
	defer builder.Release()

	for _, t := range trials {
		strategy, _ := t.Solution.Metadata[core.MetaStrategy].(string)

		builder.Field(0).(*array.StringBuilder).Append(t.ID)
		builder.Field(1).(*array.Int64Builder).Append(int64(t.Iteration))
		builder.Field(2).(*array.StringBuilder).Append(strategy)
		builder.Field(3).(*array.Float64Builder).Append(t.Score.Immediate)
		builder.Field(4).(*array.Float64Builder).Append(t.Score.VirtualPower)
		builder.Field(5).(*array.Float64Builder).Append(t.Score.Total)
		builder.Field(6).(*array.Float64Builder).Append(t.Score.Confidence)
		builder.Field(7).(*array.Int64Builder).Append(t.Duration.Milliseconds())
	}

	record := builder.NewRecord()
	defer record.Release()

	table := array.NewTableFromRecords(trialSchema, []arrow.Record{record})
	defer table.Release()

	f, err := os.Create(path)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to create export file"),
			errors.Fields{"path": path},
		)
	}
	defer f.Close()

	if err := pqarrow.WriteTable(table, f, int64(len(trials)),
		parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to write parquet export")
	}
	return nil
}
