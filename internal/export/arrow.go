// Package export writes benchmark results as Apache Arrow IPC files so they can be
// loaded into pandas, polars or DuckDB for comparison across devices.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxnlabs/gpubench/internal/bench"
)

// FormatVersion is stored in the schema metadata of every file.
const FormatVersion = "1"

// Column indexes of Schema.
const (
	ColOp = iota
	ColBackend
	ColVendor
	ColPrecision
	ColShape
	ColTiles
	ColTiming
	ColTrials
	ColP50
	ColP95
	ColMean
	ColMin
	ColMax
	ColThroughput
	ColThroughputUnit
	ColCheckOK
	ColModel
	ColSamples
)

// Schema is one row per benchmark result. Tiles, check_ok and model are null when
// they do not apply.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "op", Type: arrow.BinaryTypes.String},
	{Name: "backend", Type: arrow.BinaryTypes.String},
	{Name: "vendor", Type: arrow.BinaryTypes.String},
	{Name: "precision", Type: arrow.BinaryTypes.String},
	{Name: "shape", Type: arrow.BinaryTypes.String},
	{Name: "tiles", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "timing", Type: arrow.BinaryTypes.String},
	{Name: "trials", Type: arrow.PrimitiveTypes.Int64},
	{Name: "p50_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "p95_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mean_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "min_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "max_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "throughput", Type: arrow.PrimitiveTypes.Float64},
	{Name: "throughput_unit", Type: arrow.BinaryTypes.String},
	{Name: "check_ok", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "model", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "samples_ms", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
}, func() *arrow.Metadata {
	md := arrow.NewMetadata([]string{"gpubench.format"}, []string{FormatVersion})
	return &md
}())

// Record converts results into a single record batch. The caller releases it.
func Record(mem memory.Allocator, results []bench.BenchResult) arrow.Record {
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	for _, r := range results {
		b.Field(ColOp).(*array.StringBuilder).Append(string(r.Op))
		b.Field(ColBackend).(*array.StringBuilder).Append(r.Backend)
		b.Field(ColVendor).(*array.StringBuilder).Append(r.Vendor)
		b.Field(ColPrecision).(*array.StringBuilder).Append(string(r.Precision))
		b.Field(ColShape).(*array.StringBuilder).Append(r.Shape.Format(r.Op))
		if r.Tiles != nil {
			b.Field(ColTiles).(*array.StringBuilder).Append(r.Tiles.String())
		} else {
			b.Field(ColTiles).AppendNull()
		}
		b.Field(ColTiming).(*array.StringBuilder).Append(string(r.Timing))
		b.Field(ColTrials).(*array.Int64Builder).Append(int64(len(r.Trials)))
		b.Field(ColP50).(*array.Float64Builder).Append(r.Stats.P50)
		b.Field(ColP95).(*array.Float64Builder).Append(r.Stats.P95)
		b.Field(ColMean).(*array.Float64Builder).Append(r.Stats.Mean)
		b.Field(ColMin).(*array.Float64Builder).Append(r.Stats.Min)
		b.Field(ColMax).(*array.Float64Builder).Append(r.Stats.Max)
		b.Field(ColThroughput).(*array.Float64Builder).Append(r.Throughput.Value)
		b.Field(ColThroughputUnit).(*array.StringBuilder).Append(r.Throughput.Unit)
		if r.Check != nil {
			b.Field(ColCheckOK).(*array.BooleanBuilder).Append(r.Check.OK)
		} else {
			b.Field(ColCheckOK).AppendNull()
		}
		if r.Model != "" {
			b.Field(ColModel).(*array.StringBuilder).Append(r.Model)
		} else {
			b.Field(ColModel).AppendNull()
		}

		samples := b.Field(ColSamples).(*array.ListBuilder)
		samples.Append(true)
		samples.ValueBuilder().(*array.Float64Builder).AppendValues(r.Samples(), nil)
	}
	return b.NewRecord()
}

// Write encodes results as an Arrow IPC file.
func Write(w io.Writer, results []bench.BenchResult) error {
	mem := memory.NewGoAllocator()
	rec := Record(mem, results)
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to open arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	return fw.Close()
}

// WriteFile writes results to path, replacing any existing file.
func WriteFile(path string, results []bench.BenchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
